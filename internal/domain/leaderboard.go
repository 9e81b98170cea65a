package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DateLayout is the format of a ledger date
const DateLayout = "2006-01-02"

// Outcome is the result of recording a score
type Outcome int

const (
	OutcomeRejected Outcome = iota
	OutcomeRecorded
	OutcomeFirstOfDay
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeFirstOfDay:
		return "first_of_day"
	default:
		return "rejected"
	}
}

// Accepted reports whether the score was stored
func (o Outcome) Accepted() bool {
	return o == OutcomeRecorded || o == OutcomeFirstOfDay
}

// DailyScores is the persisted ledger for a single day
type DailyScores struct {
	Date   string `json:"date"`
	Scores Scores `json:"scores"`
}

// ScoreEntry is a user's best guess count for the day
type ScoreEntry struct {
	UserID  string `json:"user_id"`
	Guesses int    `json:"guesses"`
}

// LeaderboardEntry is a ranked score
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Guesses int    `json:"guesses"`
}

// Leaderboard is the ranked standings for a date
type Leaderboard struct {
	Date    string             `json:"date"`
	Entries []LeaderboardEntry `json:"entries"`
}

// Winner returns the first-ranked entry
func (l Leaderboard) Winner() (LeaderboardEntry, bool) {
	if len(l.Entries) == 0 {
		return LeaderboardEntry{}, false
	}
	return l.Entries[0], true
}

// Scores maps user IDs to guess counts and remembers the order users
// first submitted, which breaks ties on the leaderboard.
type Scores struct {
	order []string
	best  map[string]int
}

// Get returns the stored guess count for a user
func (s *Scores) Get(userID string) (int, bool) {
	g, ok := s.best[userID]
	return g, ok
}

// Set stores a guess count, keeping the user's original position
func (s *Scores) Set(userID string, guesses int) {
	if s.best == nil {
		s.best = make(map[string]int)
	}
	if _, ok := s.best[userID]; !ok {
		s.order = append(s.order, userID)
	}
	s.best[userID] = guesses
}

// Len returns the number of users with a score
func (s *Scores) Len() int {
	return len(s.order)
}

// Entries returns scores in submission order
func (s *Scores) Entries() []ScoreEntry {
	entries := make([]ScoreEntry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, ScoreEntry{UserID: id, Guesses: s.best[id]})
	}
	return entries
}

// MarshalJSON writes the scores as an object in submission order
func (s Scores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		fmt.Fprintf(&buf, "%d", s.best[id])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object of user ID to guess count, preserving key order
func (s *Scores) UnmarshalJSON(data []byte) error {
	*s = Scores{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("scores: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("scores: expected string key, got %v", tok)
		}
		var guesses int
		if err := dec.Decode(&guesses); err != nil {
			return fmt.Errorf("scores: value for %q: %w", id, err)
		}
		s.Set(id, guesses)
	}

	_, err = dec.Token()
	return err
}
