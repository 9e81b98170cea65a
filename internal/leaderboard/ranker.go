// Package leaderboard orders daily scores and renders them for chat.
package leaderboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/globle-leaderboard/internal/domain"
)

// Rank sorts entries by ascending guess count. Equal counts keep their
// input order, so callers pass entries in submission order.
func Rank(date string, entries []domain.ScoreEntry) domain.Leaderboard {
	sorted := make([]domain.ScoreEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Guesses < sorted[j].Guesses
	})

	board := domain.Leaderboard{
		Date:    date,
		Entries: make([]domain.LeaderboardEntry, 0, len(sorted)),
	}
	for i, e := range sorted {
		board.Entries = append(board.Entries, domain.LeaderboardEntry{
			Rank:    i + 1,
			UserID:  e.UserID,
			Guesses: e.Guesses,
		})
	}
	return board
}

// Format renders a bold title followed by one line per ranked entry
func Format(title string, board domain.Leaderboard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", title)
	for _, e := range board.Entries {
		fmt.Fprintf(&b, "%d. %s: %d guesses\n", e.Rank, domain.Mention(e.UserID), e.Guesses)
	}
	return b.String()
}
