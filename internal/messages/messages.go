// Package messages renders the chat texts sent by the bot.
package messages

import (
	"fmt"
	"strings"

	"github.com/globle-leaderboard/internal/domain"
	"github.com/globle-leaderboard/internal/leaderboard"
)

// Catalog holds the game-specific values substituted into every text
type Catalog struct {
	Game        string
	URL         string
	Prefix      string
	Timezone    string
	MorningHour int
	EveningHour int
}

// ScoreRecorded confirms a stored score
func (c Catalog) ScoreRecorded(name string, guesses int, first bool) string {
	text := fmt.Sprintf("Recorded your %s score of %d guesses, %s!", c.Game, guesses, name)
	if first {
		text += " You're the first to submit today."
	}
	return text
}

// TimezoneSet confirms a timezone assignment
func (c Catalog) TimezoneSet(name, zone string) string {
	return fmt.Sprintf("%s, your timezone has been set to %s. You'll receive reminders at %s and %s in your local time.",
		name, zone, ClockHour(c.MorningHour), ClockHour(c.EveningHour))
}

// TimezoneUsage explains the settz command
func (c Catalog) TimezoneUsage() string {
	return fmt.Sprintf("Please provide a timezone. Example: `%ssettz America/New_York`", c.Prefix)
}

// UnknownTimezone reports a zone that failed validation
func (c Catalog) UnknownTimezone(zone string) string {
	return fmt.Sprintf("Unknown timezone: %s. Please use a valid timezone from the IANA timezone database.", zone)
}

// BestScore reports the caller's best score today
func (c Catalog) BestScore(name string, guesses int) string {
	return fmt.Sprintf("%s, your best %s score today is %d guesses.", name, c.Game, guesses)
}

// NoScore reports that the caller has not submitted today
func (c Catalog) NoScore(name string) string {
	return fmt.Sprintf("%s, you haven't submitted a %s score today.", name, c.Game)
}

// Standings renders the current leaderboard
func (c Catalog) Standings(board domain.Leaderboard) string {
	if len(board.Entries) == 0 {
		return "No scores have been submitted today."
	}
	return leaderboard.Format(fmt.Sprintf("%s Leaderboard for %s", c.Game, board.Date), board)
}

// Help lists the available commands
func (c Catalog) Help() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s Bot Commands**\n\n", c.Game)
	fmt.Fprintf(&b, "• `%ssettz <timezone>` - Set your timezone (e.g., `%ssettz America/New_York`)\n", c.Prefix, c.Prefix)
	fmt.Fprintf(&b, "• `%sscore` - Check your current %s score\n", c.Prefix, c.Game)
	fmt.Fprintf(&b, "• `%sleaderboard` - Show the current day's leaderboard\n", c.Prefix)
	fmt.Fprintf(&b, "• `%shelp` - Show this help message\n\n", c.Prefix)
	fmt.Fprintf(&b, "You can also simply share your %s score in the channel and I'll record it automatically!", c.Game)
	return b.String()
}

// NoScoresToday is announced at rollover when nobody played
func (c Catalog) NoScoresToday() string {
	return fmt.Sprintf("No %s scores were submitted today.", c.Game)
}

// Winner announces the day's best score
func (c Catalog) Winner(date string, winner domain.LeaderboardEntry) string {
	return fmt.Sprintf("🏆 **%s Winner for %s** 🏆\n\nCongratulations to %s who solved today's %s in just %d guesses!",
		c.Game, date, domain.Mention(winner.UserID), c.Game, winner.Guesses)
}

// FinalStandings renders the closing leaderboard
func (c Catalog) FinalStandings(board domain.Leaderboard) string {
	return leaderboard.Format("Final Leaderboard", board)
}

// MorningReminder nudges users to play
func (c Catalog) MorningReminder(userIDs []string) string {
	return fmt.Sprintf("Good morning %s! Don't forget to play %s today: %s", mentions(userIDs), c.Game, c.URL)
}

// EveningReminder asks users to share their score
func (c Catalog) EveningReminder(userIDs []string) string {
	return fmt.Sprintf("Hey %s! Have you played %s today? If so, share your score!", mentions(userIDs), c.Game)
}

// Startup is posted once when the bot comes online
func (c Catalog) Startup() string {
	return fmt.Sprintf("%s Bot is now active! Default timezone is %s.\nUse `%shelp` to see available commands.", c.Game, c.Timezone, c.Prefix)
}

// Failure is returned to a command when storage is unavailable
func (c Catalog) Failure() string {
	return "Sorry, something went wrong. Please try again later."
}

// ClockHour renders a 24h hour as 12h text, e.g. 21 -> "9pm"
func ClockHour(hour int) string {
	suffix := "am"
	if hour >= 12 {
		suffix = "pm"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d%s", h, suffix)
}

func mentions(userIDs []string) string {
	parts := make([]string, len(userIDs))
	for i, id := range userIDs {
		parts[i] = domain.Mention(id)
	}
	return strings.Join(parts, " ")
}
