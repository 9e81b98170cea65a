// Package parser extracts a guess count from free-text game result messages.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

// fallbackLimit is the exclusive upper bound for the bare-number fallback
const fallbackLimit = 100

var (
	solvedInPattern = regexp.MustCompile(`(?i)(?:got|solved|finished)(?:\s+it)?\s+in\s+(\d+)`)
	ratioPattern    = regexp.MustCompile(`(\d+)\s*/\s*\d+`)
	guessesPattern  = regexp.MustCompile(`(?i)(\d+)\s+guess(?:es)?`)
	numberPattern   = regexp.MustCompile(`\b\d+\b`)
)

// Parser recognises score messages for a single game
type Parser struct {
	keyword string
}

// New creates a parser that only considers messages mentioning keyword
func New(keyword string) *Parser {
	return &Parser{keyword: strings.ToLower(keyword)}
}

// Parse returns the guess count in text. The first matching form wins:
// "solved it in N", "N/M", "N guesses", then the first bare number below 100.
func (p *Parser) Parse(text string) (int, bool) {
	if !strings.Contains(strings.ToLower(text), p.keyword) {
		return 0, false
	}

	for _, re := range []*regexp.Regexp{solvedInPattern, ratioPattern, guessesPattern} {
		if m := re.FindStringSubmatch(text); m != nil {
			return atoi(m[1])
		}
	}

	for _, m := range numberPattern.FindAllString(text, -1) {
		if n, ok := atoi(m); ok && n < fallbackLimit {
			return n, true
		}
	}
	return 0, false
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
