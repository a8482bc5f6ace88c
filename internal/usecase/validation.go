package usecase

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	examNoLength = 15
	nameMinLen   = 2
	nameMaxLen   = 50
)

var (
	nonDigitRe = regexp.MustCompile(`\D`)
	// Arabic script plus whitespace, matched against the entire input.
	arabicNameRe = regexp.MustCompile(`^[\x{0600}-\x{06FF}\x{0750}-\x{077F}\x{08A0}-\x{08FF}\s]+$`)
)

// CleanExamNumber strips every non-digit character and validates the rest.
// Only inputs that reduce to exactly 15 digits are accepted.
func CleanExamNumber(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	cleaned := nonDigitRe.ReplaceAllString(strings.TrimSpace(raw), "")
	if len(cleaned) != examNoLength {
		return "", false
	}
	return cleaned, true
}

// CleanArabicName trims and collapses internal whitespace, then validates the
// result: 2..50 characters, Arabic script only.
func CleanArabicName(raw string) (string, bool) {
	cleaned := strings.Join(strings.Fields(raw), " ")
	if cleaned == "" {
		return "", false
	}
	n := len([]rune(cleaned))
	if n < nameMinLen || n > nameMaxLen {
		return "", false
	}
	if !arabicNameRe.MatchString(cleaned) {
		return "", false
	}
	return cleaned, true
}

// IsSpamInput flags obviously abusive input: a run of 6+ identical characters,
// more than 100 characters, or digit density above 70%. A string that cleans
// to a valid exam number is never spam, whatever its digit density.
func IsSpamInput(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	runes := []rune(text)
	if len(runes) > 100 {
		return true
	}
	if hasRepeatedRun(runes, 6) {
		return true
	}
	if _, ok := CleanExamNumber(text); ok {
		return false
	}
	digits := 0
	for _, r := range runes {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return float64(digits) > float64(len(runes))*0.7
}

func hasRepeatedRun(runes []rune, n int) bool {
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
