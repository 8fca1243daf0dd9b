package auth

import (
	"strings"
	"unicode"
)

// StrengthAdvice is advisory only; it never blocks a password change.
type StrengthAdvice struct {
	Score       int // 0 (weak) .. 4 (strong)
	Suggestions []string
}

type StrengthAdvisor interface {
	Advise(password string) StrengthAdvice
}

// ClassAdvisor scores length and character-class diversity.
type ClassAdvisor struct{}

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "12345678": {},
	"123456789": {}, "qwerty123": {}, "letmein": {}, "welcome1": {},
	"admin123": {}, "iloveyou": {},
}

func (ClassAdvisor) Advise(password string) StrengthAdvice {
	var lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	var advice StrengthAdvice
	classes := 0
	for _, c := range []struct {
		has bool
		tip string
	}{
		{lower, "add lowercase letters"},
		{upper, "add uppercase letters"},
		{digit, "add digits"},
		{symbol, "add symbols"},
	} {
		if c.has {
			classes++
		} else {
			advice.Suggestions = append(advice.Suggestions, c.tip)
		}
	}

	n := len([]rune(password))
	switch {
	case n >= 16:
		advice.Score = 2
	case n >= 12:
		advice.Score = 1
	default:
		advice.Suggestions = append(advice.Suggestions, "use at least 12 characters")
	}
	if classes >= 3 {
		advice.Score++
	}
	if classes == 4 {
		advice.Score++
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		advice.Score = 0
		advice.Suggestions = append(advice.Suggestions, "avoid common passwords")
	}
	if advice.Score > 4 {
		advice.Score = 4
	}
	return advice
}
