package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const MinPasswordLength = 8

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "passw0rd": {},
	"12345678": {}, "123456789": {}, "1234567890": {}, "qwerty123": {},
	"qwertyuiop": {}, "iloveyou": {}, "sunshine": {}, "princess": {},
	"football": {}, "baseball": {}, "welcome1": {}, "admin123": {},
	"letmein1": {}, "trustno1": {}, "superman": {}, "11111111": {},
}

// ValidatePassword applies the password strength policy and returns one
// message per failed rule. attributes are user fields the password must
// not resemble (username, email).
func ValidatePassword(password string, attributes ...string) []string {
	var problems []string

	if utf8.RuneCountInString(password) < MinPasswordLength {
		problems = append(problems, "This password is too short. It must contain at least 8 characters.")
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		problems = append(problems, "This password is too common.")
	}

	if password != "" && strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) == -1 {
		problems = append(problems, "This password is entirely numeric.")
	}

	if tooSimilar(password, attributes) {
		problems = append(problems, "The password is too similar to your personal information.")
	}

	return problems
}

func tooSimilar(password string, attributes []string) bool {
	lowered := strings.ToLower(password)
	for _, attr := range attributes {
		attr = strings.ToLower(attr)
		if at := strings.IndexByte(attr, '@'); at > 0 {
			attr = attr[:at]
		}
		if utf8.RuneCountInString(attr) < 3 {
			continue
		}
		if lowered == attr || (strings.Contains(lowered, attr) && utf8.RuneCountInString(attr)*10 >= utf8.RuneCountInString(lowered)*7) {
			return true
		}
	}
	return false
}
