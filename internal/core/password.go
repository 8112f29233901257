package core

import (
	"errors"
	"unicode"
)

var ErrWeakPassword = errors.New("password must contain 1 uppercase, 1 lowercase and at least 6 characters")

const minPasswordLength = 6

// ValidatePassword enforces the sign-up password rule: at least one upper
// case letter, one lower case letter and six characters.
func ValidatePassword(password string) error {
	var upper, lower bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		}
	}
	if !upper || !lower || len([]rune(password)) < minPasswordLength {
		return ErrWeakPassword
	}
	return nil
}
