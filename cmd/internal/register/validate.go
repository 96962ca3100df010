package register

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrInvalid is the kind of every local validation failure.
var ErrInvalid = errors.New("invalid")

// FieldError names the field that failed validation.
type FieldError struct {
	Field string
	Msg   string
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Msg }

func (e *FieldError) Unwrap() error { return ErrInvalid }

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 8

// NewPassword is a password entered twice.
type NewPassword struct {
	Password     string
	Confirmation string
}

// Valid reports whether the password is long enough and both entries match
// exactly.
func (p NewPassword) Valid() bool {
	if utf8.RuneCountInString(p.Password) < MinPasswordLength {
		return false
	}
	return p.Password == p.Confirmation
}

// ValidateUsername trims username and checks it is 3 to 16 ASCII letters or
// digits. It returns the trimmed value.
func ValidateUsername(username string) (string, error) {
	v := strings.TrimSpace(username)
	switch {
	case len(v) < 3:
		return "", &FieldError{Field: "username", Msg: "must be at least 3 characters long"}
	case len(v) > 16:
		return "", &FieldError{Field: "username", Msg: "must be at most 16 characters long"}
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return "", &FieldError{Field: "username", Msg: "must only contain alphanumeric characters"}
		}
	}
	return v, nil
}

// ValidateEmail trims email and checks its length (3 to 320 bytes) and that
// it contains an @. It returns the trimmed value.
func ValidateEmail(email string) (string, error) {
	v := strings.TrimSpace(email)
	switch {
	case len(v) < 3:
		return "", &FieldError{Field: "email", Msg: "must be at least 3 characters long"}
	case len(v) > 320:
		return "", &FieldError{Field: "email", Msg: "must be at most 320 characters long"}
	case !strings.Contains(v, "@"):
		return "", &FieldError{Field: "email", Msg: "must contain an @"}
	}
	return v, nil
}
