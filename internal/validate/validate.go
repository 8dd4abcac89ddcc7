// Package validate checks request fields before they reach the services.
package validate

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Error reports a single invalid field.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &Error{Field: field, Message: "is required"}
	}
	return nil
}

// Length checks that value has between min and max characters.
func Length(field, value string, min, max int) error {
	n := utf8.RuneCountInString(value)
	if n < min {
		if min == 1 {
			return &Error{Field: field, Message: "is required"}
		}
		return &Error{Field: field, Message: fmt.Sprintf("must be at least %d characters", min)}
	}
	if n > max {
		return &Error{Field: field, Message: fmt.Sprintf("must be at most %d characters", max)}
	}
	return nil
}

func Email(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value, "@") {
		return &Error{Field: field, Message: "must be a valid email address"}
	}
	return nil
}

// Password enforces bcrypt's 72 byte input limit on top of a minimum length.
func Password(field, value string) error {
	if utf8.RuneCountInString(value) < 8 {
		return &Error{Field: field, Message: "must be at least 8 characters"}
	}
	if len(value) > 72 {
		return &Error{Field: field, Message: "must be at most 72 bytes"}
	}
	return nil
}

// First returns the first non-nil error.
func First(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
