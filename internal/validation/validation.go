// Package validation rejects submissions before any workflow is invoked.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

var (
	ErrEmpty     = fmt.Errorf("%w: empty question", models.ErrInvalidInput)
	ErrNoLetters = fmt.Errorf("%w: question has no letters", models.ErrInvalidInput)
)

// Validate accepts text that is non-empty and contains at least one letter.
func Validate(text string) error {
	if text == "" {
		return ErrEmpty
	}
	if !strings.ContainsFunc(text, unicode.IsLetter) {
		return ErrNoLetters
	}
	return nil
}

// Message returns the user-facing text for a validation error, using the
// given noun ("question" or "topic/question").
func Message(err error, noun string) string {
	switch {
	case errors.Is(err, ErrEmpty):
		return fmt.Sprintf("Please enter a %s", noun)
	case errors.Is(err, ErrNoLetters):
		return fmt.Sprintf("Please enter a valid %s", noun)
	case errors.Is(err, models.ErrInvalidProfile):
		msg := err.Error()
		prefix := models.ErrInvalidProfile.Error() + ": "
		if i := strings.LastIndex(msg, prefix); i >= 0 {
			msg = msg[i+len(prefix):]
		}
		return msg
	}
	return "Please check your input"
}
