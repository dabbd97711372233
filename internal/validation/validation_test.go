package validation

import (
	"fmt"
	"testing"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"empty", "", ErrEmpty},
		{"digits", "123456", ErrNoLetters},
		{"punctuation", "?!.,;", ErrNoLetters},
		{"whitespace", "   \n\t", ErrNoLetters},
		{"mixed symbols", "$500,000 - 2021?", ErrNoLetters},
		{"question", "What grants am I eligible for?", nil},
		{"single letter", "a", nil},
		{"non-latin letters", "组屋转售", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.text)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Please enter a question", Message(ErrEmpty, "question"))
	assert.Equal(t, "Please enter a valid topic/question", Message(ErrNoLetters, "topic/question"))

	age := 10
	_, err := models.NewProfile(&age, nil, "")
	assert.Equal(t, "age must be between 18 and 120", Message(err, "question"))

	wrapped := fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	assert.Equal(t, "age must be between 18 and 120", Message(wrapped, "question"))
}
