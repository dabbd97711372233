package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/advisor"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/validation"
)

func TestUserError(t *testing.T) {
	assert.EqualError(t, userError(validation.ErrNoLetters, "question"), "Please enter a valid question")
	assert.EqualError(t, userError(validation.ErrEmpty, "topic/question"), "Please enter a topic/question")

	_, err := models.NewProfile(nil, nil, "Widowed")
	assert.EqualError(t, userError(err, "question"), `marital status must be Single or Married, got "Widowed"`)

	err = userError(errors.New("stage write failed"), "question")
	assert.ErrorContains(t, err, advisor.TryAgainMessage)
}

func TestPrintSources(t *testing.T) {
	var buf bytes.Buffer
	printSources(&buf, nil)
	assert.Empty(t, buf.String())

	printSources(&buf, []string{"https://www.hdb.gov.sg/residential/buying-a-flat"})
	assert.Contains(t, buf.String(), "Sources")
	assert.Contains(t, buf.String(), "https://www.hdb.gov.sg/residential/buying-a-flat")
}

func TestCommandsRegistered(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"ask", "insights", "load"})
}
