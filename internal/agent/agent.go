// Package agent holds the A2A agent card served at /.well-known/agent.json.
package agent

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

//go:embed agent.json
var cardJSON []byte

// AgentCardData is the validated card, set by LoadAgentCard.
var AgentCardData []byte

type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
}

type Card struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	URL         string  `json:"url"`
	Version     string  `json:"version"`
	Skills      []Skill `json:"skills"`
}

var (
	loadOnce sync.Once
	loadErr  error
	card     Card
)

// LoadAgentCard parses and checks the embedded card once.
func LoadAgentCard() error {
	loadOnce.Do(func() {
		if err := json.Unmarshal(cardJSON, &card); err != nil {
			loadErr = fmt.Errorf("failed to parse agent card: %w", err)
			return
		}
		if card.Name == "" || card.URL == "" || len(card.Skills) == 0 {
			loadErr = errors.New("agent card needs a name, url and at least one skill")
			return
		}
		AgentCardData = cardJSON
	})
	return loadErr
}

// AgentCard returns the parsed card.
func AgentCard() (Card, error) {
	if err := LoadAgentCard(); err != nil {
		return Card{}, err
	}
	return card, nil
}
