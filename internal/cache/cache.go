// Package cache memoizes pipeline results by exact submission. Entries never
// expire and are never invalidated.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

var ErrMiss = errors.New("cache miss")

type Store interface {
	Get(ctx context.Context, key string) (*models.PipelineResult, error)
	Set(ctx context.Context, key string, result *models.PipelineResult) error
}

// Key identifies a submission: the workflow, the exact question text and
// the supplied profile fields.
func Key(workflow models.WorkflowName, req models.Request) string {
	h := sha256.New()
	h.Write([]byte(workflow))
	h.Write([]byte{0})
	h.Write([]byte(req.Question))
	h.Write([]byte{0})
	h.Write([]byte(req.Profile.Describe()))
	return string(workflow) + ":" + hex.EncodeToString(h.Sum(nil))
}

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.PipelineResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*models.PipelineResult)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*models.PipelineResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	return r, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, result *models.PipelineResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = result
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
