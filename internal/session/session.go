// Package session keeps the last successful result of each page per user.
// A State is only ever replaced whole, after a pipeline has completed.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/chart"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/metrics"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

type Page string

const (
	PageGuide    Page = "guide"
	PageInsights Page = "insights"
)

// GuideRecord is the last answered guide question.
type GuideRecord struct {
	Question string          `json:"question"`
	Profile  *models.Profile `json:"profile,omitempty"`
	Answer   string          `json:"answer"`
	Sources  []string        `json:"sources,omitempty"`
	At       time.Time       `json:"at"`
}

// InsightRecord is the last answered insights topic.
type InsightRecord struct {
	Topic  string      `json:"topic"`
	Report string      `json:"report"`
	Chart  *chart.Spec `json:"chart,omitempty"`
	At     time.Time   `json:"at"`
}

type Snapshot struct {
	ID      string         `json:"id"`
	Guide   *GuideRecord   `json:"guide,omitempty"`
	Insight *InsightRecord `json:"insight,omitempty"`
}

type State struct {
	id string

	mu      sync.RWMutex
	guide   *GuideRecord
	insight *InsightRecord
}

func (s *State) ID() string { return s.id }

// CommitGuide replaces the guide record with a completed result.
func (s *State) CommitGuide(req models.Request, res *models.PipelineResult) {
	final, _ := res.Output(models.StageWrite)
	rec := &GuideRecord{
		Question: req.Question,
		Profile:  req.Profile,
		Answer:   final.Text,
		Sources:  final.Sources,
		At:       time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.guide = rec
}

// CommitInsight replaces the insights record with a completed result.
func (s *State) CommitInsight(req models.Request, res *models.PipelineResult) {
	rec := &InsightRecord{
		Topic:  req.Question,
		Report: res.Final(),
		Chart:  res.Chart(),
		At:     time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.insight = rec
}

func (s *State) ClearGuide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guide = nil
}

func (s *State) ClearInsight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insight = nil
}

func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guide, s.insight = nil, nil
}

// ClearPage clears one page, or both when page is empty.
func (s *State) ClearPage(page Page) bool {
	switch page {
	case PageGuide:
		s.ClearGuide()
	case PageInsights:
		s.ClearInsight()
	case "":
		s.Clear()
	default:
		return false
	}
	return true
}

// Snapshot returns the current records. Records are never mutated after a
// commit, so the pointers are safe to share.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{ID: s.id, Guide: s.guide, Insight: s.insight}
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*State)}
}

func (s *Store) Get(id string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	return st, ok
}

// Resolve returns the session for id, creating a new one (with a fresh id)
// when id is empty or unknown.
func (s *Store) Resolve(id string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.sessions[id]; ok {
		return st
	}
	st := &State{id: uuid.NewString()}
	s.sessions[st.id] = st
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return st
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
