// Package advisor is the entry point shared by the HTTP server, the A2A
// handler and the CLI. It validates a submission, serves repeats from the
// memo cache, runs the workflow and records the result in the session.
package advisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/cache"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/metrics"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/pipeline"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/session"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/validation"
)

// TryAgainMessage is shown when a run fails for any reason other than input.
const TryAgainMessage = "Something went wrong, please try again."

type PipelineRunner interface {
	Run(ctx context.Context, g *pipeline.Graph, req models.Request) (*models.PipelineResult, error)
}

type Advisor struct {
	runner   PipelineRunner
	guide    *pipeline.Graph
	insights *pipeline.Graph
	memo     cache.Store
	flight   singleflight.Group
}

func New(runner PipelineRunner, guide, insights *pipeline.Graph, memo cache.Store) *Advisor {
	if memo == nil {
		memo = cache.NewMemoryStore()
	}
	return &Advisor{runner: runner, guide: guide, insights: insights, memo: memo}
}

// Ask answers a guide question, optionally tailored to a profile. On success
// the result is committed to st when st is not nil.
func (a *Advisor) Ask(ctx context.Context, st *session.State, question string, profile *models.Profile) (*models.PipelineResult, error) {
	if err := validation.Validate(question); err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	if profile.IsEmpty() {
		profile = nil
	}

	req := models.Request{Question: question, Profile: profile}
	res, err := a.run(ctx, a.guide, req)
	if err != nil {
		return nil, err
	}
	if st != nil {
		st.CommitGuide(req, res)
	}
	return res, nil
}

// Explore reports on an insights topic. On success the result is committed
// to st when st is not nil.
func (a *Advisor) Explore(ctx context.Context, st *session.State, topic string) (*models.PipelineResult, error) {
	if err := validation.Validate(topic); err != nil {
		return nil, err
	}

	req := models.Request{Question: topic}
	res, err := a.run(ctx, a.insights, req)
	if err != nil {
		return nil, err
	}
	if st != nil {
		st.CommitInsight(req, res)
	}
	return res, nil
}

func (a *Advisor) run(ctx context.Context, g *pipeline.Graph, req models.Request) (*models.PipelineResult, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: workflow", pipeline.ErrNotConfigured)
	}
	key := cache.Key(g.Name, req)

	if res, ok := a.lookup(ctx, g.Name, key); ok {
		return res, nil
	}

	// the shared run outlives any one caller; stage timeouts bound it
	runCtx := context.WithoutCancel(ctx)
	ch := a.flight.DoChan(key, func() (any, error) {
		// a concurrent run may have finished between lookup and DoChan
		if res, ok := a.lookup(runCtx, g.Name, key); ok {
			return res, nil
		}

		res, err := a.runner.Run(runCtx, g, req)
		if err != nil {
			return nil, err
		}
		if err := a.memo.Set(runCtx, key, res); err != nil {
			log.Warn().Err(err).Str("workflow", string(g.Name)).Msg("failed to cache result")
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		if r.Shared {
			log.Debug().Str("workflow", string(g.Name)).Msg("joined in-flight run")
		}
		return r.Val.(*models.PipelineResult), nil
	}
}

func (a *Advisor) lookup(ctx context.Context, wf models.WorkflowName, key string) (*models.PipelineResult, bool) {
	res, err := a.memo.Get(ctx, key)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues(string(wf), "hit").Inc()
		log.Debug().Str("workflow", string(wf)).Msg("serving cached result")
		return res, true
	case errors.Is(err, cache.ErrMiss):
		metrics.CacheLookups.WithLabelValues(string(wf), "miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues(string(wf), "error").Inc()
		log.Warn().Err(err).Str("workflow", string(wf)).Msg("cache lookup failed")
	}
	return nil, false
}

// UserMessage maps an Ask or Explore error to the text shown to the user.
func UserMessage(err error, noun string) string {
	if errors.Is(err, models.ErrInvalidInput) {
		return validation.Message(err, noun)
	}
	return TryAgainMessage
}
