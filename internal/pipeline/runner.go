package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/metrics"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

type Runner struct {
	exec StageExecutor
}

func NewRunner(exec StageExecutor) *Runner {
	return &Runner{exec: exec}
}

// Run executes the graph level by level. Stages within a level run
// concurrently; a level starts only after the previous one has finished.
// The first stage error cancels the level and aborts the run, and no partial
// result is returned.
func (r *Runner) Run(ctx context.Context, g *Graph, req models.Request) (*models.PipelineResult, error) {
	start := time.Now()
	outputs := make(map[models.StageKind]models.StageOutput, len(g.stages))

	for _, level := range g.levels {
		upstream, err := levelInputs(level, outputs)
		if err != nil {
			metrics.PipelineRuns.WithLabelValues(string(g.Name), "failed").Inc()
			return nil, fmt.Errorf("%w: %w", ErrStageFailed, err)
		}

		results := make([]models.StageOutput, len(level))
		eg, egCtx := errgroup.WithContext(ctx)
		for i, st := range level {
			eg.Go(func() error {
				out, err := r.exec.Execute(egCtx, g.Name, st, req, upstream[i])
				if err != nil {
					return err
				}
				out.Stage = st.Kind
				results[i] = out
				return nil
			})
		}

		if err := eg.Wait(); err != nil {
			metrics.PipelineRuns.WithLabelValues(string(g.Name), "failed").Inc()
			return nil, err
		}
		for i, st := range level {
			outputs[st.Kind] = results[i]
		}
	}

	result := &models.PipelineResult{Workflow: g.Name, Outputs: make([]models.StageOutput, 0, len(g.stages))}
	for _, st := range g.stages {
		result.Outputs = append(result.Outputs, outputs[st.Kind])
	}

	metrics.PipelineRuns.WithLabelValues(string(g.Name), "completed").Inc()
	log.Info().Str("workflow", string(g.Name)).Dur("elapsed", time.Since(start)).Msg("pipeline completed")
	return result, nil
}

// levelInputs resolves the predecessor outputs of every stage in a level
// before any of them starts.
func levelInputs(level []Stage, outputs map[models.StageKind]models.StageOutput) ([]map[models.StageKind]models.StageOutput, error) {
	all := make([]map[models.StageKind]models.StageOutput, len(level))
	for i, st := range level {
		upstream := make(map[models.StageKind]models.StageOutput, len(st.After))
		for _, dep := range st.After {
			o, found := outputs[dep]
			if !found {
				return nil, fmt.Errorf("%w: %s needs %s", ErrMissingInput, st.Kind, dep)
			}
			upstream[dep] = o
		}
		all[i] = upstream
	}
	return all, nil
}
