package pipeline

import (
	"errors"
	"fmt"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/prompts"
)

var ErrInvalidGraph = errors.New("invalid stage graph")

// Stage is one declared unit of work. After lists the stages whose outputs
// it consumes; it receives those outputs and nothing else.
type Stage struct {
	Kind     models.StageKind
	After    []models.StageKind
	Template *prompts.Template
}

// Graph is a validated stage DAG for one workflow.
type Graph struct {
	Name       models.WorkflowName
	Sequential bool

	stages []Stage
	levels [][]Stage
}

// NewGraph validates the stages and groups them into execution levels.
// Stages in the same level have no dependency on each other. A sequential
// graph runs one stage at a time in declaration order, so every predecessor
// must be declared before the stage that uses it.
func NewGraph(name models.WorkflowName, sequential bool, stages ...Stage) (*Graph, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: %s has no stages", ErrInvalidGraph, name)
	}

	declared := make(map[models.StageKind]int, len(stages))
	for i, s := range stages {
		if !s.Kind.Valid() {
			return nil, fmt.Errorf("%w: %s: unknown stage kind %q", ErrInvalidGraph, name, s.Kind)
		}
		if _, dup := declared[s.Kind]; dup {
			return nil, fmt.Errorf("%w: %s: stage %s declared twice", ErrInvalidGraph, name, s.Kind)
		}
		declared[s.Kind] = i
	}

	for i, s := range stages {
		for _, dep := range s.After {
			j, ok := declared[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s: stage %s depends on undeclared stage %s", ErrInvalidGraph, name, s.Kind, dep)
			}
			if dep == s.Kind {
				return nil, fmt.Errorf("%w: %s: stage %s depends on itself", ErrInvalidGraph, name, s.Kind)
			}
			if sequential && j > i {
				return nil, fmt.Errorf("%w: %s: stage %s runs before its predecessor %s", ErrInvalidGraph, name, s.Kind, dep)
			}
		}
	}

	levels, err := computeLevels(stages)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidGraph, name, err)
	}
	if sequential {
		levels = make([][]Stage, len(stages))
		for i, s := range stages {
			levels[i] = []Stage{s}
		}
	}

	return &Graph{
		Name:       name,
		Sequential: sequential,
		stages:     append([]Stage(nil), stages...),
		levels:     levels,
	}, nil
}

// computeLevels runs Kahn's algorithm one frontier at a time. Each frontier
// is a level; declaration order is kept within a level.
func computeLevels(stages []Stage) ([][]Stage, error) {
	inDegree := make(map[models.StageKind]int, len(stages))
	dependents := make(map[models.StageKind][]models.StageKind)
	for _, s := range stages {
		inDegree[s.Kind] = len(s.After)
		for _, dep := range s.After {
			dependents[dep] = append(dependents[dep], s.Kind)
		}
	}

	var levels [][]Stage
	placed := 0
	for placed < len(stages) {
		var level []Stage
		for _, s := range stages {
			if d, ok := inDegree[s.Kind]; ok && d == 0 {
				level = append(level, s)
			}
		}
		if len(level) == 0 {
			return nil, errors.New("stage dependency graph contains a cycle")
		}
		for _, s := range level {
			delete(inDegree, s.Kind)
			for _, next := range dependents[s.Kind] {
				inDegree[next]--
			}
		}
		placed += len(level)
		levels = append(levels, level)
	}
	return levels, nil
}

func (g *Graph) Stages() []Stage {
	return append([]Stage(nil), g.stages...)
}

func (g *Graph) Levels() [][]Stage {
	out := make([][]Stage, len(g.levels))
	for i, l := range g.levels {
		out[i] = append([]Stage(nil), l...)
	}
	return out
}
