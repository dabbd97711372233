// Package chart describes charts as data and renders them with fixed
// renderers. Nothing in a Spec is executed.
package chart

import (
	"errors"
	"fmt"
	"math"
)

type Kind string

const (
	KindLine Kind = "line"
	KindBar  Kind = "bar"
)

// NoChartMessage is shown whenever a chart cannot be produced or rendered.
const NoChartMessage = "Sorry, there are no available graphs"

var ErrInvalidSpec = errors.New("invalid chart spec")

type Point struct {
	X string  `json:"x"`
	Y float64 `json:"y"`
}

type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

type Spec struct {
	Kind   Kind     `json:"kind"`
	Title  string   `json:"title"`
	XLabel string   `json:"x_label"`
	YLabel string   `json:"y_label"`
	Series []Series `json:"series"`
}

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindLine, KindBar:
		return Kind(s), true
	}
	return "", false
}

func (s *Spec) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil spec", ErrInvalidSpec)
	}
	if _, ok := ParseKind(string(s.Kind)); !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}
	if len(s.Series) == 0 {
		return fmt.Errorf("%w: no series", ErrInvalidSpec)
	}
	for _, series := range s.Series {
		if len(series.Points) == 0 {
			return fmt.Errorf("%w: series %q has no points", ErrInvalidSpec, series.Name)
		}
		for _, p := range series.Points {
			if math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
				return fmt.Errorf("%w: series %q has a non-finite value at %q", ErrInvalidSpec, series.Name, p.X)
			}
		}
	}
	return nil
}

// Bounds returns the min and max Y over all series.
func (s *Spec) Bounds() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, series := range s.Series {
		for _, p := range series.Points {
			lo = math.Min(lo, p.Y)
			hi = math.Max(hi, p.Y)
		}
	}
	return lo, hi
}

// Values lists every Y value in the spec.
func (s *Spec) Values() []float64 {
	var out []float64
	for _, series := range s.Series {
		for _, p := range series.Points {
			out = append(out, p.Y)
		}
	}
	return out
}
