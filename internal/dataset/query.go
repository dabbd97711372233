package dataset

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidQuery = errors.New("invalid query")

type Metric string

const (
	MetricAvgPrice       Metric = "avg_price"
	MetricMedianPrice    Metric = "median_price"
	MetricMinPrice       Metric = "min_price"
	MetricMaxPrice       Metric = "max_price"
	MetricCount          Metric = "count"
	MetricAvgPricePerSqm Metric = "avg_price_per_sqm"
)

var Metrics = []Metric{MetricAvgPrice, MetricMedianPrice, MetricMinPrice, MetricMaxPrice, MetricCount, MetricAvgPricePerSqm}

type GroupBy string

const (
	GroupYear        GroupBy = "year"
	GroupMonth       GroupBy = "month"
	GroupTown        GroupBy = "town"
	GroupFlatType    GroupBy = "flat_type"
	GroupStoreyRange GroupBy = "storey_range"
	GroupNone        GroupBy = "none"
)

var GroupBys = []GroupBy{GroupYear, GroupMonth, GroupTown, GroupFlatType, GroupStoreyRange, GroupNone}

// Query is the structured form of an analysis request. Empty filters match
// everything.
type Query struct {
	Metric       Metric   `json:"metric"`
	GroupBy      GroupBy  `json:"group_by"`
	Towns        []string `json:"towns,omitempty"`
	FlatTypes    []string `json:"flat_types,omitempty"`
	FlatModels   []string `json:"flat_models,omitempty"`
	StoreyRanges []string `json:"storey_ranges,omitempty"`
	FromYear     int      `json:"from_year,omitempty"`
	ToYear       int      `json:"to_year,omitempty"`
	MinFloorArea float64  `json:"min_floor_area,omitempty"`
	MaxFloorArea float64  `json:"max_floor_area,omitempty"`
}

func (q Query) Validate() error {
	if !validMetric(q.Metric) {
		return fmt.Errorf("%w: unknown metric %q", ErrInvalidQuery, q.Metric)
	}
	if !validGroupBy(q.GroupBy) {
		return fmt.Errorf("%w: unknown group_by %q", ErrInvalidQuery, q.GroupBy)
	}
	if q.FromYear != 0 && q.ToYear != 0 && q.FromYear > q.ToYear {
		return fmt.Errorf("%w: from_year %d after to_year %d", ErrInvalidQuery, q.FromYear, q.ToYear)
	}
	if q.MinFloorArea < 0 || q.MaxFloorArea < 0 || (q.MaxFloorArea > 0 && q.MinFloorArea > q.MaxFloorArea) {
		return fmt.Errorf("%w: bad floor area bounds", ErrInvalidQuery)
	}
	return nil
}

// Broaden relaxes the query once: it drops the narrowest filters present
// (storey, model, floor area), else the flat types, else the period. It
// reports false when there is nothing left to relax.
func Broaden(q Query) (Query, bool) {
	b := q
	b.Towns = append([]string(nil), q.Towns...)

	if len(q.StoreyRanges) > 0 || len(q.FlatModels) > 0 || q.MinFloorArea > 0 || q.MaxFloorArea > 0 {
		b.StoreyRanges, b.FlatModels = nil, nil
		b.MinFloorArea, b.MaxFloorArea = 0, 0
		b.FlatTypes = append([]string(nil), q.FlatTypes...)
		return b, true
	}
	if len(q.FlatTypes) > 0 {
		b.FlatTypes = nil
		return b, true
	}
	if q.FromYear != 0 || q.ToYear != 0 {
		b.FromYear, b.ToYear = 0, 0
		return b, true
	}
	return q, false
}

// Describe renders the filters for humans.
func (q Query) Describe() string {
	var parts []string
	if len(q.Towns) > 0 {
		parts = append(parts, "town "+strings.Join(q.Towns, ", "))
	}
	if len(q.FlatTypes) > 0 {
		parts = append(parts, "flat type "+strings.Join(q.FlatTypes, ", "))
	}
	if len(q.FlatModels) > 0 {
		parts = append(parts, "flat model "+strings.Join(q.FlatModels, ", "))
	}
	if len(q.StoreyRanges) > 0 {
		parts = append(parts, "storey "+strings.Join(q.StoreyRanges, ", "))
	}
	switch {
	case q.FromYear != 0 && q.ToYear != 0:
		parts = append(parts, fmt.Sprintf("years %d-%d", q.FromYear, q.ToYear))
	case q.FromYear != 0:
		parts = append(parts, fmt.Sprintf("from %d", q.FromYear))
	case q.ToYear != 0:
		parts = append(parts, fmt.Sprintf("up to %d", q.ToYear))
	}
	if q.MinFloorArea > 0 || q.MaxFloorArea > 0 {
		parts = append(parts, fmt.Sprintf("floor area %.0f-%.0f sqm", q.MinFloorArea, q.MaxFloorArea))
	}
	if len(parts) == 0 {
		return "all transactions"
	}
	return strings.Join(parts, "; ")
}

func (m Metric) Label() string {
	switch m {
	case MetricAvgPrice:
		return "Average resale price (SGD)"
	case MetricMedianPrice:
		return "Median resale price (SGD)"
	case MetricMinPrice:
		return "Lowest resale price (SGD)"
	case MetricMaxPrice:
		return "Highest resale price (SGD)"
	case MetricCount:
		return "Number of transactions"
	case MetricAvgPricePerSqm:
		return "Average price per sqm (SGD)"
	}
	return string(m)
}

func (g GroupBy) Label() string {
	switch g {
	case GroupYear:
		return "Year"
	case GroupMonth:
		return "Month"
	case GroupTown:
		return "Town"
	case GroupFlatType:
		return "Flat type"
	case GroupStoreyRange:
		return "Storey range"
	}
	return "Scope"
}

// Temporal reports whether the grouping is a time axis.
func (g GroupBy) Temporal() bool {
	return g == GroupYear || g == GroupMonth
}

func validMetric(m Metric) bool {
	for _, v := range Metrics {
		if v == m {
			return true
		}
	}
	return false
}

func validGroupBy(g GroupBy) bool {
	for _, v := range GroupBys {
		if v == g {
			return true
		}
	}
	return false
}

func joinNames[T ~string](vals []T) string {
	s := make([]string, len(vals))
	for i, v := range vals {
		s[i] = `"` + string(v) + `"`
	}
	return strings.Join(s, ", ")
}

func MetricNames() string  { return joinNames(Metrics) }
func GroupByNames() string { return joinNames(GroupBys) }
