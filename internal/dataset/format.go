package dataset

import (
	"fmt"
	"strings"
)

// Format renders a result as the analysis text handed to later stages.
// Every number in it comes from the result's statistics.
func Format(r *Result) string {
	q := r.Query

	var b strings.Builder
	fmt.Fprintf(&b, "Metric: %s\n", q.Metric.Label())
	fmt.Fprintf(&b, "Filters: %s\n", q.Describe())
	if r.Broadened {
		b.WriteString("Note: no transactions matched the original aspects, so the filters were broadened.\n")
	}
	fmt.Fprintf(&b, "Transactions analysed: %d\n\n", r.Transactions)

	fmt.Fprintf(&b, "| %s | %s | Transactions |\n", q.GroupBy.Label(), q.Metric.Label())
	b.WriteString("|---|---|---|\n")
	for _, st := range r.Statistics {
		fmt.Fprintf(&b, "| %s | %s | %d |\n", st.Label, formatValue(q.Metric, st.Value), st.Count)
	}
	return b.String()
}

func formatValue(m Metric, v float64) string {
	if m == MetricCount {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
