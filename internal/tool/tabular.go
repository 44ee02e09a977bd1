package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuchenx/docpilot/internal/model/artifact"
)

// Tabular answers questions about the session's loaded table: a whole-table
// summary, or a single-column aggregate located by pairing an aggregate
// keyword with a column-name token in the query.
type Tabular struct{}

func NewTabular() *Tabular { return &Tabular{} }

func (t *Tabular) Kind() Kind { return KindTabular }

func (t *Tabular) CanHandle(_ string, art *artifact.Artifact) bool {
	return art != nil && art.Kind == artifact.KindTabular
}

var aggregates = map[string]string{
	"average": "mean",
	"mean":    "mean",
	"sum":     "sum",
	"total":   "sum",
	"min":     "min",
	"minimum": "min",
	"lowest":  "min",
	"max":     "max",
	"maximum": "max",
	"highest": "max",
}

func (t *Tabular) Execute(_ context.Context, query string, art *artifact.Artifact) (string, error) {
	if art == nil || art.Kind != artifact.KindTabular || art.Table == nil {
		return "", fmt.Errorf("%w: no CSV loaded", ErrNoArtifactBound)
	}
	table := art.Table
	lower := strings.ToLower(query)

	if strings.Contains(lower, "summar") || strings.Contains(lower, "describe") {
		return summarize(table), nil
	}

	agg := findAggregate(lower)
	column, ok := findColumn(table, lower)
	if !ok {
		if agg == "" {
			return "", fmt.Errorf("%w: try 'average of column X' or 'summarize data'", ErrUnsupportedAggregate)
		}
		return "", fmt.Errorf("%w: no column in query matches the table", ErrUnknownColumn)
	}
	if agg == "" {
		return "", fmt.Errorf("%w: supported aggregates are average, sum, min, max", ErrUnsupportedAggregate)
	}

	values := table.NumericColumn(table.ColumnIndex(column))
	if len(values) == 0 {
		return "", fmt.Errorf("%w: column %q has no numeric values", ErrUnsupportedAggregate, column)
	}

	result := applyAggregate(agg, values)
	label := strings.ToUpper(agg[:1]) + agg[1:]
	return fmt.Sprintf("%s of %s: %s", label, column, formatCell(result)), nil
}

func findAggregate(lower string) string {
	for _, f := range strings.Fields(lower) {
		if agg, ok := aggregates[strings.Trim(f, ".,?!")]; ok {
			return agg
		}
	}
	return ""
}

// findColumn matches table columns against the query, longest name first so
// "total_price" beats "price" when both appear. Falls back to the token after
// the word "column" for tables with header names not present verbatim.
func findColumn(table *artifact.Table, lower string) (string, bool) {
	best := ""
	for _, c := range table.Columns {
		if strings.Contains(lower, strings.ToLower(c)) && len(c) > len(best) {
			best = c
		}
	}
	if best != "" {
		return best, true
	}

	if idx := strings.LastIndex(lower, "column"); idx != -1 {
		tail := strings.Trim(strings.TrimSpace(lower[idx+len("column"):]), ".,?!\"'")
		for _, c := range table.Columns {
			if strings.EqualFold(c, tail) {
				return c, true
			}
		}
	}
	return "", false
}

func applyAggregate(agg string, values []float64) float64 {
	switch agg {
	case "sum", "mean":
		total := 0.0
		for _, v := range values {
			total += v
		}
		if agg == "sum" {
			return total
		}
		return total / float64(len(values))
	case "min":
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}
		return m
	default: // max
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}
		return m
	}
}

func summarize(table *artifact.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data summary (%d rows, %d columns):", len(table.Rows), len(table.Columns))
	for i, c := range table.Columns {
		values := table.NumericColumn(i)
		if len(values) == 0 {
			fmt.Fprintf(&b, "\n%s: count=%d (non-numeric)", c, len(table.Rows))
			continue
		}
		fmt.Fprintf(&b, "\n%s: count=%d mean=%s min=%s max=%s",
			c,
			len(values),
			formatCell(applyAggregate("mean", values)),
			formatCell(applyAggregate("min", values)),
			formatCell(applyAggregate("max", values)))
	}
	return b.String()
}

func formatCell(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
