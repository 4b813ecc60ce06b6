// Package palette buckets freeze day-of-year values into choropleth fill colours.
package palette

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Table is an ordered breakpoint table. Colors has one more entry than
// Thresholds; Colors[0] doubles as the "no data" colour.
type Table struct {
	Thresholds []float64
	Colors     []string
}

var hexColor = regexp.MustCompile(`^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func (t Table) Validate() error {
	if len(t.Thresholds) == 0 {
		return errors.New("palette: no thresholds")
	}
	if len(t.Colors) != len(t.Thresholds)+1 {
		return fmt.Errorf("palette: %d colors for %d thresholds (want %d)",
			len(t.Colors), len(t.Thresholds), len(t.Thresholds)+1)
	}
	for i := 1; i < len(t.Thresholds); i++ {
		if !(t.Thresholds[i] > t.Thresholds[i-1]) {
			return fmt.Errorf("palette: thresholds not strictly increasing at %d (%v <= %v)",
				i, t.Thresholds[i], t.Thresholds[i-1])
		}
	}
	for i, c := range t.Colors {
		if !hexColor.MatchString(c) {
			return fmt.Errorf("palette: color %d %q is not a hex color", i, c)
		}
	}
	return nil
}

// Index returns the bucket for v: the number of thresholds <= v. Anything that
// does not coerce to a number lands in bucket 0.
func (t Table) Index(v any) int {
	f, ok := ToNumber(v)
	if !ok {
		return 0
	}
	return sort.Search(len(t.Thresholds), func(i int) bool { return t.Thresholds[i] > f })
}

func (t Table) Color(v any) string {
	return t.Colors[t.Index(v)]
}

// ToNumber mirrors the renderer's to-number coercion closely enough for
// bucketing: null and booleans coerce, unparsable strings do not.
func ToNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// StepExpression renders the fill-color expression keyed on attr.
func (t Table) StepExpression(attr string) []any {
	expr := make([]any, 0, 3+2*len(t.Thresholds))
	expr = append(expr, "step", []any{"to-number", []any{"get", attr}}, t.Colors[0])
	for i, th := range t.Thresholds {
		expr = append(expr, th, t.Colors[i+1])
	}
	return expr
}

type LegendEntry struct {
	Color string `json:"color"`
	Label string `json:"label"`
}

// Legend labels each bucket with calendar dates in the given year.
func (t Table) Legend(year int) []LegendEntry {
	out := make([]LegendEntry, 0, len(t.Colors))
	last := len(t.Colors) - 1
	for i, c := range t.Colors {
		var label string
		switch {
		case i == 0 && t.Thresholds[0] <= 1:
			label = "no data"
		case i == 0:
			label = "no data or before " + doyLabel(year, t.Thresholds[0])
		case i == last:
			label = "on/after " + doyLabel(year, t.Thresholds[i-1])
		case i == 1 && t.Thresholds[0] <= 1:
			label = "before " + doyLabel(year, t.Thresholds[1])
		default:
			label = doyLabel(year, t.Thresholds[i-1]) + " to " + doyLabel(year, t.Thresholds[i]-1)
		}
		out = append(out, LegendEntry{Color: c, Label: label})
	}
	return out
}

func doyLabel(year int, doy float64) string {
	d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, int(doy)-1)
	return d.Format("January 2")
}

// Counts tallies values per bucket.
func (t Table) Counts(values []any) []int {
	out := make([]int, len(t.Colors))
	for _, v := range values {
		out[t.Index(v)]++
	}
	return out
}
