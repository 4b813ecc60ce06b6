// Package cartosql derives the CARTO SQL query and request parameters for a filter selection.
package cartosql

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
)

const DefaultTable = "first_freeze_28f"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidTable reports whether t is safe to splice into a FROM clause.
func ValidTable(t string) bool {
	return identPattern.MatchString(t)
}

// Build returns the select for the given columns. The cutoff predicate is
// appended only when hasCutoff is true, so a cleared cutoff produces exactly
// the baseline text.
func Build(table string, a model.AttributeSet, hasCutoff bool, cutoff model.Date) model.Query {
	if table == "" {
		table = DefaultTable
	}
	var b strings.Builder
	b.Grow(256)
	b.WriteString("select geoid, name || ' County' as name, state_name, ")
	b.WriteString(strings.Join(a.Columns(), ", "))
	b.WriteString(", the_geom from ")
	b.WriteString(table)
	b.WriteString(" where ")
	b.WriteString(a.FreezeDoy)
	b.WriteString(" is not null")
	if hasCutoff {
		fmt.Fprintf(&b, " and %s <= %s", a.SilkDate, quoteLiteral(cutoff.String()))
	}
	return model.Query{SQL: b.String(), Table: table, Attributes: a}
}

// ForSelection derives attributes and query in one step.
func ForSelection(table string, sel model.FilterSelection) model.Query {
	return Build(table, sel.Percentile.Attributes(), sel.HasCutoff, sel.Cutoff)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
