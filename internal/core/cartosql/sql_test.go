package cartosql

import (
	"strings"
	"testing"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
)

func TestBuild_DefaultSelection_NoDatePredicate(t *testing.T) {
	q := ForSelection(DefaultTable, model.DefaultSelection())
	want := "select geoid, name || ' County' as name, state_name, f_10_doy, f_10_date, s_10_doy, s_10_date, the_geom from first_freeze_28f where f_10_doy is not null"
	if q.SQL != want {
		t.Fatalf("sql mismatch\n got: %s\nwant: %s", q.SQL, want)
	}
	if strings.Contains(q.SQL, "<=") {
		t.Fatalf("unexpected date predicate: %s", q.SQL)
	}
	if q.Attributes.FreezeDoy != "f_10_doy" {
		t.Fatalf("attributes=%+v", q.Attributes)
	}
}

func TestBuild_WithCutoff(t *testing.T) {
	d, err := model.ParseDate("2019-08-15")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	sel := model.DefaultSelection().WithPercentile(model.Layer50).WithCutoff(d)
	q := ForSelection(DefaultTable, sel)
	if !strings.HasSuffix(q.SQL, " and s_50_date <= '2019-08-15'") {
		t.Fatalf("missing cutoff predicate: %s", q.SQL)
	}
	if !strings.Contains(q.SQL, "where f_50_doy is not null") {
		t.Fatalf("missing null filter: %s", q.SQL)
	}
}

func TestBuild_ClearCutoff_RoundTrip(t *testing.T) {
	d := model.NewDate(2019, 9, 1)
	for _, p := range model.Layers {
		base := ForSelection("t", model.DefaultSelection().WithPercentile(p))
		set := model.DefaultSelection().WithPercentile(p).WithCutoff(d)
		cleared := ForSelection("t", set.WithoutCutoff())
		if cleared.SQL != base.SQL {
			t.Fatalf("layer %d: cleared query differs\n got: %s\nwant: %s", p, cleared.SQL, base.SQL)
		}
		if withCut := ForSelection("t", set); withCut.SQL == base.SQL {
			t.Fatalf("layer %d: cutoff query equals baseline", p)
		}
	}
}

func TestQuoteLiteral_EscapesQuotes(t *testing.T) {
	if got := quoteLiteral("a'b"); got != "'a''b'" {
		t.Fatalf("got %q", got)
	}
}

func TestValidTable(t *testing.T) {
	cases := map[string]bool{
		"first_freeze_28f":       true,
		"data_inno.counties":     true,
		"x; drop table y":        false,
		"":                       false,
		"1abc":                   false,
		"first_freeze_28f--note": false,
	}
	for in, want := range cases {
		if got := ValidTable(in); got != want {
			t.Fatalf("ValidTable(%q)=%v want %v", in, got, want)
		}
	}
}

func TestSQLEndpoint(t *testing.T) {
	got, err := SQLEndpoint("", "data-inno")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "https://data-inno.carto.com/api/v2/sql" {
		t.Fatalf("got %q", got)
	}
	got, err = SQLEndpoint("http://localhost:9999/", "ignored")
	if err != nil || got != "http://localhost:9999/api/v2/sql" {
		t.Fatalf("got %q err %v", got, err)
	}
	if _, err := SQLEndpoint("", ""); err == nil {
		t.Fatal("expected error without user or base")
	}
}

func TestBuildParams(t *testing.T) {
	v := BuildParams("select 1")
	if v.Get("format") != "GeoJSON" || v.Get("q") != "select 1" {
		t.Fatalf("params=%v", v)
	}
	enc := v.Encode()
	if !strings.HasPrefix(enc, "format=GeoJSON&q=select+1") {
		t.Fatalf("encoded=%q", enc)
	}
}
