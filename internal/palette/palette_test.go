package palette

import (
	"encoding/json"
	"reflect"
	"testing"
)

func eightColorTable() Table {
	return Table{Thresholds: sevenBreaks, Colors: eightColors}
}

func TestIndex_Boundaries(t *testing.T) {
	tb := eightColorTable()
	cases := []struct {
		in   any
		want int
	}{
		{238.0, 0},
		{239.0, 1},
		{270.9, 1},
		{271.0, 2},
		{334.0, 6},
		{335.0, 7},
		{336.0, 7},
		{nil, 0},
		{"null", 0},
		{"not a number", 0},
		{"300", 4},
		{json.Number("308"), 5},
		{map[string]any{}, 0},
	}
	for _, c := range cases {
		if got := tb.Index(c.in); got != c.want {
			t.Fatalf("Index(%v)=%d want %d", c.in, got, c.want)
		}
	}
}

func TestIndex_SentinelTable_NullIsNoData(t *testing.T) {
	p, err := LookupProfile("v4")
	if err != nil {
		t.Fatalf("LookupProfile: %v", err)
	}
	if got := p.Table.Color(nil); got != "#f1f1f0" {
		t.Fatalf("null color=%s", got)
	}
	if got := p.Table.Color(1.0); got != "#5c53a5" {
		t.Fatalf("doy 1 color=%s", got)
	}
	if got := p.Table.Color(400.0); got != "#dfdfdf" {
		t.Fatalf("late color=%s", got)
	}
}

func TestValidate(t *testing.T) {
	for _, name := range ProfileNames() {
		p, _ := LookupProfile(name)
		if err := p.Table.Validate(); err != nil {
			t.Fatalf("profile %s: %v", name, err)
		}
	}
	bad := []Table{
		{},
		{Thresholds: []float64{1, 2}, Colors: []string{"#fff", "#000"}},
		{Thresholds: []float64{2, 2}, Colors: []string{"#fff", "#000", "#111"}},
		{Thresholds: []float64{1}, Colors: []string{"#fff", "red"}},
	}
	for i, tb := range bad {
		if err := tb.Validate(); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestStepExpression(t *testing.T) {
	tb := Table{Thresholds: []float64{1, 239}, Colors: []string{"#000", "#111", "#222"}}
	got := tb.StepExpression("f_20_doy")
	want := []any{
		"step",
		[]any{"to-number", []any{"get", "f_20_doy"}},
		"#000",
		1.0, "#111",
		239.0, "#222",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v\nwant %#v", got, want)
	}
}

func TestLegend(t *testing.T) {
	p, _ := LookupProfile("v4")
	lg := p.Table.Legend(2019)
	if len(lg) != 9 {
		t.Fatalf("legend len=%d", len(lg))
	}
	if lg[0].Label != "no data" {
		t.Fatalf("first=%q", lg[0].Label)
	}
	if lg[1].Label != "before August 27" {
		t.Fatalf("second=%q", lg[1].Label)
	}
	if lg[2].Label != "August 27 to September 27" {
		t.Fatalf("third=%q", lg[2].Label)
	}
	if lg[8].Label != "on/after December 1" {
		t.Fatalf("last=%q", lg[8].Label)
	}

	v1 := eightColorTable().Legend(2019)
	if v1[0].Label != "no data or before August 27" {
		t.Fatalf("v1 first=%q", v1[0].Label)
	}
}

func TestCounts(t *testing.T) {
	got := eightColorTable().Counts([]any{nil, 240.0, 241.0, 400.0})
	want := []int{1, 2, 0, 0, 0, 0, 0, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestLookupProfile_Unknown(t *testing.T) {
	if _, err := LookupProfile("v9"); err == nil {
		t.Fatal("expected error")
	}
	p, err := LookupProfile("")
	if err != nil || p.Name != DefaultProfile {
		t.Fatalf("default profile: %+v %v", p, err)
	}
}
