package popup

import (
	"strings"
	"testing"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
)

func TestFormat_AllPresent(t *testing.T) {
	props := map[string]any{
		"name":       "Story County",
		"state_name": "Iowa",
		"f_20_date":  "2019-10-12",
		"s_20_date":  "2019-07-30",
		"f_10_date":  "2019-09-01",
	}
	at := model.LngLat{Lng: -93.46, Lat: 42.03}
	p := Format(props, model.Layer20, at)
	if p.County != "Story County" || p.State != "Iowa" {
		t.Fatalf("names: %+v", p)
	}
	if p.FreezeDate != "2019-10-12" || p.SilkDate != "2019-07-30" {
		t.Fatalf("dates: %+v", p)
	}
	if p.LayerLabel != "2 of past 10 years" {
		t.Fatalf("label=%q", p.LayerLabel)
	}
	if p.At != at {
		t.Fatalf("anchor=%+v", p.At)
	}
}

func TestFormat_AbsentValuesAreNA(t *testing.T) {
	for name, props := range map[string]map[string]any{
		"missing":     {"name": "A County", "state_name": "B"},
		"json null":   {"name": "A County", "state_name": "B", "f_10_date": nil, "s_10_date": nil},
		"string null": {"name": "A County", "state_name": "B", "f_10_date": "null", "s_10_date": "null"},
	} {
		p := Format(props, model.Layer10, model.LngLat{})
		if p.FreezeDate != NotAvailable || p.SilkDate != NotAvailable {
			t.Fatalf("%s: got %+v", name, p)
		}
	}
}

func TestText_And_HTML(t *testing.T) {
	p := Format(map[string]any{"name": "O'Brien County", "state_name": "Iowa", "f_80_date": "2019-10-01"}, model.Layer80, model.LngLat{})
	txt := p.Text()
	if !strings.Contains(txt, "Hard Freeze Date (8 of past 10 years): 2019-10-01") {
		t.Fatalf("text=%q", txt)
	}
	if !strings.HasSuffix(txt, "Latest Silking Date: N/A") {
		t.Fatalf("text=%q", txt)
	}
	h := p.HTML()
	if !strings.Contains(h, "O&#39;Brien County") {
		t.Fatalf("html not escaped: %s", h)
	}
}
