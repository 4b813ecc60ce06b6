package h3index

import (
	"encoding/json"
	"testing"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
)

// Two adjacent squares sharing the -93 meridian, a small island county
// and a square with a hole.
const countiesJSON = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[-94,42],[-93,42],[-93,43],[-94,43],[-94,42]]]},
  "properties":{"name":"West County","state_name":"Iowa","f_10_date":"2019-10-01"}},
 {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[-93,42],[-92,42],[-92,43],[-93,43],[-93,42]]]},
  "properties":{"name":"East County","state_name":"Iowa"}},
 {"type":"Feature","geometry":{"type":"MultiPolygon","coordinates":[
   [[[-70.02,41.00],[-70.00,41.00],[-70.00,41.02],[-70.02,41.02],[-70.02,41.00]]],
   [[[-69.50,41.50],[-69.48,41.50],[-69.48,41.52],[-69.50,41.52],[-69.50,41.50]]]]},
  "properties":{"name":"Island County","state_name":"Massachusetts"}},
 {"type":"Feature","geometry":{"type":"Polygon","coordinates":[
   [[-100,40],[-98,40],[-98,42],[-100,42],[-100,40]],
   [[-99.5,40.5],[-98.5,40.5],[-98.5,41.5],[-99.5,41.5],[-99.5,40.5]]]},
  "properties":{"name":"Donut County","state_name":"Nebraska"}},
 {"type":"Feature","geometry":null,"properties":{"name":"Nowhere County"}}
]}`

func build(t *testing.T, res int) *Index {
	t.Helper()
	var fc model.FeatureCollection
	if err := json.Unmarshal([]byte(countiesJSON), &fc); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	ix, err := Build(&fc, res)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ix
}

func nameAt(t *testing.T, ix *Index, lng, lat float64) string {
	t.Helper()
	f, ok, err := ix.Lookup(model.LngLat{Lng: lng, Lat: lat})
	if err != nil {
		t.Fatalf("Lookup(%v,%v): %v", lng, lat, err)
	}
	if !ok {
		return ""
	}
	return f.Properties["name"].(string)
}

func TestLookup_FindsContainingCounty(t *testing.T) {
	ix := build(t, DefaultRes)
	cases := []struct {
		lng, lat float64
		want     string
	}{
		{-93.5, 42.5, "West County"},
		{-92.5, 42.5, "East County"},
		{-93.01, 42.99, "West County"},
		{-92.99, 42.01, "East County"},
		{-70.01, 41.01, "Island County"},
		{-69.49, 41.51, "Island County"},
		{-99.9, 40.1, "Donut County"},
		{-99.0, 41.0, ""},
		{-80.0, 35.0, ""},
	}
	for _, c := range cases {
		if got := nameAt(t, ix, c.lng, c.lat); got != c.want {
			t.Fatalf("(%v,%v)=%q want %q", c.lng, c.lat, got, c.want)
		}
	}
}

func TestBuild_SkipsMissingGeometry(t *testing.T) {
	ix := build(t, DefaultRes)
	if ix.Skipped() != 1 || ix.Len() != 4 {
		t.Fatalf("skipped=%d len=%d", ix.Skipped(), ix.Len())
	}
	if ix.CellCount() == 0 {
		t.Fatal("expected indexed cells")
	}
}

func TestBuild_CoarseResolutionStillFindsSmallPolygons(t *testing.T) {
	ix := build(t, 3)
	if got := nameAt(t, ix, -70.01, 41.01); got != "Island County" {
		t.Fatalf("got %q", got)
	}
}

func TestBuild_InvalidRes(t *testing.T) {
	if _, err := Build(&model.FeatureCollection{}, 16); err == nil {
		t.Fatal("expected resolution error")
	}
	if _, err := Build(nil, 5); err == nil {
		t.Fatal("expected nil collection error")
	}
}

func TestRingContains(t *testing.T) {
	sq := ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}
	if !sq.contains(0.5, 0.5) || sq.contains(1.5, 0.5) || sq.contains(0.5, -0.1) {
		t.Fatal("square containment wrong")
	}
}

func TestParseGeometry_Unsupported(t *testing.T) {
	if _, err := parseGeometry(json.RawMessage(`{"type":"Point","coordinates":[0,0]}`)); err == nil {
		t.Fatal("expected error for point geometry")
	}
	if p, err := parseGeometry(json.RawMessage(`null`)); err != nil || p != nil {
		t.Fatalf("null geometry: %v %v", p, err)
	}
}
