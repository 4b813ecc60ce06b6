// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PercentileLayer is one of the precomputed freeze-risk tiers.
type PercentileLayer int

const (
	Layer10 PercentileLayer = 10
	Layer20 PercentileLayer = 20
	Layer50 PercentileLayer = 50
	Layer80 PercentileLayer = 80
)

// DefaultLayer is selected on every fresh session.
const DefaultLayer = Layer10

// Layers lists the enumeration in display order.
var Layers = []PercentileLayer{Layer10, Layer20, Layer50, Layer80}

func (p PercentileLayer) Valid() bool {
	switch p {
	case Layer10, Layer20, Layer50, Layer80:
		return true
	}
	return false
}

func (p PercentileLayer) String() string { return strconv.Itoa(int(p)) }

// Label matches the radio control text, e.g. "1 of past 10 years".
func (p PercentileLayer) Label() string {
	return fmt.Sprintf("%d of past 10 years", int(p)/10)
}

func ParsePercentile(s string) (PercentileLayer, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultLayer, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse layer %q: %w", s, err)
	}
	p := PercentileLayer(n)
	if !p.Valid() {
		return 0, fmt.Errorf("layer %d not one of 10|20|50|80", n)
	}
	return p, nil
}

// AttributeSet holds the per-layer column names.
type AttributeSet struct {
	FreezeDoy  string `json:"freeze_doy"`
	FreezeDate string `json:"freeze_date"`
	SilkDoy    string `json:"silk_doy"`
	SilkDate   string `json:"silk_date"`
}

// Attributes derives the column names for p, e.g. f_10_doy / s_10_date.
func (p PercentileLayer) Attributes() AttributeSet {
	n := p.String()
	return AttributeSet{
		FreezeDoy:  "f_" + n + "_doy",
		FreezeDate: "f_" + n + "_date",
		SilkDoy:    "s_" + n + "_doy",
		SilkDate:   "s_" + n + "_date",
	}
}

func (a AttributeSet) Columns() []string {
	return []string{a.FreezeDoy, a.FreezeDate, a.SilkDoy, a.SilkDate}
}

const DateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day component.
type Date struct {
	t time.Time
}

func NewDate(y int, m time.Month, d int) Date {
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts only the YYYY-MM-DD form produced by a date input.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(DateLayout) {
		return Date{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

func (d Date) String() string         { return d.t.Format(DateLayout) }
func (d Date) Time() time.Time        { return d.t }
func (d Date) Before(o Date) bool     { return d.t.Before(o.t) }
func (d Date) After(o Date) bool      { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool      { return d.t.Equal(o.t) }
func (d Date) YearDay() int           { return d.t.YearDay() }
func (d Date) Format(l string) string { return d.t.Format(l) }

// DateRange bounds the cutoff input; both ends are inclusive.
type DateRange struct {
	Min Date
	Max Date
}

func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.Min) && !d.After(r.Max)
}

// FilterSelection is the only long-lived user state. HasCutoff is explicit so
// that clearing the cutoff never depends on inspecting a built query.
type FilterSelection struct {
	Percentile PercentileLayer
	HasCutoff  bool
	Cutoff     Date
}

func DefaultSelection() FilterSelection {
	return FilterSelection{Percentile: DefaultLayer}
}

func (s FilterSelection) WithPercentile(p PercentileLayer) FilterSelection {
	s.Percentile = p
	return s
}

func (s FilterSelection) WithCutoff(d Date) FilterSelection {
	s.HasCutoff = true
	s.Cutoff = d
	return s
}

func (s FilterSelection) WithoutCutoff() FilterSelection {
	s.HasCutoff = false
	s.Cutoff = Date{}
	return s
}

func (s FilterSelection) Equal(o FilterSelection) bool {
	if s.Percentile != o.Percentile || s.HasCutoff != o.HasCutoff {
		return false
	}
	return !s.HasCutoff || s.Cutoff.Equal(o.Cutoff)
}

// Query is the SQL derived from a selection together with the columns it asks for.
type Query struct {
	SQL        string
	Table      string
	Attributes AttributeSet
}

type LngLat struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// Feature keeps geometry raw; only properties are inspected by the service.
type Feature struct {
	Type       string          `json:"type"`
	ID         any             `json:"id,omitempty"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

func ParseFeatureCollection(b []byte) (*FeatureCollection, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("unexpected geojson type %q", fc.Type)
	}
	if fc.Features == nil {
		fc.Features = []Feature{}
	}
	return &fc, nil
}
