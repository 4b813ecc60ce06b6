// Package router serves the read-only REST view of the freeze map: the derived
// query, the county GeoJSON, the overlay style, the legend, hover popups and
// bucket summaries.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/cartosql"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/executor"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/observability"
	"github.com/mohammed-shakir/freeze-risk-map/internal/overlay"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
	"github.com/mohammed-shakir/freeze-risk-map/internal/popup"
	"github.com/mohammed-shakir/freeze-risk-map/internal/spatial/h3index"
	"github.com/mohammed-shakir/freeze-risk-map/internal/view"
)

const indexCacheSize = 8

type Config struct {
	// Fetcher runs SQL; usually the result cache in front of the executor.
	Fetcher        executor.SQLFetcher
	Profile        palette.Profile
	Table          string
	ReferenceLayer string
	CutoffRange    model.DateRange
	H3Res          int
	Logger         *slog.Logger
}

type API struct {
	cfg       Config
	installer *overlay.Installer
	logger    *slog.Logger
	// hit-test indexes keyed by a hash of the GeoJSON body they were built from
	indexes *lru.Cache[uint64, *h3index.Index]
}

func New(cfg Config) (*API, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("router: fetcher is required")
	}
	if cfg.Table == "" {
		cfg.Table = cartosql.DefaultTable
	}
	if cfg.H3Res == 0 {
		cfg.H3Res = h3index.DefaultRes
	}
	in, err := overlay.NewInstaller(cfg.Profile.Table, cfg.ReferenceLayer)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	idx, err := lru.New[uint64, *h3index.Index](indexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("router: index cache: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{cfg: cfg, installer: in, logger: logger, indexes: idx}, nil
}

// Routes mounts the handlers on r, each wrapped with request metrics.
func (a *API) Routes(r chi.Router) {
	r.Get("/sql", a.observe("/api/sql", a.HandleSQL))
	r.Get("/counties", a.observe("/api/counties", a.HandleCounties))
	r.Get("/style", a.observe("/api/style", a.HandleStyle))
	r.Get("/legend", a.observe("/api/legend", a.HandleLegend))
	r.Get("/popup", a.observe("/api/popup", a.HandlePopup))
	r.Get("/summary", a.observe("/api/summary", a.HandleSummary))
}

func (a *API) observe(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseSelection reads layer and cutoff from the query string. A missing layer
// means the default percentile; a cutoff outside rng is rejected.
func ParseSelection(r *http.Request, rng model.DateRange) (model.FilterSelection, error) {
	sel := model.DefaultSelection()

	if raw := strings.TrimSpace(r.URL.Query().Get("layer")); raw != "" {
		p, err := model.ParsePercentile(raw)
		if err != nil {
			return model.FilterSelection{}, fmt.Errorf("invalid layer: %w", err)
		}
		sel = sel.WithPercentile(p)
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("cutoff")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			return model.FilterSelection{}, fmt.Errorf("invalid cutoff: %w", err)
		}
		if rng != (model.DateRange{}) && !rng.Contains(d) {
			return model.FilterSelection{}, fmt.Errorf("invalid cutoff: %s not in %s..%s", d, rng.Min, rng.Max)
		}
		sel = sel.WithCutoff(d)
	}
	return sel, nil
}

func parseLngLat(r *http.Request) (model.LngLat, error) {
	lng, err := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get("lng")), 64)
	if err != nil {
		return model.LngLat{}, errors.New("invalid lng")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(r.URL.Query().Get("lat")), 64)
	if err != nil {
		return model.LngLat{}, errors.New("invalid lat")
	}
	if lng < -180 || lng > 180 || lat < -90 || lat > 90 {
		return model.LngLat{}, errors.New("coordinates out of range")
	}
	return model.LngLat{Lng: lng, Lat: lat}, nil
}

type sqlResponse struct {
	Layer      int                `json:"layer"`
	Cutoff     string             `json:"cutoff,omitempty"`
	Attributes model.AttributeSet `json:"attributes"`
	SQL        string             `json:"sql"`
}

func (a *API) HandleSQL(w http.ResponseWriter, r *http.Request) {
	sel, err := ParseSelection(r, a.cfg.CutoffRange)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := cartosql.ForSelection(a.cfg.Table, sel)
	out := sqlResponse{Layer: int(sel.Percentile), Attributes: q.Attributes, SQL: q.SQL}
	if sel.HasCutoff {
		out.Cutoff = sel.Cutoff.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) HandleCounties(w http.ResponseWriter, r *http.Request) {
	sel, err := ParseSelection(r, a.cfg.CutoffRange)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := cartosql.ForSelection(a.cfg.Table, sel)
	body, ct, err := a.cfg.Fetcher.FetchSQL(r.Context(), q.SQL)
	if err != nil {
		a.fetchFailed(w, r, err)
		return
	}
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type styleResponse struct {
	Source   overlay.Source  `json:"source"`
	SourceID string          `json:"source_id"`
	Layers   []overlay.Layer `json:"layers"`
	Before   string          `json:"before"`
}

func (a *API) HandleStyle(w http.ResponseWriter, r *http.Request) {
	sel, err := ParseSelection(r, a.cfg.CutoffRange)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, styleResponse{
		Source:   overlay.Source{Type: "geojson"},
		SourceID: overlay.SourceID,
		Layers:   a.installer.Layers(sel.Percentile.Attributes()),
		Before:   a.installer.ReferenceLayer,
	})
}

type legendResponse struct {
	Profile string                `json:"profile"`
	Year    int                   `json:"year"`
	Entries []palette.LegendEntry `json:"entries"`
}

func (a *API) HandleLegend(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, legendResponse{
		Profile: a.cfg.Profile.Name,
		Year:    view.LegendYear,
		Entries: a.cfg.Profile.Table.Legend(view.LegendYear),
	})
}

type popupResponse struct {
	Popup popup.Popup `json:"popup"`
	Text  string      `json:"text"`
	HTML  string      `json:"html"`
}

func (a *API) HandlePopup(w http.ResponseWriter, r *http.Request) {
	sel, err := ParseSelection(r, a.cfg.CutoffRange)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	at, err := parseLngLat(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ix, err := a.index(r, sel)
	if err != nil {
		a.fetchFailed(w, r, err)
		return
	}
	f, ok, err := ix.Lookup(at)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no county at that point")
		return
	}
	p := popup.Format(f.Properties, sel.Percentile, at)
	writeJSON(w, http.StatusOK, popupResponse{Popup: p, Text: p.Text(), HTML: p.HTML()})
}

type SummaryBucket struct {
	palette.LegendEntry
	Count int `json:"count"`
}

type Summary struct {
	Layer    int             `json:"layer"`
	Cutoff   string          `json:"cutoff,omitempty"`
	Features int             `json:"features"`
	Buckets  []SummaryBucket `json:"buckets"`
}

func (a *API) HandleSummary(w http.ResponseWriter, r *http.Request) {
	sel, err := ParseSelection(r, a.cfg.CutoffRange)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := cartosql.ForSelection(a.cfg.Table, sel)
	fc, err := executor.Decode(r.Context(), a.cfg.Fetcher, q)
	if err != nil {
		a.fetchFailed(w, r, err)
		return
	}
	out := Summarize(a.cfg.Profile.Table, fc, sel)
	writeJSON(w, http.StatusOK, out)
}

// Summarize counts the features of fc falling into each colour bucket.
func Summarize(t palette.Table, fc *model.FeatureCollection, sel model.FilterSelection) Summary {
	attr := sel.Percentile.Attributes().FreezeDoy
	values := make([]any, 0, len(fc.Features))
	for _, f := range fc.Features {
		values = append(values, f.Properties[attr])
	}
	counts := t.Counts(values)
	legend := t.Legend(view.LegendYear)

	out := Summary{Layer: int(sel.Percentile), Features: len(fc.Features)}
	if sel.HasCutoff {
		out.Cutoff = sel.Cutoff.String()
	}
	for i, n := range counts {
		out.Buckets = append(out.Buckets, SummaryBucket{LegendEntry: legend[i], Count: n})
	}
	return out
}

func (a *API) index(r *http.Request, sel model.FilterSelection) (*h3index.Index, error) {
	q := cartosql.ForSelection(a.cfg.Table, sel)
	body, _, err := a.cfg.Fetcher.FetchSQL(r.Context(), q.SQL)
	if err != nil {
		return nil, err
	}
	sum := xxhash.Sum64(body)
	if ix, ok := a.indexes.Get(sum); ok {
		return ix, nil
	}
	fc, err := model.ParseFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", executor.ErrInvalidResult, err)
	}
	ix, err := h3index.Build(fc, a.cfg.H3Res)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	a.indexes.Add(sum, ix)
	a.logger.Debug("hit-test index built", "features", ix.Len(), "cells", ix.CellCount(), "skipped", ix.Skipped())
	return ix, nil
}

func (a *API) fetchFailed(w http.ResponseWriter, r *http.Request, err error) {
	status := executor.HTTPStatus(err)
	a.logger.ErrorContext(r.Context(), "carto fetch failed", "path", r.URL.Path, "status", status, "err", err)
	writeError(w, status, executor.UserMessage(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
