// Package controller reconciles the user's filter selection with the map overlay.
//
// Every selection change rebuilds the query, fetches it, and reinstalls the
// overlay. Fetches carry a sequence number; a response that is not the latest
// issued is dropped, so a slow early request can never overwrite the overlay
// built for a newer selection.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/cartosql"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/executor"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/observability"
	"github.com/mohammed-shakir/freeze-risk-map/internal/overlay"
	"github.com/mohammed-shakir/freeze-risk-map/internal/popup"
)

var (
	ErrSuperseded       = errors.New("controller: response superseded by a newer selection")
	ErrInvalidLayer     = errors.New("controller: invalid percentile layer")
	ErrCutoffOutOfRange = errors.New("controller: cutoff outside allowed range")
)

type Fetcher interface {
	Fetch(ctx context.Context, q model.Query) (*model.FeatureCollection, error)
}

// View receives the side effects a browser would show.
type View interface {
	SetBusy(busy bool)
	Alert(msg string)
	ShowPopup(p popup.Popup)
	HidePopup()
}

// StyleLoader is implemented by renderers that track the base style locally.
type StyleLoader interface {
	LoadStyle(layerIDs []string)
}

// State is replaced wholesale on every transition; handlers never mutate a
// State they were handed.
type State struct {
	Selection model.FilterSelection
	Query     model.Query
	Seq       uint64
	InFlight  int

	// Applied is the selection the rendered Data was fetched for.
	Applied model.FilterSelection
	Data    *model.FeatureCollection
}

type Options struct {
	Table       string
	CutoffRange model.DateRange
	Logger      *slog.Logger
}

type Controller struct {
	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	fetcher   Fetcher
	renderer  overlay.Renderer
	installer *overlay.Installer
	view      View
	opts      Options
	logger    *slog.Logger
}

func New(f Fetcher, r overlay.Renderer, in *overlay.Installer, v View, opts Options) *Controller {
	if opts.Table == "" {
		opts.Table = cartosql.DefaultTable
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if v == nil {
		v = nopView{}
	}
	return &Controller{
		state:     State{Selection: model.DefaultSelection(), Applied: model.DefaultSelection()},
		fetcher:   f,
		renderer:  r,
		installer: in,
		view:      v,
		opts:      opts,
		logger:    logger,
	}
}

func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Load fetches the current (initially default) selection.
func (c *Controller) Load(ctx context.Context) error {
	return c.apply(ctx, c.Snapshot().Selection, "load")
}

func (c *Controller) SetPercentile(ctx context.Context, p model.PercentileLayer) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLayer, p)
	}
	cur := c.Snapshot().Selection
	if cur.Percentile == p {
		return nil
	}
	return c.apply(ctx, cur.WithPercentile(p), "layer")
}

func (c *Controller) SetCutoff(ctx context.Context, d model.Date) error {
	r := c.opts.CutoffRange
	if r != (model.DateRange{}) && !r.Contains(d) {
		return fmt.Errorf("%w: %s not in %s..%s", ErrCutoffOutOfRange, d, r.Min, r.Max)
	}
	return c.apply(ctx, c.Snapshot().Selection.WithCutoff(d), "cutoff")
}

// ClearCutoff rebuilds only when a cutoff is part of the current selection.
func (c *Controller) ClearCutoff(ctx context.Context) error {
	cur := c.Snapshot().Selection
	if !cur.HasCutoff {
		return nil
	}
	return c.apply(ctx, cur.WithoutCutoff(), "clear_cutoff")
}

// StyleLoaded reinstalls the last fetched collection after the base style was
// swapped. No fetch is issued.
func (c *Controller) StyleLoaded(layerIDs []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sl, ok := c.renderer.(StyleLoader); ok {
		sl.LoadStyle(layerIDs)
	}
	if c.state.Data == nil {
		return nil
	}
	if err := c.installer.Install(c.renderer, c.state.Data, c.state.Applied.Percentile.Attributes()); err != nil {
		c.logger.Error("overlay reinstall failed", "err", err)
		return fmt.Errorf("reinstall overlay: %w", err)
	}
	observability.IncOverlayInstall("style_reload")
	return nil
}

// Hover shows the popup for a feature under the pointer.
func (c *Controller) Hover(props map[string]any, at model.LngLat) popup.Popup {
	p := popup.Format(props, c.Snapshot().Applied.Percentile, at)
	c.view.ShowPopup(p)
	return p
}

func (c *Controller) Leave() {
	c.view.HidePopup()
}

// Close cancels any in-flight fetch.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) apply(ctx context.Context, sel model.FilterSelection, trigger string) error {
	c.mu.Lock()
	q := cartosql.ForSelection(c.opts.Table, sel)
	next := c.state
	next.Selection = sel
	next.Query = q
	next.Seq++
	next.InFlight++
	seq := next.Seq
	if c.cancel != nil {
		c.cancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if next.InFlight == 1 {
		c.view.SetBusy(true)
	}
	c.state = next
	c.mu.Unlock()

	c.logger.Debug("fetch issued", "seq", seq, "trigger", trigger, "layer", sel.Percentile.String())
	fc, err := c.fetcher.Fetch(fctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	next = c.state
	next.InFlight--
	if next.InFlight == 0 {
		c.view.SetBusy(false)
	}
	if seq == next.Seq {
		c.cancel = nil
	}
	c.state = next

	if seq != next.Seq {
		observability.IncSuperseded()
		c.logger.Debug("dropping superseded response", "seq", seq, "latest", next.Seq, "err", err)
		return ErrSuperseded
	}

	observability.IncFetch(executor.Outcome(err), sel.Percentile.String())
	if err != nil {
		c.logger.Error("fetch failed", "seq", seq, "trigger", trigger, "err", err)
		c.view.Alert(executor.UserMessage(err))
		return err
	}

	if err := c.installer.Install(c.renderer, fc, q.Attributes); err != nil {
		c.logger.Error("overlay install failed", "seq", seq, "err", err)
		return fmt.Errorf("install overlay: %w", err)
	}
	observability.IncOverlayInstall(trigger)

	next.Applied = sel
	next.Data = fc
	c.state = next
	c.logger.Debug("overlay installed", "seq", seq, "features", len(fc.Features))
	return nil
}

type nopView struct{}

func (nopView) SetBusy(bool)          {}
func (nopView) Alert(string)          {}
func (nopView) ShowPopup(popup.Popup) {}
func (nopView) HidePopup()            {}
