// Package view serves map sessions over websockets. Each session owns a
// controller whose overlay commands, busy flag, alerts and popups are pushed
// to the browser, which replays them against its renderer.
package view

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohammed-shakir/freeze-risk-map/internal/controller"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/observability"
	mylog "github.com/mohammed-shakir/freeze-risk-map/internal/logger"
	"github.com/mohammed-shakir/freeze-risk-map/internal/overlay"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
	"github.com/mohammed-shakir/freeze-risk-map/internal/spatial/h3index"
)

type Config struct {
	Fetcher        controller.Fetcher
	Profile        palette.Profile
	Table          string
	ReferenceLayer string
	CutoffRange    model.DateRange
	H3Res          int
	// AllowedOrigins empty accepts any origin.
	AllowedOrigins []string
	Logger         *slog.Logger
}

type Handler struct {
	cfg       Config
	installer *overlay.Installer
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("view: fetcher is required")
	}
	in, err := overlay.NewInstaller(cfg.Profile.Table, cfg.ReferenceLayer)
	if err != nil {
		return nil, err
	}
	if cfg.H3Res == 0 {
		cfg.H3Res = h3index.DefaultRes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		cfg:       cfg,
		installer: in,
		logger:    logger,
		sessions:  map[*Session]struct{}{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4 << 10,
		WriteBufferSize: 32 << 10,
		CheckOrigin:     h.checkOrigin,
	}
	return h, nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, o := range h.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	id := mylog.NewID()
	ctx := mylog.WithSession(context.WithoutCancel(r.Context()), id)
	s := h.newSession(id, conn)

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	observability.ViewSessionOpened()
	s.logger.Info("view session opened", "remote", r.RemoteAddr)

	defer func() {
		h.mu.Lock()
		delete(h.sessions, s)
		h.mu.Unlock()
		observability.ViewSessionClosed()
		s.logger.Info("view session closed")
	}()

	_ = s.push(ServerMessage{Type: MsgInit, Init: h.initPayload(id)})
	s.run(ctx)
}

func (h *Handler) newSession(id string, conn *websocket.Conn) *Session {
	s := &Session{
		id:      id,
		conn:    conn,
		send:    make(chan ServerMessage, sendBuffer),
		done:    make(chan struct{}),
		profile: h.cfg.Profile,
		h3Res:   h.cfg.H3Res,
		logger:  h.logger.With("session_id", id),
	}
	mirror := overlay.NewMirror(func(c overlay.Command) error {
		return s.push(ServerMessage{Type: MsgRender, Command: &c})
	})
	s.ctl = controller.New(h.cfg.Fetcher, mirror, h.installer, s, controller.Options{
		Table:       h.cfg.Table,
		CutoffRange: h.cfg.CutoffRange,
		Logger:      s.logger,
	})
	return s
}

func (h *Handler) initPayload(id string) *InitPayload {
	p := h.cfg.Profile
	out := &InitPayload{
		Session:      id,
		Profile:      p.Name,
		Controls:     p.Controls,
		DefaultLayer: int(model.DefaultLayer),
		DefaultStyle: DefaultStyle,
	}
	for _, l := range model.Layers {
		out.Layers = append(out.Layers, LayerOption{Value: int(l), Label: l.Label()})
	}
	if p.Controls.BaseStyleSwitcher {
		out.Styles = BaseStyles
	}
	if p.Controls.ZoomToUS {
		b := USBounds
		out.Bounds = &b
	}
	if p.Controls.Legend {
		out.Legend = p.Table.Legend(LegendYear)
	}
	if p.Controls.DateFilter && h.cfg.CutoffRange != (model.DateRange{}) {
		out.CutoffMin = h.cfg.CutoffRange.Min.String()
		out.CutoffMax = h.cfg.CutoffRange.Max.String()
	}
	return out
}

// Active reports the number of open sessions.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown closes every open session. Hijacked connections are not tracked by
// http.Server, so this has to run alongside its Shutdown.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	open := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.close()
		_ = s.conn.Close()
	}
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for h.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
	return nil
}
