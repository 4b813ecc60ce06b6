package view

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohammed-shakir/freeze-risk-map/internal/controller"
	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
	"github.com/mohammed-shakir/freeze-risk-map/internal/popup"
	"github.com/mohammed-shakir/freeze-risk-map/internal/spatial/h3index"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 64
)

var errSessionClosed = errors.New("view: session closed")

// Session is one browser map bound to its own controller. It implements
// controller.View and feeds the overlay mirror's commands to the socket.
type Session struct {
	id      string
	conn    *websocket.Conn
	send    chan ServerMessage
	done    chan struct{}
	once    sync.Once
	ctl     *controller.Controller
	profile palette.Profile
	h3Res   int
	logger  *slog.Logger
	loaded  atomic.Bool
	wg      sync.WaitGroup

	idxMu  sync.Mutex
	idxFor *model.FeatureCollection
	idx    *h3index.Index
}

func (s *Session) ID() string { return s.id }

func (s *Session) SetBusy(busy bool) {
	_ = s.push(ServerMessage{Type: MsgBusy, Busy: &busy})
}

func (s *Session) Alert(msg string) {
	_ = s.push(ServerMessage{Type: MsgAlert, Message: msg})
}

func (s *Session) ShowPopup(p popup.Popup) {
	_ = s.push(ServerMessage{Type: MsgPopup, Popup: &PopupPayload{
		Lng:  p.At.Lng,
		Lat:  p.At.Lat,
		Text: p.Text(),
		HTML: p.HTML(),
	}})
}

func (s *Session) HidePopup() {
	_ = s.push(ServerMessage{Type: MsgHidePopup})
}

func (s *Session) protocolError(msg string) {
	_ = s.push(ServerMessage{Type: MsgError, Message: msg})
}

func (s *Session) push(m ServerMessage) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	select {
	case s.send <- m:
		return nil
	case <-s.done:
		return errSessionClosed
	}
}

func (s *Session) close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop()
	}()

	s.readLoop(ctx)

	cancel()
	s.ctl.Close()
	s.wg.Wait()
	s.close()
	<-writerDone
	_ = s.conn.Close()
}

func (s *Session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case m := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(m); err != nil {
				s.logger.Debug("websocket write failed", "err", err)
				s.close()
				_ = s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				_ = s.conn.Close()
				return
			}
		case <-s.done:
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "err", err)
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.dispatch(ctx, msg)
	}
}

func (s *Session) dispatch(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case InPercentile:
		layer := model.PercentileLayer(msg.Layer)
		if !layer.Valid() {
			s.protocolError("unknown percentile layer")
			return
		}
		s.async(func() error { return s.ctl.SetPercentile(ctx, layer) })

	case InCutoff:
		if !s.profile.Controls.DateFilter {
			s.protocolError("date filter is not enabled")
			return
		}
		d, err := model.ParseDate(msg.Date)
		if err != nil {
			s.protocolError("cutoff must be YYYY-MM-DD")
			return
		}
		s.async(func() error { return s.ctl.SetCutoff(ctx, d) })

	case InClearCutoff:
		s.async(func() error { return s.ctl.ClearCutoff(ctx) })

	case InStyleLoaded:
		if err := s.ctl.StyleLoaded(msg.Layers); err != nil {
			s.logger.Error("style reload failed", "err", err)
		}
		if !s.loaded.Swap(true) {
			s.async(func() error { return s.ctl.Load(ctx) })
		}

	case InSwitchStyle:
		if !s.profile.Controls.BaseStyleSwitcher {
			s.protocolError("base style switcher is not enabled")
			return
		}
		if !slices.Contains(BaseStyles, msg.Style) {
			s.protocolError("unknown base style")
			return
		}
		_ = s.push(ServerMessage{Type: MsgSetStyle, Style: msg.Style})

	case InHover:
		s.hover(model.LngLat{Lng: msg.Lng, Lat: msg.Lat}, msg.Properties)

	case InLeave:
		s.ctl.Leave()

	default:
		s.protocolError("unknown message type")
	}
}

// async runs a controller action off the read loop. Actions may overlap; the
// controller drops all but the latest response.
func (s *Session) async(fn func() error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := fn()
		switch {
		case err == nil,
			errors.Is(err, controller.ErrSuperseded),
			errors.Is(err, context.Canceled):
		case errors.Is(err, controller.ErrInvalidLayer),
			errors.Is(err, controller.ErrCutoffOutOfRange):
			s.protocolError(err.Error())
		default:
			s.logger.Debug("controller action failed", "err", err)
		}
	}()
}

// hover uses the properties the renderer reported; without them the county
// is looked up in the current collection.
func (s *Session) hover(at model.LngLat, props map[string]any) {
	if props == nil {
		f, ok := s.lookup(at)
		if !ok {
			s.ctl.Leave()
			return
		}
		props = f.Properties
	}
	s.ctl.Hover(props, at)
}

func (s *Session) lookup(at model.LngLat) (model.Feature, bool) {
	data := s.ctl.Snapshot().Data
	if data == nil {
		return model.Feature{}, false
	}
	s.idxMu.Lock()
	if s.idxFor != data {
		ix, err := h3index.Build(data, s.h3Res)
		if err != nil {
			s.idxMu.Unlock()
			s.logger.Error("h3 index build failed", "err", err)
			return model.Feature{}, false
		}
		s.idx, s.idxFor = ix, data
	}
	ix := s.idx
	s.idxMu.Unlock()

	f, ok, err := ix.Lookup(at)
	if err != nil {
		s.logger.Debug("h3 lookup failed", "err", err)
		return model.Feature{}, false
	}
	return f, ok
}
