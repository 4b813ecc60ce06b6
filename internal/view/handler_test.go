package view

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
	"github.com/mohammed-shakir/freeze-risk-map/internal/overlay"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
)

const storyCounty = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[-93.70,41.86],[-93.23,41.86],[-93.23,42.21],[-93.70,42.21],[-93.70,41.86]]]},
  "properties":{"geoid":"19169","name":"Story County","state_name":"Iowa","f_10_doy":280,"f_10_date":"2019-10-07","s_10_date":"2019-07-20"}}]}`

type fixtureFetcher struct {
	mu      sync.Mutex
	queries []model.Query
}

func (f *fixtureFetcher) Fetch(_ context.Context, q model.Query) (*model.FeatureCollection, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return model.ParseFeatureCollection([]byte(storyCounty))
}

func (f *fixtureFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func (f *fixtureFetcher) last() model.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func startServer(t *testing.T, profile string) (*websocket.Conn, *fixtureFetcher, *Handler) {
	t.Helper()
	p, err := palette.LookupProfile(profile)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	f := &fixtureFetcher{}
	h, err := NewHandler(Config{
		Fetcher:     f,
		Profile:     p,
		CutoffRange: model.DateRange{Min: model.NewDate(2019, 6, 1), Max: model.NewDate(2019, 10, 31)},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, f, h
}

func next(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var m ServerMessage
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

// until reads messages until pred matches and returns everything read.
func until(t *testing.T, conn *websocket.Conn, pred func(ServerMessage) bool) []ServerMessage {
	t.Helper()
	var seen []ServerMessage
	for i := 0; i < 50; i++ {
		m := next(t, conn)
		seen = append(seen, m)
		if pred(m) {
			return seen
		}
	}
	t.Fatalf("predicate never matched; saw %d messages", len(seen))
	return nil
}

func send(t *testing.T, conn *websocket.Conn, m ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(m); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func lineInstalled(m ServerMessage) bool {
	return m.Type == MsgRender && m.Command.Op == overlay.OpAddLayer && m.Command.ID == overlay.LineLayerID
}

var baseLayers = []string{"background", "water", "settlement-label"}

func loadDefault(t *testing.T, conn *websocket.Conn) []ServerMessage {
	t.Helper()
	send(t, conn, ClientMessage{Type: InStyleLoaded, Layers: baseLayers})
	return until(t, conn, lineInstalled)
}

func TestInit_V4Payload(t *testing.T) {
	conn, _, _ := startServer(t, "v4")
	m := next(t, conn)
	if m.Type != MsgInit || m.Init == nil {
		t.Fatalf("first message=%+v", m)
	}
	in := m.Init
	if in.Profile != "v4" || in.DefaultLayer != 10 || len(in.Layers) != 4 {
		t.Fatalf("init=%+v", in)
	}
	if in.Layers[0].Label != "1 of past 10 years" {
		t.Fatalf("label=%q", in.Layers[0].Label)
	}
	if in.Bounds == nil || in.Bounds[0][0] != -135.5 || in.Bounds[1][1] != 52.6 {
		t.Fatalf("bounds=%v", in.Bounds)
	}
	if len(in.Styles) != 2 || len(in.Legend) != 9 || in.CutoffMin != "2019-06-01" || in.CutoffMax != "2019-10-31" {
		t.Fatalf("styles=%v legend=%d cutoff=%s..%s", in.Styles, len(in.Legend), in.CutoffMin, in.CutoffMax)
	}
}

func TestInit_V1HasNoControls(t *testing.T) {
	conn, _, _ := startServer(t, "v1")
	in := next(t, conn).Init
	if in.Bounds != nil || in.Styles != nil || in.Legend != nil || in.CutoffMin != "" {
		t.Fatalf("v1 init should carry no optional controls: %+v", in)
	}
}

func TestStyleLoaded_FirstLoadInstallsOverlay(t *testing.T) {
	conn, f, _ := startServer(t, "v4")
	next(t, conn)
	msgs := loadDefault(t, conn)

	var busy []bool
	var ops []string
	for _, m := range msgs {
		switch m.Type {
		case MsgBusy:
			busy = append(busy, *m.Busy)
		case MsgRender:
			ops = append(ops, m.Command.Op+":"+m.Command.ID+">"+m.Command.BeforeID)
		}
	}
	if len(busy) != 2 || !busy[0] || busy[1] {
		t.Fatalf("busy=%v", busy)
	}
	want := []string{"add_source:counties>", "add_layer:counties>settlement-label", "add_layer:counties-line>settlement-label"}
	if strings.Join(ops, ",") != strings.Join(want, ",") {
		t.Fatalf("ops=%v", ops)
	}
	if f.count() != 1 || strings.Contains(f.last().SQL, "<=") {
		t.Fatalf("fetches=%d", f.count())
	}
}

func TestPercentileAndCutoff(t *testing.T) {
	conn, f, _ := startServer(t, "v4")
	next(t, conn)
	loadDefault(t, conn)

	send(t, conn, ClientMessage{Type: InPercentile, Layer: 50})
	msgs := until(t, conn, lineInstalled)
	var fill []byte
	for _, m := range msgs {
		if m.Type == MsgRender && m.Command.Op == overlay.OpAddLayer && m.Command.ID == overlay.FillLayerID {
			fill, _ = json.Marshal(m.Command.Layer.Paint)
		}
	}
	if !strings.Contains(string(fill), `"f_50_doy"`) {
		t.Fatalf("fill paint=%s", fill)
	}

	send(t, conn, ClientMessage{Type: InCutoff, Date: "2019-08-15"})
	until(t, conn, lineInstalled)
	if !strings.Contains(f.last().SQL, "s_50_date <= '2019-08-15'") {
		t.Fatalf("sql=%s", f.last().SQL)
	}
}

func TestCutoff_Rejected(t *testing.T) {
	conn, f, _ := startServer(t, "v4")
	next(t, conn)
	loadDefault(t, conn)

	send(t, conn, ClientMessage{Type: InCutoff, Date: "08/15/2019"})
	if m := next(t, conn); m.Type != MsgError {
		t.Fatalf("got %+v", m)
	}
	send(t, conn, ClientMessage{Type: InCutoff, Date: "2019-12-01"})
	if m := next(t, conn); m.Type != MsgError || !strings.Contains(m.Message, "cutoff") {
		t.Fatalf("got %+v", m)
	}
	if f.count() != 1 {
		t.Fatalf("rejected cutoffs must not fetch, count=%d", f.count())
	}
}

func TestSwitchStyle_ReinstallWithoutFetch(t *testing.T) {
	conn, f, _ := startServer(t, "v4")
	next(t, conn)
	loadDefault(t, conn)

	send(t, conn, ClientMessage{Type: InSwitchStyle, Style: "satellite-streets-v11"})
	if m := next(t, conn); m.Type != MsgSetStyle || m.Style != "satellite-streets-v11" {
		t.Fatalf("got %+v", m)
	}
	send(t, conn, ClientMessage{Type: InStyleLoaded, Layers: []string{"satellite", "settlement-label", "poi-label"}})
	msgs := until(t, conn, lineInstalled)
	for _, m := range msgs {
		if m.Type == MsgRender && m.Command.Op == overlay.OpAddLayer && m.Command.BeforeID != "settlement-label" {
			t.Fatalf("layer not below reference: %+v", m.Command)
		}
		if m.Type == MsgBusy {
			t.Fatal("style reload must not fetch")
		}
	}
	if f.count() != 1 {
		t.Fatalf("fetches=%d want 1", f.count())
	}

	send(t, conn, ClientMessage{Type: InSwitchStyle, Style: "dark-v10"})
	if m := next(t, conn); m.Type != MsgError {
		t.Fatalf("got %+v", m)
	}
}

func TestSwitchStyle_DisabledInV1(t *testing.T) {
	conn, _, _ := startServer(t, "v1")
	next(t, conn)
	send(t, conn, ClientMessage{Type: InSwitchStyle, Style: "satellite-streets-v11"})
	if m := next(t, conn); m.Type != MsgError {
		t.Fatalf("got %+v", m)
	}
}

func TestHover_LookupByPoint(t *testing.T) {
	conn, _, _ := startServer(t, "v4")
	next(t, conn)
	loadDefault(t, conn)

	send(t, conn, ClientMessage{Type: InHover, Lng: -93.46, Lat: 42.03})
	m := next(t, conn)
	if m.Type != MsgPopup || m.Popup == nil {
		t.Fatalf("got %+v", m)
	}
	if !strings.Contains(m.Popup.Text, "Story County") || !strings.Contains(m.Popup.Text, "2019-10-07") {
		t.Fatalf("popup text=%q", m.Popup.Text)
	}

	send(t, conn, ClientMessage{Type: InHover, Lng: -80, Lat: 35})
	if m := next(t, conn); m.Type != MsgHidePopup {
		t.Fatalf("outside any county: %+v", m)
	}

	send(t, conn, ClientMessage{Type: InHover, Lng: 1, Lat: 2, Properties: map[string]any{"name": "Given County", "state_name": "Ohio"}})
	if m := next(t, conn); m.Type != MsgPopup || !strings.Contains(m.Popup.Text, "Given County") {
		t.Fatalf("got %+v", m)
	}
	send(t, conn, ClientMessage{Type: InLeave})
	if m := next(t, conn); m.Type != MsgHidePopup {
		t.Fatalf("got %+v", m)
	}
}

func TestUnknownMessage(t *testing.T) {
	conn, _, _ := startServer(t, "v4")
	next(t, conn)
	send(t, conn, ClientMessage{Type: "zoom"})
	if m := next(t, conn); m.Type != MsgError {
		t.Fatalf("got %+v", m)
	}
}

func TestShutdown_ClosesSessions(t *testing.T) {
	conn, _, h := startServer(t, "v4")
	next(t, conn)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := h.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if h.Active() != 0 {
		t.Fatalf("active=%d", h.Active())
	}
}
