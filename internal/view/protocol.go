package view

import (
	"github.com/mohammed-shakir/freeze-risk-map/internal/overlay"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
)

// server -> browser
const (
	MsgInit      = "init"
	MsgRender    = "render"
	MsgBusy      = "busy"
	MsgAlert     = "alert"
	MsgPopup     = "popup"
	MsgHidePopup = "hide_popup"
	MsgSetStyle  = "set_style"
	MsgError     = "error"
)

// browser -> server
const (
	InPercentile  = "percentile"
	InCutoff      = "cutoff"
	InClearCutoff = "clear_cutoff"
	InStyleLoaded = "style_loaded"
	InSwitchStyle = "switch_style"
	InHover       = "hover"
	InLeave       = "leave"
)

var (
	BaseStyles   = []string{"light-v10", "satellite-streets-v11"}
	DefaultStyle = BaseStyles[0]

	// [[west, south], [east, north]]
	USBounds = [2][2]float64{{-135.5, 22.1}, {-66.5, 52.6}}
)

// LegendYear anchors day-of-year breakpoints to calendar dates.
const LegendYear = 2019

type ServerMessage struct {
	Type    string           `json:"type"`
	Init    *InitPayload     `json:"init,omitempty"`
	Command *overlay.Command `json:"command,omitempty"`
	Busy    *bool            `json:"busy,omitempty"`
	Message string           `json:"message,omitempty"`
	Popup   *PopupPayload    `json:"popup,omitempty"`
	Style   string           `json:"style,omitempty"`
}

type LayerOption struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

type InitPayload struct {
	Session      string                `json:"session"`
	Profile      string                `json:"profile"`
	Controls     palette.Controls      `json:"controls"`
	Layers       []LayerOption         `json:"layers"`
	DefaultLayer int                   `json:"default_layer"`
	Styles       []string              `json:"styles,omitempty"`
	DefaultStyle string                `json:"default_style"`
	Bounds       *[2][2]float64        `json:"bounds,omitempty"`
	Legend       []palette.LegendEntry `json:"legend,omitempty"`
	CutoffMin    string                `json:"cutoff_min,omitempty"`
	CutoffMax    string                `json:"cutoff_max,omitempty"`
}

type PopupPayload struct {
	Lng  float64 `json:"lng"`
	Lat  float64 `json:"lat"`
	Text string  `json:"text"`
	HTML string  `json:"html"`
}

// ClientMessage is the union of every browser message; Type selects which
// fields are read.
type ClientMessage struct {
	Type       string         `json:"type"`
	Layer      int            `json:"layer,omitempty"`
	Date       string         `json:"date,omitempty"`
	Layers     []string       `json:"layers,omitempty"`
	Style      string         `json:"style,omitempty"`
	Lng        float64        `json:"lng,omitempty"`
	Lat        float64        `json:"lat,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}
