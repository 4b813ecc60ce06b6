// Package popup formats the hover popup for a county feature.
package popup

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
)

const NotAvailable = "N/A"

type Popup struct {
	At         model.LngLat `json:"at"`
	County     string       `json:"county"`
	State      string       `json:"state"`
	LayerLabel string       `json:"layer_label"`
	FreezeDate string       `json:"freeze_date"`
	SilkDate   string       `json:"silk_date"`
}

// Format builds the popup from feature properties. It keeps no state between calls.
func Format(props map[string]any, layer model.PercentileLayer, at model.LngLat) Popup {
	a := layer.Attributes()
	return Popup{
		At:         at,
		County:     text(props["name"]),
		State:      text(props["state_name"]),
		LayerLabel: layer.Label(),
		FreezeDate: orNA(props[a.FreezeDate]),
		SilkDate:   orNA(props[a.SilkDate]),
	}
}

func (p Popup) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", p.County, p.State)
	fmt.Fprintf(&b, "Hard Freeze Date (%s): %s\n", p.LayerLabel, p.FreezeDate)
	fmt.Fprintf(&b, "Latest Silking Date: %s", p.SilkDate)
	return b.String()
}

// HTML mirrors the markup the map view renders inside its popup container.
func (p Popup) HTML() string {
	e := html.EscapeString
	return `<div><div class="popup-menu"><p><b>` + e(p.County) + `</b></p>` +
		`<p style="margin-top: 2px">` + e(p.State) + `</p></div>` +
		`<hr>` +
		`<div class="popup-menu"><p><b>Hard Freeze Date</b></p>` +
		`<p class="small" style="margin-top: 2px">` + e(p.LayerLabel) + `</p>` +
		`<p>` + e(p.FreezeDate) + `</p>` +
		`<p><b>Latest Silking Date</b></p>` +
		`<p>` + e(p.SilkDate) + `</p></div></div>`
}

// renderers stringify nulls, so "null" counts as absent too
func orNA(v any) string {
	s := text(v)
	if s == "" || s == "null" {
		return NotAvailable
	}
	return s
}

func text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
