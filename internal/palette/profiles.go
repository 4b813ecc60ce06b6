package palette

import (
	"fmt"
	"sort"
	"strings"
)

// Controls toggles the view controls a profile ships with.
type Controls struct {
	BaseStyleSwitcher bool `json:"base_style_switcher"`
	DateFilter        bool `json:"date_filter"`
	ZoomToUS          bool `json:"zoom_to_us"`
	Legend            bool `json:"legend"`
}

// Profile collapses one revision of the viewer into configuration.
type Profile struct {
	Name     string
	Table    Table
	Controls Controls
}

var (
	sevenBreaks = []float64{239, 271, 286, 298, 308, 321, 335}
	eightColors = []string{"#5c53a5", "#a059a0", "#ce6693", "#eb7f86", "#f8a07e", "#fac484", "#f3e79b", "#dfdfdf"}

	// leading 1 separates null (coerced to 0) from real early freezes
	sentinelBreaks = []float64{1, 239, 271, 286, 298, 308, 321, 335}
	nineColors     = []string{"#f1f1f0", "#5c53a5", "#a059a0", "#ce6693", "#eb7f86", "#f8a07e", "#fac484", "#f3e79b", "#dfdfdf"}
)

const DefaultProfile = "v4"

var profiles = map[string]Profile{
	"v1": {
		Name:     "v1",
		Table:    Table{Thresholds: sevenBreaks, Colors: eightColors},
		Controls: Controls{},
	},
	"v2": {
		Name:     "v2",
		Table:    Table{Thresholds: sevenBreaks, Colors: eightColors},
		Controls: Controls{BaseStyleSwitcher: true},
	},
	"v3": {
		Name:     "v3",
		Table:    Table{Thresholds: sentinelBreaks, Colors: nineColors},
		Controls: Controls{BaseStyleSwitcher: true, DateFilter: true},
	},
	"v4": {
		Name:     "v4",
		Table:    Table{Thresholds: sentinelBreaks, Colors: nineColors},
		Controls: Controls{BaseStyleSwitcher: true, DateFilter: true, ZoomToUS: true, Legend: true},
	},
}

func LookupProfile(name string) (Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = DefaultProfile
	}
	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (have %s)", name, strings.Join(ProfileNames(), ","))
	}
	return p, nil
}

func ProfileNames() []string {
	out := make([]string, 0, len(profiles))
	for k := range profiles {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
