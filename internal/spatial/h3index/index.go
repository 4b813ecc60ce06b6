// Package h3index answers "which county is under this point" for a feature collection.
//
// Features are bucketed by the H3 cells that cover them, so a lookup only runs
// the exact point-in-polygon test against the few features sharing the
// point's cell.
package h3index

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
)

const DefaultRes = 5

// ring is a closed loop of [lng, lat] pairs without the duplicate closing vertex.
type ring [][2]float64

type polygon struct {
	outer ring
	holes []ring
}

type Index struct {
	res     int
	feats   []model.Feature
	shapes  [][]polygon
	cells   map[h3.Cell][]int
	skipped int
}

// Build indexes every polygonal feature of fc at resolution res. Features
// without a usable geometry are skipped and counted.
func Build(fc *model.FeatureCollection, res int) (*Index, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	if fc == nil {
		return nil, errors.New("h3index: nil feature collection")
	}
	ix := &Index{
		res:    res,
		feats:  fc.Features,
		shapes: make([][]polygon, len(fc.Features)),
		cells:  make(map[h3.Cell][]int),
	}
	for i, f := range fc.Features {
		polys, err := parseGeometry(f.Geometry)
		if err != nil || len(polys) == 0 {
			ix.skipped++
			continue
		}
		ix.shapes[i] = polys
		for _, p := range polys {
			cells, err := coverCells(p, res)
			if err != nil {
				return nil, fmt.Errorf("feature %d: %w", i, err)
			}
			for _, c := range cells {
				ix.add(c, i)
			}
		}
	}
	return ix, nil
}

func (ix *Index) add(c h3.Cell, feature int) {
	if slices.Contains(ix.cells[c], feature) {
		return
	}
	ix.cells[c] = append(ix.cells[c], feature)
}

func (ix *Index) Res() int       { return ix.res }
func (ix *Index) Len() int       { return len(ix.feats) - ix.skipped }
func (ix *Index) Skipped() int   { return ix.skipped }
func (ix *Index) CellCount() int { return len(ix.cells) }

// Lookup returns the feature containing p. When several overlap, the one
// earliest in the collection wins.
func (ix *Index) Lookup(p model.LngLat) (model.Feature, bool, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), ix.res)
	if err != nil {
		return model.Feature{}, false, fmt.Errorf("h3 cell for %v: %w", p, err)
	}
	if i, ok := ix.match(ix.cells[cell], p); ok {
		return ix.feats[i], true, nil
	}
	// a thin sliver may cross the point's cell without covering any sample
	disk, err := h3.GridDisk(cell, 1)
	if err != nil {
		return model.Feature{}, false, fmt.Errorf("h3 grid disk: %w", err)
	}
	var near []int
	for _, c := range disk {
		near = append(near, ix.cells[c]...)
	}
	if i, ok := ix.match(near, p); ok {
		return ix.feats[i], true, nil
	}
	return model.Feature{}, false, nil
}

func (ix *Index) match(candidates []int, p model.LngLat) (int, bool) {
	if len(candidates) == 0 {
		return 0, false
	}
	sorted := slices.Clone(candidates)
	slices.Sort(sorted)
	for _, i := range slices.Compact(sorted) {
		for _, poly := range ix.shapes[i] {
			if poly.contains(p.Lng, p.Lat) {
				return i, true
			}
		}
	}
	return 0, false
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// coverCells returns the polyfill of p plus the cells of its vertices, so
// polygons smaller than a cell still land in at least one bucket.
func coverCells(p polygon, res int) ([]h3.Cell, error) {
	gp := h3.GeoPolygon{GeoLoop: toLoop(p.outer)}
	for _, h := range p.holes {
		gp.Holes = append(gp.Holes, toLoop(h))
	}
	cells, err := h3.PolygonToCells(gp, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}
	for _, v := range p.outer {
		c, err := h3.LatLngToCell(h3.NewLatLng(v[1], v[0]), res)
		if err != nil {
			return nil, fmt.Errorf("h3 vertex cell: %w", err)
		}
		cells = append(cells, c)
	}
	slices.Sort(cells)
	return slices.Compact(cells), nil
}

func toLoop(r ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, xy := range r {
		loop = append(loop, h3.LatLng{Lat: xy[1], Lng: xy[0]})
	}
	return loop
}

func parseGeometry(raw json.RawMessage) ([]polygon, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var g struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse geometry: %w", err)
	}
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("parse polygon coords: %w", err)
		}
		p, err := toPolygon(rings)
		if err != nil {
			return nil, err
		}
		return []polygon{p}, nil
	case "MultiPolygon":
		var parts [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &parts); err != nil {
			return nil, fmt.Errorf("parse multipolygon coords: %w", err)
		}
		out := make([]polygon, 0, len(parts))
		for i, rings := range parts {
			p, err := toPolygon(rings)
			if err != nil {
				return nil, fmt.Errorf("polygon %d: %w", i, err)
			}
			out = append(out, p)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

func toPolygon(rings [][][]float64) (polygon, error) {
	if len(rings) == 0 {
		return polygon{}, errors.New("empty polygon")
	}
	outer := toRing(rings[0])
	if len(outer) < 3 {
		return polygon{}, errors.New("outer ring has < 3 distinct vertices")
	}
	p := polygon{outer: outer}
	for i := 1; i < len(rings); i++ {
		h := toRing(rings[i])
		if len(h) < 3 {
			return polygon{}, fmt.Errorf("hole %d has < 3 distinct vertices", i-1)
		}
		p.holes = append(p.holes, h)
	}
	return p, nil
}

func toRing(coords [][]float64) ring {
	r := make(ring, 0, len(coords))
	for _, xy := range coords {
		if len(xy) < 2 {
			continue
		}
		r = append(r, [2]float64{xy[0], xy[1]})
	}
	if n := len(r); n >= 2 && r[0] == r[n-1] {
		r = r[:n-1]
	}
	return r
}

func (p polygon) contains(x, y float64) bool {
	if !p.outer.contains(x, y) {
		return false
	}
	for _, h := range p.holes {
		if h.contains(x, y) {
			return false
		}
	}
	return true
}

// contains is the even-odd ray cast in plain lng/lat degrees.
func (r ring) contains(x, y float64) bool {
	in := false
	for i, j := 0, len(r)-1; i < len(r); j, i = i, i+1 {
		xi, yi := r[i][0], r[i][1]
		xj, yj := r[j][0], r[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			in = !in
		}
	}
	return in
}
