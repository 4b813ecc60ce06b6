// Package overlay installs the county choropleth onto a map renderer.
package overlay

import (
	"errors"
	"fmt"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/model"
	"github.com/mohammed-shakir/freeze-risk-map/internal/palette"
)

const (
	SourceID    = "counties"
	FillLayerID = "counties"
	LineLayerID = "counties-line"

	DefaultReferenceLayer = "settlement-label"
)

// Renderer is the slice of the map surface the installer drives.
type Renderer interface {
	HasLayer(id string) bool
	RemoveLayer(id string) error
	HasSource(id string) bool
	RemoveSource(id string) error
	AddSource(id string, src Source) error
	AddLayer(l Layer, beforeID string) error
	StyleLayerIDs() []string
}

type Source struct {
	Type string                   `json:"type"`
	Data *model.FeatureCollection `json:"data,omitempty"`
}

type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Layout map[string]any `json:"layout,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

type Installer struct {
	Table          palette.Table
	ReferenceLayer string
}

func NewInstaller(t palette.Table, referenceLayer string) (*Installer, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if referenceLayer == "" {
		referenceLayer = DefaultReferenceLayer
	}
	return &Installer{Table: t, ReferenceLayer: referenceLayer}, nil
}

// BeforeID finds the reference layer in the current style; empty means append on top.
func (in *Installer) BeforeID(r Renderer) string {
	for _, id := range r.StyleLayerIDs() {
		if id == in.ReferenceLayer {
			return id
		}
	}
	return ""
}

// Layers returns the fill and outline definitions keyed on attrs.
func (in *Installer) Layers(attrs model.AttributeSet) []Layer {
	return []Layer{
		{
			ID:     FillLayerID,
			Type:   "fill",
			Source: SourceID,
			Layout: map[string]any{"visibility": "visible"},
			Paint: map[string]any{
				"fill-color":   in.Table.StepExpression(attrs.FreezeDoy),
				"fill-opacity": 1,
			},
		},
		{
			ID:     LineLayerID,
			Type:   "line",
			Source: SourceID,
			Layout: map[string]any{"visibility": "visible"},
			Paint: map[string]any{
				"line-color": "#fff",
				// 0.25px at z4 up to 1.2px at z9
				"line-width": []any{"interpolate", []any{"linear"}, []any{"zoom"}, 4, 0.25, 9, 1.2},
			},
		},
	}
}

// Remove tears down whatever part of the overlay is present.
func (in *Installer) Remove(r Renderer) error {
	var errs []error
	for _, id := range []string{FillLayerID, LineLayerID} {
		if r.HasLayer(id) {
			if err := r.RemoveLayer(id); err != nil {
				errs = append(errs, fmt.Errorf("remove layer %s: %w", id, err))
			}
		}
	}
	if r.HasSource(SourceID) {
		if err := r.RemoveSource(SourceID); err != nil {
			errs = append(errs, fmt.Errorf("remove source %s: %w", SourceID, err))
		}
	}
	return errors.Join(errs...)
}

// Install replaces any existing overlay with one built from fc.
func (in *Installer) Install(r Renderer, fc *model.FeatureCollection, attrs model.AttributeSet) error {
	if fc == nil {
		return errors.New("overlay: nil feature collection")
	}
	if err := in.Remove(r); err != nil {
		return err
	}
	if err := r.AddSource(SourceID, Source{Type: "geojson", Data: fc}); err != nil {
		return fmt.Errorf("add source: %w", err)
	}
	before := in.BeforeID(r)
	for _, l := range in.Layers(attrs) {
		if err := r.AddLayer(l, before); err != nil {
			return fmt.Errorf("add layer %s: %w", l.ID, err)
		}
	}
	return nil
}
