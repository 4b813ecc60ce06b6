package overlay

import (
	"fmt"
	"slices"
	"sync"
)

type Command struct {
	Op       string  `json:"op"`
	ID       string  `json:"id"`
	BeforeID string  `json:"before_id,omitempty"`
	Source   *Source `json:"source,omitempty"`
	Layer    *Layer  `json:"layer,omitempty"`
}

const (
	OpAddSource    = "add_source"
	OpRemoveSource = "remove_source"
	OpAddLayer     = "add_layer"
	OpRemoveLayer  = "remove_layer"
)

// Mirror tracks the remote map's layer stack and forwards every mutation as
// a Command. It enforces the same id rules the renderer does, so a bad
// sequence fails here instead of in the browser.
type Mirror struct {
	mu      sync.Mutex
	stack   []string
	layerOf map[string]string // layer id -> source id
	sources map[string]struct{}
	emit    func(Command) error
}

func NewMirror(emit func(Command) error) *Mirror {
	if emit == nil {
		emit = func(Command) error { return nil }
	}
	return &Mirror{
		layerOf: map[string]string{},
		sources: map[string]struct{}{},
		emit:    emit,
	}
}

// LoadStyle resets the mirror to a freshly loaded base style. Custom layers
// and sources do not survive a style load.
func (m *Mirror) LoadStyle(layerIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stack = slices.Clone(layerIDs)
	m.layerOf = map[string]string{}
	m.sources = map[string]struct{}{}
}

func (m *Mirror) StyleLayerIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.stack)
}

func (m *Mirror) HasLayer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.stack, id)
}

func (m *Mirror) HasSource(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sources[id]
	return ok
}

func (m *Mirror) AddSource(id string, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; ok {
		return fmt.Errorf("source %q already exists", id)
	}
	if err := m.emit(Command{Op: OpAddSource, ID: id, Source: &src}); err != nil {
		return err
	}
	m.sources[id] = struct{}{}
	return nil
}

func (m *Mirror) RemoveSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return fmt.Errorf("source %q does not exist", id)
	}
	for l, s := range m.layerOf {
		if s == id {
			return fmt.Errorf("source %q is in use by layer %q", id, l)
		}
	}
	if err := m.emit(Command{Op: OpRemoveSource, ID: id}); err != nil {
		return err
	}
	delete(m.sources, id)
	return nil
}

func (m *Mirror) AddLayer(l Layer, beforeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(m.stack, l.ID) {
		return fmt.Errorf("layer %q already exists", l.ID)
	}
	if _, ok := m.sources[l.Source]; !ok {
		return fmt.Errorf("layer %q references missing source %q", l.ID, l.Source)
	}
	pos := len(m.stack)
	if beforeID != "" {
		pos = slices.Index(m.stack, beforeID)
		if pos < 0 {
			return fmt.Errorf("before layer %q does not exist", beforeID)
		}
	}
	if err := m.emit(Command{Op: OpAddLayer, ID: l.ID, BeforeID: beforeID, Layer: &l}); err != nil {
		return err
	}
	m.stack = slices.Insert(m.stack, pos, l.ID)
	m.layerOf[l.ID] = l.Source
	return nil
}

func (m *Mirror) RemoveLayer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos := slices.Index(m.stack, id)
	if pos < 0 {
		return fmt.Errorf("layer %q does not exist", id)
	}
	if err := m.emit(Command{Op: OpRemoveLayer, ID: id}); err != nil {
		return err
	}
	m.stack = slices.Delete(m.stack, pos, pos+1)
	delete(m.layerOf, id)
	return nil
}
