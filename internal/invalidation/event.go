// Package invalidation defines the dataset refresh events that retire cached query results.
package invalidation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mohammed-shakir/freeze-risk-map/internal/core/cartosql"
)

const (
	OpRefresh  = "refresh"
	OpTruncate = "truncate"
)

// Event announces that a CARTO table was reloaded. Version increases
// monotonically per table; replays of an older version are ignored.
type Event struct {
	Version uint64    `json:"version"`
	Op      string    `json:"op"`
	Table   string    `json:"table"`
	TS      time.Time `json:"ts"`
	Source  string    `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version == 0 {
		return errors.New("version must be > 0")
	}
	switch e.Op {
	case OpRefresh, OpTruncate:
	default:
		return fmt.Errorf("op must be %s|%s", OpRefresh, OpTruncate)
	}
	if strings.TrimSpace(e.Table) == "" {
		return errors.New("table is required")
	}
	if !cartosql.ValidTable(e.Table) {
		return fmt.Errorf("table %q is not a valid identifier", e.Table)
	}
	if e.TS.IsZero() {
		return errors.New("ts is required")
	}
	return nil
}

// Decode parses and validates a wire message.
func Decode(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, fmt.Errorf("invalid event: %w", err)
	}
	return ev, nil
}
