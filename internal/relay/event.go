package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/recstore/internal/notify"
)

// Event is one row change as seen by external observers.
type Event struct {
	Connection string      `json:"connection"`
	Kind       notify.Kind `json:"kind"`
	RowID      int64       `json:"rowid"`
	Database   string      `json:"database,omitempty"`
	Table      string      `json:"table,omitempty"`
	At         time.Time   `json:"at"`
}

// NewEvent builds an event for change observed on connection at time at.
func NewEvent(connection string, change notify.RowChange, at time.Time) Event {
	return Event{
		Connection: connection,
		Kind:       change.Kind,
		RowID:      change.RowID,
		Database:   change.Database,
		Table:      change.Table,
		At:         at.UTC(),
	}
}

// Encode returns the JSON form of e.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return data, nil
}
