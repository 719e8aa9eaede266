package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Destination is a registered webhook subscription: a target URL, the shared
// signing secret, and the set of event names it wants to receive.
type Destination struct {
	ID        string    `db:"id"`
	TenantID  int64     `db:"tenant_id"`
	URL       string    `db:"url"`
	Secret    string    `db:"secret"`
	Events    EventSet  `db:"events"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Subscribed reports whether the destination wants the given event name.
func (d *Destination) Subscribed(event string) bool {
	for _, e := range d.Events {
		if e == event {
			return true
		}
	}
	return false
}

// EventSet is stored as a JSON array in a text column.
type EventSet []string

func (s *EventSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("events: unsupported scan type %T", src)
	}
}

func (s EventSet) Value() (driver.Value, error) {
	if s == nil {
		s = EventSet{}
	}
	return json.Marshal(s)
}
