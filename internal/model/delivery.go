package model

import (
	"encoding/json"
	"time"
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSuccess DeliveryStatus = "success"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string {
	return string(s)
}

func (s DeliveryStatus) Valid() bool {
	return s == DeliveryStatusPending || s == DeliveryStatusSuccess || s == DeliveryStatusFailed
}

// Terminal reports whether no further attempts may happen for this status.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusSuccess || s == DeliveryStatusFailed
}

// Delivery is one event occurrence's transmission record to one destination,
// spanning one or more HTTP attempts. Payload holds the exact bytes that get
// signed and posted; it is never re-serialized after creation.
type Delivery struct {
	ID             string          `db:"id" json:"id"`
	TenantID       int64           `db:"tenant_id" json:"-"`
	DestinationID  string          `db:"destination_id" json:"destination_id"`
	Event          string          `db:"event" json:"event"`
	Payload        json.RawMessage `db:"payload" json:"payload"`
	Status         DeliveryStatus  `db:"status" json:"status"`
	Attempts       int             `db:"attempts" json:"attempts"`
	ResponseStatus *int            `db:"response_status" json:"response_status,omitempty"`
	ResponseBody   *string         `db:"response_body" json:"response_body,omitempty"`
	CompletedAt    *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}
