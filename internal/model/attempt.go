package model

import "time"

// DeliveryAttempt is one row of the per-attempt audit log. The delivery row
// keeps only the last response; this table keeps all of them.
type DeliveryAttempt struct {
	ID             int64     `db:"id" json:"id"`
	DeliveryID     string    `db:"delivery_id" json:"delivery_id"`
	AttemptNo      int       `db:"attempt_no" json:"attempt_no"`
	ResponseStatus *int      `db:"response_status" json:"response_status,omitempty"`
	ResponseBody   string    `db:"response_body" json:"response_body"`
	LatencyMs      int64     `db:"latency_ms" json:"latency_ms"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
