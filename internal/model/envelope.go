package model

// Envelope is the payload published to Kafka for each created delivery
// (via the Debezium outbox SMT). The worker loads the full delivery row
// by ID; the envelope only carries routing data.
type Envelope struct {
	DeliveryID    string `json:"delivery_id"`
	DestinationID string `json:"destination_id"`
	Event         string `json:"event"`
}
