package inbound

import "time"

// PayloadType discriminates the origin of an inbound record.
type PayloadType string

const (
	PayloadWebhook PayloadType = "webhook"
	PayloadGstin   PayloadType = "gstin"
)

// Payload is an immutable raw record as it arrived. The engine treats the
// body as opaque; history entries reference payloads for traceability.
type Payload struct {
	ID         string
	BusinessID string
	Type       PayloadType
	RawBody    []byte
	ReceivedAt time.Time
}
