package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AggregateType values
const (
	AggregateVault = "vault"
)

// Envelope is the wire form of a committed operation, as published to the
// broker and streamed to WebSocket clients.
type Envelope struct {
	ID            uuid.UUID       `json:"id"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregate_type"`
	Sequence      int64           `json:"sequence"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	Data          json.RawMessage `json:"data"`
	Metadata      Metadata        `json:"metadata"`
}

// Metadata contains envelope metadata
type Metadata struct {
	Actor  string `json:"actor"`
	Source string `json:"source"`
}

// EnvelopeVersion is the current envelope layout
const EnvelopeVersion = 1

// NewEnvelope wraps data for publication
func NewEnvelope(id uuid.UUID, eventType string, seq int64, at time.Time, actor, source string, data interface{}) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:            id,
		Type:          eventType,
		AggregateType: AggregateVault,
		Sequence:      seq,
		Timestamp:     at,
		Version:       EnvelopeVersion,
		Data:          raw,
		Metadata:      Metadata{Actor: actor, Source: source},
	}, nil
}
