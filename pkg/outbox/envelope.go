package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyEnvelopeData marks a stored event whose envelope has no payload.
var ErrEmptyEnvelopeData = errors.New("envelope carries no data")

// ActorRef is the buyer whose request produced an order event.
type ActorRef struct {
	UserID int64 `json:"userId"`
}

// PayloadEnvelope wraps every order event written to outbox_events.payload.
// EventID is also what consumers dedupe on.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func newEnvelope(event DomainEvent, data []byte) PayloadEnvelope {
	version := event.Version
	if version == 0 {
		version = 1
	}
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
}

// DecodeEnvelope parses a stored payload column. An envelope whose data is
// absent or null returns ErrEmptyEnvelopeData.
func DecodeEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return env, ErrEmptyEnvelopeData
	}
	return env, nil
}
