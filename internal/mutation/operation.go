package mutation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Kind is the write an Operation performs.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Operation is one pending write intent.
type Operation struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	EntityType string          `json:"entityType"`
	Data       json.RawMessage `json:"data"`
	EnqueuedAt int64           `json:"enqueuedAt"` // Unix milliseconds
	RetryCount int             `json:"retryCount"`
}

// NewOperation builds an Operation with a fresh ID. data may be a
// json.RawMessage, []byte holding JSON, or any marshalable value.
func NewOperation(kind Kind, entityType string, data any, now time.Time) (Operation, error) {
	if !kind.Valid() {
		return Operation{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if entityType == "" {
		return Operation{}, ErrMissingEntityType
	}

	raw, err := marshalData(data)
	if err != nil {
		return Operation{}, fmt.Errorf("marshal %s %s data: %w", kind, entityType, err)
	}

	return Operation{
		ID:         uuid.NewString(),
		Kind:       kind,
		EntityType: entityType,
		Data:       raw,
		EnqueuedAt: now.UnixMilli(),
	}, nil
}

// EntityID returns the "id" field of the operation data, if any.
// String and numeric IDs are both accepted.
func (op Operation) EntityID() (string, bool) {
	var fields struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(op.Data, &fields); err != nil || len(fields.ID) == 0 {
		return "", false
	}

	var s string
	if err := json.Unmarshal(fields.ID, &s); err == nil {
		return s, s != ""
	}

	var n json.Number
	if err := json.Unmarshal(fields.ID, &n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), true
		}
	}
	return "", false
}

// Enqueued returns the enqueue time.
func (op Operation) Enqueued() time.Time {
	return time.UnixMilli(op.EnqueuedAt)
}

func marshalData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, ErrInvalidData
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, ErrInvalidData
		}
		return json.RawMessage(v), nil
	default:
		return json.Marshal(v)
	}
}
