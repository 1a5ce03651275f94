package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type is the category tag of a message. Handlers subscribe by Type.
type Type string

// Known message categories. Other values are accepted and routed as-is.
const (
	TypeNotification   Type = "notification"
	TypeTaskUpdate     Type = "task_update"
	TypeProjectUpdate  Type = "project_update"
	TypeDocumentUpdate Type = "document_update"
	TypeChatMessage    Type = "chat_message"
	TypeUserStatus     Type = "user_status"
	TypeCollaboration  Type = "collaboration"
	TypeSystem         Type = "system"
)

// Heartbeat actions, always carried on TypeSystem.
const (
	ActionPing = "ping"
	ActionPong = "pong"
)

// ErrMissingType is returned when decoding an envelope without a type.
var ErrMissingType = errors.New("message has no type")

// Message is the envelope for every frame on the wire.
// Treat it as immutable once constructed.
type Message struct {
	Type      Type            `json:"type"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
	SenderID  string          `json:"senderId,omitempty"`
	TargetID  string          `json:"targetId,omitempty"`
}

// NewMessage builds a message stamped with the current time.
// payload may be nil, a json.RawMessage, or any JSON-marshalable value.
func NewMessage(t Type, action string, payload any, targetID string) (Message, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s/%s payload: %w", t, action, err)
	}

	return Message{
		Type:      t,
		Action:    action,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
		TargetID:  targetID,
	}, nil
}

// Encode serializes the message for the transport.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a frame received from the transport.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, ErrMissingType
	}
	return m, nil
}

// UnmarshalPayload decodes the payload into v.
func (m Message) UnmarshalPayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// Time returns the message timestamp.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsHeartbeat reports whether m is a keep-alive ping.
func (m Message) IsHeartbeat() bool {
	return m.Type == TypeSystem && m.Action == ActionPing
}

// IsHeartbeatReply reports whether m answers a keep-alive ping.
func (m Message) IsHeartbeatReply() bool {
	return m.Type == TypeSystem && m.Action == ActionPong
}

// heartbeatPayload is the body of ping and pong frames.
type heartbeatPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// Ping returns the keep-alive frame sent while connected.
func Ping(now time.Time) Message {
	return heartbeat(ActionPing, now)
}

// Pong returns the reply a server sends for Ping.
func Pong(now time.Time) Message {
	return heartbeat(ActionPong, now)
}

func heartbeat(action string, now time.Time) Message {
	ms := now.UnixMilli()
	raw, _ := json.Marshal(heartbeatPayload{Timestamp: ms})
	return Message{
		Type:      TypeSystem,
		Action:    action,
		Payload:   raw,
		Timestamp: ms,
	}
}

func marshalPayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, errors.New("payload bytes are not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		return json.Marshal(p)
	}
}
