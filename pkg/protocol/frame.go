package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// MaxFrameSize is the largest envelope the server will read (64 KB)
	MaxFrameSize = 64 * 1024

	// ProtocolVersion is reported to clients in server_info
	ProtocolVersion = "1.0.0"
)

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrUnknownType       = errors.New("unknown message type")
	ErrInvalidPayload    = errors.New("payload does not match message type")
)

// Envelope is the self-describing wrapper every frame travels in.
// Format: {"type": <tag>, "data": <object>, "timestamp": <epoch seconds>}
type Envelope struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp float64         `json:"timestamp"`
}

// Time converts the envelope timestamp back into a time.Time
func (e Envelope) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Encode wraps msg in an envelope stamped with the current time
func Encode(msg Message) ([]byte, error) {
	return EncodeAt(msg, time.Now())
}

// EncodeAt wraps msg in an envelope stamped with the given time
func EncodeAt(msg Message, at time.Time) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode: %w", ErrInvalidPayload)
	}
	msgType := msg.Type()
	if !msgType.Valid() {
		return nil, fmt.Errorf("encode %q: %w", msgType, ErrUnknownType)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}

	env := Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: float64(at.UnixNano()) / float64(time.Second),
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", msgType, err)
	}
	return frame, nil
}

// MustEncode is Encode for payloads that cannot fail to marshal
func MustEncode(msg Message) []byte {
	frame, err := Encode(msg)
	if err != nil {
		panic(err)
	}
	return frame
}

// Decode parses a frame into its tag and typed payload.
// Anything that cannot be understood yields ("", nil); callers ignore it.
func Decode(frame []byte) (MessageType, Message) {
	env, msg, err := DecodeEnvelope(frame)
	if err != nil {
		return "", nil
	}
	return env.Type, msg
}

// DecodeEnvelope is Decode with the envelope and the reason for rejection exposed
func DecodeEnvelope(frame []byte) (Envelope, Message, error) {
	var env Envelope
	if len(frame) > MaxFrameSize {
		return env, nil, fmt.Errorf("%d bytes: %w", len(frame), ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		return env, nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	msg := newMessage(env.Type)
	if msg == nil {
		return env, nil, fmt.Errorf("%q: %w", env.Type, ErrUnknownType)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, msg, nil
	}
	if data[0] != '{' {
		return env, nil, fmt.Errorf("%s: %w", env.Type, ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return env, nil, fmt.Errorf("%s: %w: %v", env.Type, ErrInvalidPayload, err)
	}
	return env, msg, nil
}
