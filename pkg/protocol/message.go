// Package protocol implements the JSON messages exchanged with the blurring
// service over the live websocket.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type tags.
const (
	TypeFrame = "frame"
	TypePong  = "pong"
	TypePing  = "ping"
	TypeError = "error"
)

// ErrUnrecognized is returned by Parse for payloads that match none of the
// known server message shapes.
var ErrUnrecognized = errors.New("unrecognized message")

// Kind identifies which variant of an InboundMessage is set.
type Kind int

const (
	KindFrame Kind = iota + 1
	KindPong
	KindPing
	KindError
)

// String returns the wire tag of the kind.
func (k Kind) String() string {
	switch k {
	case KindFrame:
		return TypeFrame
	case KindPong:
		return TypePong
	case KindPing:
		return TypePing
	case KindError:
		return TypeError
	default:
		return "unknown"
	}
}

// OutboundFrame is a captured frame sent to the service
type OutboundFrame struct {
	Type          string   `json:"type"`
	Frame         string   `json:"frame"`           // base64 JPEG
	ClassesNoBlur []string `json:"classes_no_blur"` // lowercase target names
}

// InboundMessage is a message received from the service. Exactly one of the
// variants is set, as reported by Kind.
type InboundMessage struct {
	Kind   Kind
	Frame  string // base64 JPEG, KindFrame only
	Detail string // server error text, KindError only
}

// EncodeFrame builds the wire form of an outbound frame.
func EncodeFrame(payload string, names []string) ([]byte, error) {
	if names == nil {
		names = []string{}
	}
	data, err := json.Marshal(OutboundFrame{
		Type:          TypeFrame,
		Frame:         payload,
		ClassesNoBlur: names,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return data, nil
}

// Pong returns the reply to a server heartbeat.
func Pong() []byte {
	return []byte(`{"type":"pong"}`)
}

// rawInbound mirrors every field a server message may carry. Pointers keep
// "absent" distinct from "empty".
type rawInbound struct {
	Type  *string `json:"type"`
	Frame *string `json:"frame"`
	Error *string `json:"error"`
}

// Parse decodes a server message. The accepted shapes are
//
//	{"type":"pong"}  {"type":"ping"}  {"frame":"..."}  {"error":"..."}
//
// where frame and error messages may also carry a matching "type". Anything
// else, including empty values or a payload carrying two variants, fails
// with ErrUnrecognized.
func Parse(raw []byte) (InboundMessage, error) {
	var m rawInbound
	if err := json.Unmarshal(raw, &m); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrUnrecognized, err)
	}

	var typ string
	if m.Type != nil {
		typ = *m.Type
	}

	switch {
	case m.Frame != nil && m.Error != nil:
		return InboundMessage{}, fmt.Errorf("%w: both frame and error set", ErrUnrecognized)

	case m.Frame != nil:
		if *m.Frame == "" || (m.Type != nil && typ != TypeFrame) {
			return InboundMessage{}, fmt.Errorf("%w: bad frame message", ErrUnrecognized)
		}
		return InboundMessage{Kind: KindFrame, Frame: *m.Frame}, nil

	case m.Error != nil:
		if *m.Error == "" || (m.Type != nil && typ != TypeError) {
			return InboundMessage{}, fmt.Errorf("%w: bad error message", ErrUnrecognized)
		}
		return InboundMessage{Kind: KindError, Detail: *m.Error}, nil

	case typ == TypePong:
		return InboundMessage{Kind: KindPong}, nil

	case typ == TypePing:
		return InboundMessage{Kind: KindPing}, nil
	}

	return InboundMessage{}, ErrUnrecognized
}
