package protocol

import (
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/framebridge/internal/protocol/frame"
	"github.com/danmuck/framebridge/internal/protocol/schema"
	"github.com/danmuck/framebridge/internal/protocol/tlv"
	"github.com/google/uuid"
)

// NavigationEvent is the one piece of state synchronized across the
// frame boundary: the embedded document's current logical path.
type NavigationEvent struct {
	Path  string
	State any
}

func (e NavigationEvent) Validate() error {
	if strings.TrimSpace(e.Path) == "" {
		return ErrMissingPath
	}
	return nil
}

// Message is one decoded wire message.
type Message struct {
	Kind        uint32
	Sequence    uint64
	Channel     uuid.UUID
	TimestampMS uint64
	Event       NavigationEvent
}

func (m Message) Validate() error {
	switch m.Kind {
	case schema.KindHello:
		if m.Channel == uuid.Nil {
			return fmt.Errorf("%w: hello", ErrUnexpectedID)
		}
		return nil
	case schema.KindReady:
		return nil
	case schema.KindNavigate:
		if m.Channel == uuid.Nil {
			return fmt.Errorf("%w: navigate", ErrUnexpectedID)
		}
		return m.Event.Validate()
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, m.Kind)
	}
}

func Hello(channel uuid.UUID) Message {
	return Message{Kind: schema.KindHello, Channel: channel}
}

func Ready(channel uuid.UUID) Message {
	return Message{Kind: schema.KindReady, Channel: channel}
}

func Navigate(channel uuid.UUID, event NavigationEvent) Message {
	return Message{Kind: schema.KindNavigate, Channel: channel, Event: event}
}

// Encode renders m as one datagram suitable for Window.PostMessage.
func Encode(m Message) ([]byte, error) {
	f, err := toFrame(m)
	if err != nil {
		return nil, err
	}
	return frame.Encode(f, frame.DefaultLimits())
}

// Decode parses one datagram and validates it against the schema.
func Decode(b []byte) (Message, error) {
	f, err := frame.Decode(b, frame.DefaultLimits())
	if err != nil {
		return Message{}, err
	}
	return fromFrame(f)
}

// WriteMessage writes m to a byte stream.
func WriteMessage(w io.Writer, m Message) error {
	f, err := toFrame(m)
	if err != nil {
		return err
	}
	return frame.WriteFrame(w, f, frame.DefaultLimits())
}

// ReadMessage reads one message from a byte stream.
func ReadMessage(r io.Reader) (Message, error) {
	f, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil {
		return Message{}, err
	}
	return fromFrame(f)
}

func toFrame(m Message) (frame.Frame, error) {
	if err := m.Validate(); err != nil {
		return frame.Frame{}, err
	}
	fields := make([]tlv.Field, 0, 3)
	if m.Kind == schema.KindNavigate {
		fields = append(fields, tlv.String(schema.FieldPath, m.Event.Path))
		if m.Event.State != nil {
			state, err := encodeState(m.Event.State)
			if err != nil {
				return frame.Frame{}, err
			}
			fields = append(fields, tlv.Bytes(schema.FieldState, state))
		}
	}
	if m.TimestampMS != 0 {
		fields = append(fields, tlv.U64(schema.FieldTimestampMS, m.TimestampMS))
	}
	if err := schema.Validate(m.Kind, fields); err != nil {
		return frame.Frame{}, err
	}
	return frame.Frame{
		Header: frame.Header{
			Kind:     m.Kind,
			Sequence: m.Sequence,
			Channel:  m.Channel,
		},
		Payload: tlv.EncodeFields(fields),
	}, nil
}

func fromFrame(f frame.Frame) (Message, error) {
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return Message{}, err
	}
	if err := schema.Validate(f.Header.Kind, fields); err != nil {
		return Message{}, err
	}
	m := Message{
		Kind:     f.Header.Kind,
		Sequence: f.Header.Sequence,
		Channel:  uuid.UUID(f.Header.Channel),
	}
	if pathField, ok := tlv.GetField(fields, schema.FieldPath); ok {
		m.Event.Path, _ = pathField.Text()
	}
	if stateField, ok := tlv.GetField(fields, schema.FieldState); ok {
		raw, _ := stateField.Raw()
		state, err := decodeState(raw)
		if err != nil {
			return Message{}, err
		}
		m.Event.State = state
	}
	if tsField, ok := tlv.GetField(fields, schema.FieldTimestampMS); ok {
		ts, err := tsField.Uint64()
		if err != nil {
			return Message{}, err
		}
		m.TimestampMS = ts
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
