package schema

import (
	"fmt"

	"github.com/danmuck/framebridge/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message kinds.
const (
	KindHello    uint32 = 1 // host -> frame, announces the channel id
	KindReady    uint32 = 2 // frame -> host, handshake acknowledgment
	KindNavigate uint32 = 3 // either direction
)

// Field IDs.
const (
	FieldPath        uint16 = 1
	FieldState       uint16 = 2
	FieldTimestampMS uint16 = 3
)

type Requirement struct {
	ID       uint16
	Type     uint8
	Required bool
}

type ValidationError struct {
	Kind    uint32
	FieldID uint16
	Reason  string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: kind=%s: %s", KindName(e.Kind), e.Reason)
	}
	return fmt.Sprintf("schema: kind=%s field=%d: %s", KindName(e.Kind), e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	KindHello: {
		{FieldTimestampMS, tlv.TypeU64, false},
	},
	KindReady: {
		{FieldTimestampMS, tlv.TypeU64, false},
	},
	KindNavigate: {
		{FieldPath, tlv.TypeString, true},
		{FieldState, tlv.TypeBytes, false},
		{FieldTimestampMS, tlv.TypeU64, false},
	},
}

func KindName(kind uint32) string {
	switch kind {
	case KindHello:
		return "hello"
	case KindReady:
		return "ready"
	case KindNavigate:
		return "navigate"
	default:
		return fmt.Sprintf("unknown(%d)", kind)
	}
}

// Validate enforces required fields and the types of known fields.
// Unknown fields are ignored.
func Validate(kind uint32, fields []tlv.Field) error {
	reqs, ok := requirements[kind]
	if !ok {
		log.Debug().Uint32("kind", kind).Msg("schema.Validate unknown kind")
		return ValidationError{Kind: kind, Reason: "unknown kind"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			if !req.Required {
				continue
			}
			return ValidationError{Kind: kind, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Debug().
				Str("kind", KindName(kind)).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{Kind: kind, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	return nil
}
