package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope is the transport level frame: routing metadata plus the encoded
// message payload. It owns a copy of the payload and is otherwise opaque to
// the dialogue engine.
type Envelope struct {
	To         string
	Sender     string
	ProtocolID string
	Message    []byte
	URI        string
}

// MarshalBinary serializes the envelope in the Protobuf wire format
// (fields: 1 to, 2 sender, 3 protocol_id, 4 message, 5 uri).
func (e *Envelope) MarshalBinary() ([]byte, error) {
	var buf []byte
	buf = appendString(buf, 1, e.To)
	buf = appendString(buf, 2, e.Sender)
	buf = appendString(buf, 3, e.ProtocolID)
	if len(e.Message) > 0 {
		buf = protowire.AppendTag(buf, 4, protowire.BytesType)
		buf = protowire.AppendBytes(buf, e.Message)
	}
	buf = appendString(buf, 5, e.URI)
	return buf, nil
}

// UnmarshalBinary parses the wire form produced by MarshalBinary.
func (e *Envelope) UnmarshalBinary(data []byte) error {
	*e = Envelope{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("envelope: %w", ErrTruncated)
		}
		data = data[n:]
		switch num {
		case 1, 2, 3, 5:
			s, n2 := protowire.ConsumeString(data)
			if n2 < 0 {
				return fmt.Errorf("envelope field %d: %w", num, ErrTruncated)
			}
			switch num {
			case 1:
				e.To = s
			case 2:
				e.Sender = s
			case 3:
				e.ProtocolID = s
			case 5:
				e.URI = s
			}
			data = data[n2:]
		case 4:
			b, n2 := protowire.ConsumeBytes(data)
			if n2 < 0 {
				return fmt.Errorf("envelope message: %w", ErrTruncated)
			}
			e.Message = append([]byte(nil), b...)
			data = data[n2:]
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, data)
			if n2 < 0 {
				return fmt.Errorf("envelope field %d: %w", num, ErrTruncated)
			}
			data = data[n2:]
		}
	}
	return nil
}

func appendString(buf []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return buf
	}
	buf = protowire.AppendTag(buf, num, protowire.BytesType)
	buf = protowire.AppendString(buf, s)
	return buf
}
