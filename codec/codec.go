package codec

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hupe1980/dialogmesh/protocol"
)

// CustomCodec encodes a protocol specific content type to and from its
// opaque wire bytes. Each custom type declared in a descriptor's schema
// must have a codec registered under the same name.
type CustomCodec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// Options configures a Codec.
type Options struct {
	// Customs maps custom type names to their wire codecs.
	Customs map[string]CustomCodec
}

// Codec serializes messages of one protocol. Encoding and decoding are pure
// CPU operations without shared mutable state; a Codec is safe for
// concurrent use.
type Codec struct {
	desc    *protocol.Descriptor
	customs map[string]CustomCodec
}

// New creates a codec for the given protocol descriptor.
func New(desc *protocol.Descriptor, optFns ...func(o *Options)) *Codec {
	opts := Options{Customs: map[string]CustomCodec{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Codec{desc: desc, customs: opts.Customs}
}

// WithCustomCodec registers the wire codec for one custom content type.
func WithCustomCodec(name string, cc CustomCodec) func(o *Options) {
	return func(o *Options) { o.Customs[name] = cc }
}

// Encode serializes the message's middle and inner frames. It fails with an
// *EncodingError if the performative matches no known variant; field values
// that do not fit the schema fail with a descriptive error.
func (c *Codec) Encode(m *protocol.Message) ([]byte, error) {
	tag := c.desc.PerformativeTag(m.Performative())
	if tag == 0 {
		return nil, &EncodingError{Performative: m.Performative()}
	}

	var fields []byte
	for i, f := range c.desc.FieldsFor(m.Performative()) {
		v, err := m.Get(f.Name)
		if err != nil {
			if f.Optional {
				continue
			}
			return nil, fmt.Errorf("encode %q: %w", m.Performative(), err)
		}
		fields, err = c.appendValue(fields, protowire.Number(i+1), f.Type, v)
		if err != nil {
			return nil, fmt.Errorf("encode %q field %q: %w", m.Performative(), f.Name, err)
		}
	}

	var inner []byte
	inner = protowire.AppendTag(inner, protowire.Number(tag), protowire.BytesType)
	inner = protowire.AppendBytes(inner, fields)

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.MessageID()))
	buf = appendString(buf, 2, m.DialogueReference().Starter)
	buf = appendString(buf, 3, m.DialogueReference().Responder)
	if m.Target() != 0 {
		buf = protowire.AppendTag(buf, 4, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(m.Target()))
	}
	buf = protowire.AppendTag(buf, 5, protowire.BytesType)
	buf = protowire.AppendBytes(buf, inner)
	return buf, nil
}

// Decode reconstructs a message from the wire form produced by Encode. An
// inner frame tag matching no declared performative fails with an
// *EncodingError, symmetrically to Encode.
func (c *Codec) Decode(data []byte) (*protocol.Message, error) {
	var (
		messageID int64
		ref       protocol.DialogueReference
		target    int64
		content   []byte
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("dialogue frame: %w", ErrTruncated)
		}
		data = data[n:]
		switch num {
		case 1, 4:
			v, n2 := protowire.ConsumeVarint(data)
			if n2 < 0 {
				return nil, fmt.Errorf("dialogue frame field %d: %w", num, ErrTruncated)
			}
			if num == 1 {
				messageID = int64(v)
			} else {
				target = int64(v)
			}
			data = data[n2:]
		case 2, 3:
			s, n2 := protowire.ConsumeString(data)
			if n2 < 0 {
				return nil, fmt.Errorf("dialogue frame field %d: %w", num, ErrTruncated)
			}
			if num == 2 {
				ref.Starter = s
			} else {
				ref.Responder = s
			}
			data = data[n2:]
		case 5:
			b, n2 := protowire.ConsumeBytes(data)
			if n2 < 0 {
				return nil, fmt.Errorf("dialogue frame content: %w", ErrTruncated)
			}
			content = b
			data = data[n2:]
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, data)
			if n2 < 0 {
				return nil, fmt.Errorf("dialogue frame field %d: %w", num, ErrTruncated)
			}
			data = data[n2:]
		}
	}

	if len(content) == 0 {
		return nil, fmt.Errorf("dialogue frame has no content: %w", ErrTruncated)
	}
	num, _, n := protowire.ConsumeTag(content)
	if n < 0 {
		return nil, fmt.Errorf("performative frame: %w", ErrTruncated)
	}
	performative, ok := c.desc.PerformativeByTag(int(num))
	if !ok {
		return nil, &EncodingError{Tag: int(num)}
	}
	fieldsData, n2 := protowire.ConsumeBytes(content[n:])
	if n2 < 0 {
		return nil, fmt.Errorf("performative frame: %w", ErrTruncated)
	}

	body, err := c.parseFields(performative, fieldsData)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", performative, err)
	}

	return protocol.NewMessage(c.desc, performative,
		protocol.WithReference(ref),
		protocol.WithMessageID(messageID),
		protocol.WithTarget(target),
		protocol.WithFields(body),
	), nil
}

// EncodeEnvelope wraps an encoded message with its routing metadata. The
// message must carry both routing addresses.
func (c *Codec) EncodeEnvelope(m *protocol.Message) (*Envelope, error) {
	if !m.HasTo() || !m.HasSender() {
		return nil, fmt.Errorf("message routing fields not set: %s", m)
	}
	payload, err := c.Encode(m)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		To:         m.To(),
		Sender:     m.Sender(),
		ProtocolID: c.desc.ID,
		Message:    payload,
	}, nil
}

// DecodeEnvelope opens an envelope of this codec's protocol and restores
// the routing fields onto the decoded message.
func (c *Codec) DecodeEnvelope(e *Envelope) (*protocol.Message, error) {
	if e.ProtocolID != c.desc.ID {
		return nil, fmt.Errorf("envelope protocol %q does not match codec protocol %q",
			e.ProtocolID, c.desc.ID)
	}
	m, err := c.Decode(e.Message)
	if err != nil {
		return nil, err
	}
	m.SetTo(e.To)
	m.SetSender(e.Sender)
	return m, nil
}

func (c *Codec) appendValue(buf []byte, num protowire.Number, spec protocol.TypeSpec, v any) ([]byte, error) {
	switch spec.Kind {
	case protocol.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, found %T", v)
		}
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		buf = protowire.AppendString(buf, s)
	case protocol.KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte, found %T", v)
		}
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		buf = protowire.AppendBytes(buf, b)
	case protocol.KindInt:
		n, ok := v.(int64)
		if !ok {
			return nil, fmt.Errorf("expected int64, found %T", v)
		}
		buf = protowire.AppendTag(buf, num, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(n))
	case protocol.KindFloat:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("expected float64, found %T", v)
		}
		buf = protowire.AppendTag(buf, num, protowire.Fixed64Type)
		buf = protowire.AppendFixed64(buf, math.Float64bits(f))
	case protocol.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, found %T", v)
		}
		var bit uint64
		if b {
			bit = 1
		}
		buf = protowire.AppendTag(buf, num, protowire.VarintType)
		buf = protowire.AppendVarint(buf, bit)
	case protocol.KindList:
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("expected []any, found %T", v)
		}
		// elements live in a container submessage so an empty list still
		// encodes as a present field
		var sub []byte
		for i, elem := range list {
			var err error
			sub, err = c.appendValue(sub, 1, *spec.Elem, elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		buf = protowire.AppendBytes(buf, sub)
	case protocol.KindMap:
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected map[string]any, found %T", v)
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys) // deterministic wire form
		var sub []byte
		for _, k := range keys {
			var entry []byte
			entry = protowire.AppendTag(entry, 1, protowire.BytesType)
			entry = protowire.AppendString(entry, k)
			var err error
			entry, err = c.appendValue(entry, 2, *spec.Value, m[k])
			if err != nil {
				return nil, fmt.Errorf("value for key %q: %w", k, err)
			}
			sub = protowire.AppendTag(sub, 1, protowire.BytesType)
			sub = protowire.AppendBytes(sub, entry)
		}
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		buf = protowire.AppendBytes(buf, sub)
	case protocol.KindUnion:
		member := -1
		for i, m := range spec.Members {
			if m.Check(v) == nil {
				member = i
				break
			}
		}
		if member < 0 {
			return nil, fmt.Errorf("value %T matches no union member", v)
		}
		sub, err := c.appendValue(nil, protowire.Number(member+1), spec.Members[member], v)
		if err != nil {
			return nil, err
		}
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		buf = protowire.AppendBytes(buf, sub)
	case protocol.KindCustom:
		cc, ok := c.customs[spec.Custom.Name()]
		if !ok {
			return nil, fmt.Errorf("no codec registered for custom type %q", spec.Custom.Name())
		}
		b, err := cc.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("custom type %q: %w", spec.Custom.Name(), err)
		}
		buf = protowire.AppendTag(buf, num, protowire.BytesType)
		buf = protowire.AppendBytes(buf, b)
	default:
		return nil, fmt.Errorf("unsupported type spec kind %v", spec.Kind)
	}
	return buf, nil
}

func (c *Codec) parseFields(p protocol.Performative, data []byte) (map[string]any, error) {
	declared := c.desc.FieldsFor(p)
	body := map[string]any{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, ErrTruncated
		}
		data = data[n:]
		idx := int(num) - 1
		if idx < 0 || idx >= len(declared) {
			n2 := protowire.ConsumeFieldValue(num, typ, data)
			if n2 < 0 {
				return nil, ErrTruncated
			}
			data = data[n2:]
			continue
		}
		f := declared[idx]
		v, n2, err := c.consumeValue(f.Type, typ, data)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		body[f.Name] = v
		data = data[n2:]
	}
	return body, nil
}

func (c *Codec) consumeValue(spec protocol.TypeSpec, typ protowire.Type, data []byte) (any, int, error) {
	switch spec.Kind {
	case protocol.KindString:
		s, n := protowire.ConsumeString(data)
		if n < 0 {
			return nil, 0, ErrTruncated
		}
		return s, n, nil
	case protocol.KindBytes:
		b, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, 0, ErrTruncated
		}
		return append([]byte(nil), b...), n, nil
	case protocol.KindInt:
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, 0, ErrTruncated
		}
		return int64(v), n, nil
	case protocol.KindFloat:
		v, n := protowire.ConsumeFixed64(data)
		if n < 0 {
			return nil, 0, ErrTruncated
		}
		return math.Float64frombits(v), n, nil
	case protocol.KindBool:
		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return nil, 0, ErrTruncated
		}
		return v != 0, n, nil
	case protocol.KindList:
		sub, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, 0, ErrTruncated
		}
		list := []any{}
		for len(sub) > 0 {
			_, elemTyp, n2 := protowire.ConsumeTag(sub)
			if n2 < 0 {
				return nil, 0, ErrTruncated
			}
			sub = sub[n2:]
			elem, n3, err := c.consumeValue(*spec.Elem, elemTyp, sub)
			if err != nil {
				return nil, 0, err
			}
			list = append(list, elem)
			sub = sub[n3:]
		}
		return list, n, nil
	case protocol.KindMap:
		sub, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, 0, ErrTruncated
		}
		m := map[string]any{}
		for len(sub) > 0 {
			_, entryTyp, n2 := protowire.ConsumeTag(sub)
			if n2 < 0 || entryTyp != protowire.BytesType {
				return nil, 0, ErrTruncated
			}
			sub = sub[n2:]
			entry, n3 := protowire.ConsumeBytes(sub)
			if n3 < 0 {
				return nil, 0, ErrTruncated
			}
			sub = sub[n3:]
			key, value, err := c.parseMapEntry(*spec.Value, entry)
			if err != nil {
				return nil, 0, err
			}
			m[key] = value
		}
		return m, n, nil
	case protocol.KindUnion:
		sub, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, 0, ErrTruncated
		}
		num, memberTyp, n2 := protowire.ConsumeTag(sub)
		if n2 < 0 {
			return nil, 0, ErrTruncated
		}
		idx := int(num) - 1
		if idx < 0 || idx >= len(spec.Members) {
			return nil, 0, fmt.Errorf("union tag %d matches no member", num)
		}
		v, _, err := c.consumeValue(spec.Members[idx], memberTyp, sub[n2:])
		if err != nil {
			return nil, 0, err
		}
		return v, n, nil
	case protocol.KindCustom:
		sub, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, 0, ErrTruncated
		}
		cc, ok := c.customs[spec.Custom.Name()]
		if !ok {
			return nil, 0, fmt.Errorf("no codec registered for custom type %q", spec.Custom.Name())
		}
		v, err := cc.Decode(sub)
		if err != nil {
			return nil, 0, fmt.Errorf("custom type %q: %w", spec.Custom.Name(), err)
		}
		return v, n, nil
	default:
		return nil, 0, fmt.Errorf("unsupported type spec kind %v", spec.Kind)
	}
}

func (c *Codec) parseMapEntry(valueSpec protocol.TypeSpec, entry []byte) (string, any, error) {
	var key string
	var value any
	var haveValue bool
	for len(entry) > 0 {
		num, typ, n := protowire.ConsumeTag(entry)
		if n < 0 {
			return "", nil, ErrTruncated
		}
		entry = entry[n:]
		switch num {
		case 1:
			s, n2 := protowire.ConsumeString(entry)
			if n2 < 0 {
				return "", nil, ErrTruncated
			}
			key = s
			entry = entry[n2:]
		case 2:
			v, n2, err := c.consumeValue(valueSpec, typ, entry)
			if err != nil {
				return "", nil, err
			}
			value = v
			haveValue = true
			entry = entry[n2:]
		default:
			n2 := protowire.ConsumeFieldValue(num, typ, entry)
			if n2 < 0 {
				return "", nil, ErrTruncated
			}
			entry = entry[n2:]
		}
	}
	if !haveValue {
		return "", nil, fmt.Errorf("map entry for key %q has no value", key)
	}
	return key, value, nil
}
