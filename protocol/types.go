package protocol

import "fmt"

// Performative names the speech act of a message, e.g. "request" or "error".
// Each protocol declares its own closed set of performatives.
type Performative string

// Role is the part an address plays in a dialogue, e.g. "client" / "server".
type Role string

// EndState classifies a terminated dialogue, e.g. "successful" / "failed".
type EndState string

// Kind enumerates the shapes a body field value can take.
type Kind int

const (
	// KindString matches a Go string.
	KindString Kind = iota
	// KindInt matches an int64 (constructors normalize smaller int types).
	KindInt
	// KindFloat matches a float64.
	KindFloat
	// KindBool matches a bool.
	KindBool
	// KindBytes matches a []byte.
	KindBytes
	// KindList matches a []any whose elements all satisfy Elem.
	KindList
	// KindMap matches a map[string]any whose values all satisfy Value.
	KindMap
	// KindUnion matches a value satisfying at least one of Members.
	KindUnion
	// KindCustom delegates matching to a protocol supplied CustomType.
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindUnion:
		return "union"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// CustomType is implemented by protocol specific content types (e.g. a raw
// transaction or a pickled environment object). The codec package pairs it
// with a CustomCodec for wire encoding.
type CustomType interface {
	// Name identifies the custom type inside one protocol, e.g. "AnyObject".
	Name() string
	// Matches reports whether v is an instance of the custom type.
	Matches(v any) bool
}

// TypeSpec describes the runtime type of one body field. It is a small
// recursive algebra: scalars, lists, string-keyed maps, unions and custom
// types. Construct values with the helper functions (String, ListOf, ...).
type TypeSpec struct {
	Kind    Kind
	Elem    *TypeSpec  // list element type
	Value   *TypeSpec  // map value type (keys are always strings)
	Members []TypeSpec // union member types
	Custom  CustomType
}

// String returns the spec for a string field.
func String() TypeSpec { return TypeSpec{Kind: KindString} }

// Int returns the spec for an int64 field.
func Int() TypeSpec { return TypeSpec{Kind: KindInt} }

// Float returns the spec for a float64 field.
func Float() TypeSpec { return TypeSpec{Kind: KindFloat} }

// Bool returns the spec for a bool field.
func Bool() TypeSpec { return TypeSpec{Kind: KindBool} }

// Bytes returns the spec for a []byte field.
func Bytes() TypeSpec { return TypeSpec{Kind: KindBytes} }

// ListOf returns the spec for a []any field with elements of type elem.
func ListOf(elem TypeSpec) TypeSpec { return TypeSpec{Kind: KindList, Elem: &elem} }

// MapOf returns the spec for a map[string]any field with values of type value.
func MapOf(value TypeSpec) TypeSpec { return TypeSpec{Kind: KindMap, Value: &value} }

// UnionOf returns the spec for a field satisfied by any one of the members.
func UnionOf(members ...TypeSpec) TypeSpec { return TypeSpec{Kind: KindUnion, Members: members} }

// CustomSpec returns the spec for a protocol specific content type.
func CustomSpec(ct CustomType) TypeSpec { return TypeSpec{Kind: KindCustom, Custom: ct} }

func (t TypeSpec) describe() string {
	switch t.Kind {
	case KindList:
		return fmt.Sprintf("list[%s]", t.Elem.describe())
	case KindMap:
		return fmt.Sprintf("map[string,%s]", t.Value.describe())
	case KindUnion:
		s := "union["
		for i, m := range t.Members {
			if i > 0 {
				s += ","
			}
			s += m.describe()
		}
		return s + "]"
	case KindCustom:
		return t.Custom.Name()
	default:
		return t.Kind.String()
	}
}

// Check reports whether v is a valid instance of the spec, recursing into
// lists, maps and unions. A union is satisfied if any member matches; for
// list or map typed members every element or value must match that member.
func (t TypeSpec) Check(v any) error {
	switch t.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return typeMismatch(t, v)
		}
	case KindInt:
		if _, ok := v.(int64); !ok {
			return typeMismatch(t, v)
		}
	case KindFloat:
		if _, ok := v.(float64); !ok {
			return typeMismatch(t, v)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return typeMismatch(t, v)
		}
	case KindBytes:
		if _, ok := v.([]byte); !ok {
			return typeMismatch(t, v)
		}
	case KindList:
		list, ok := v.([]any)
		if !ok {
			return typeMismatch(t, v)
		}
		for i, elem := range list {
			if err := t.Elem.Check(elem); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case KindMap:
		m, ok := v.(map[string]any)
		if !ok {
			return typeMismatch(t, v)
		}
		for k, val := range m {
			if err := t.Value.Check(val); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
	case KindUnion:
		for _, m := range t.Members {
			if m.Check(v) == nil {
				return nil
			}
		}
		return typeMismatch(t, v)
	case KindCustom:
		if !t.Custom.Matches(v) {
			return typeMismatch(t, v)
		}
	default:
		return fmt.Errorf("unknown type spec kind %d", t.Kind)
	}
	return nil
}

func typeMismatch(t TypeSpec, v any) error {
	return fmt.Errorf("expected %s, found %T", t.describe(), v)
}

// NormalizeValue widens common Go scalar types to the canonical runtime
// representation (int64, float64) used by TypeSpec.Check and the codec.
func NormalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint32:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
