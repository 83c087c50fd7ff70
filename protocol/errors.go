package protocol

import "fmt"

// FieldNotSetError is returned when a body field is read that was never
// supplied. Absence is deliberately distinguishable from a zero value;
// callers should check Has before reading conditional fields.
type FieldNotSetError struct {
	Field string
}

func (e *FieldNotSetError) Error() string {
	return fmt.Sprintf("field %q is not set", e.Field)
}

// SchemaViolationError carries the first rule a message violated during a
// consistency check. It is reported, never panicked.
type SchemaViolationError struct {
	Rule   string
	Detail string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("schema violation (%s): %s", e.Rule, e.Detail)
}

func violation(rule, format string, args ...any) error {
	return &SchemaViolationError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}
