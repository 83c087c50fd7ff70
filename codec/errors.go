package codec

import (
	"errors"
	"fmt"

	"github.com/hupe1980/dialogmesh/protocol"
)

// ErrTruncated is returned when wire data ends mid-field. It indicates a
// corrupted payload, not an application logic condition.
var ErrTruncated = errors.New("truncated wire data")

// EncodingError reports a performative the codec does not know: either a
// message carrying a performative outside the protocol's declared set
// (encode) or a wire tag matching no variant (decode). Unlike schema
// violations this is a hard error: it signals corruption or a version
// mismatch rather than an application choice.
type EncodingError struct {
	// Performative is set when encoding an unrecognized performative.
	Performative protocol.Performative
	// Tag is set when decoding an unrecognized union tag.
	Tag int
}

func (e *EncodingError) Error() string {
	if e.Performative != "" {
		return fmt.Sprintf("unrecognized performative %q", e.Performative)
	}
	return fmt.Sprintf("unrecognized performative wire tag %d", e.Tag)
}
