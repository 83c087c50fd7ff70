// Package codec provides the lossless bidirectional mapping between a
// protocol.Message and its transmissible binary form, using the Protobuf
// wire format via google.golang.org/protobuf/encoding/protowire (no protoc
// code generation required).
//
// The encoding has the fixed three layer shape shared by every protocol:
//
//   - outer frame: Envelope{to, sender, protocol_id, message, uri}
//   - middle frame: message_id, dialogue references, target, content bytes
//   - inner frame: a tagged union keyed by performative, each variant
//     carrying exactly that performative's fields
//
// Wire tags are derived from the order of performatives and fields in the
// protocol Descriptor, so a Codec needs nothing but the descriptor (plus a
// CustomCodec per custom content type) to serve any protocol.
package codec
