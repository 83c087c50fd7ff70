// Package protocol provides the foundational types of the dialogue engine:
//
//   - Message (a performative plus a sparse set of typed body fields)
//   - Descriptor (the data-only contract a concrete protocol supplies:
//     performative set, field schemas, reply graph, roles and end states)
//   - TypeSpec (a small recursive type algebra used to validate body fields
//     at runtime, including lists, maps, unions and custom types)
//
// The package intentionally contains no conversation tracking and no wire
// encoding; those live in the dialogue and codec packages and are generic
// over the Descriptor defined here.
package protocol
