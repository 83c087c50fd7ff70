// Package testutil contains helper builders and a shared negotiation test
// protocol used across tests to reduce boilerplate when constructing
// messages and dialogues. The test protocol deliberately exercises every
// content type the engine supports (scalars, lists, maps, unions and custom
// types). These helpers are not intended for production usage.
package testutil
