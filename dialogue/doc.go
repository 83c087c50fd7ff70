// Package dialogue implements conversation tracking for any protocol
// descriptor: the per-conversation state machine (Dialogue), its identity
// key (Label) and the per-agent registry (Dialogues) that routes inbound
// messages to the right conversation or recognizes a legitimate new one.
//
// The registry is designed for a single logical writer: one consumer (the
// agent's inbound processing path) calls Create/Update at a time. Lookups
// are guarded by a reader/writer lock so read-mostly paths can be served
// concurrently, but callers embedding the registry in a multi-goroutine
// host must funnel mutations through one owner.
package dialogue
