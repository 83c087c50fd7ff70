// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a DialogueLogger with domain specific
// helpers for message validation, dialogue transitions and codec failures.
package logging
