// Package room implements the Page Room (spec §4.6): it owns the page
// mirror, turns high-level edits into change-op batches, pushes them
// against the server's parentId with bounded conflict retry, and runs the
// background live-commit consumer that is the mirror's sole normal-path
// writer. It also implements the project-wide Stream Subscriber (§4.7).
package room

import "errors"

// Error kinds surfaced to callers, per spec §7.
var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrForbidden     = errors.New("forbidden")
	ErrPushExhausted = errors.New("push exhausted")
	ErrRoomClosed    = errors.New("room closed")
	ErrTransport     = errors.New("transport")
)
