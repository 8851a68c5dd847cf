// Package page implements the line-list mirror: the data model, the
// commit applier, the id factory, and the diff-to-ops translator that
// together let a Page Room turn edits into change-ops and fold the
// server's change-ops back into a local line list.
package page

import "errors"

// LineId is an opaque line identifier. A real line id is a 24-hex-char
// token whose first 8 hex digits encode a unix-second timestamp; "_end"
// is a reserved sentinel meaning "after the last line".
type LineId string

// EndAnchor anchors an _insert at the end of the line list.
const EndAnchor LineId = "_end"

// Line is one line of a page mirror.
type Line struct {
	ID      LineId
	Text    string
	UserID  string
	Created int64
	Updated int64
}

// Errors surfaced by this package, per spec §7.
var (
	ErrMissingAnchor = errors.New("missing anchor")
	ErrBadAnchor     = errors.New("bad anchor")
)
