package page

import "fmt"

// ApplyOptions carries the commit-scoped fields Apply needs beyond the
// change-ops themselves: UserID for freshly inserted lines, and Updated, a
// single already-resolved unix-second timestamp applied to every line an
// _update touches in this batch. A line added by _insert takes Created and
// Updated from TimeOf of its own new id; Updated is used for it only when
// that id carries no readable timestamp.
//
// The spec describes "updated" as either a unix-seconds number or an id
// carrying a timestamp (resolved via timeOf). Resolving that union is the
// caller's job — Apply itself only ever sees the resolved int64 — so a
// Page Room passes TimeOf(notification.ID) for a remote commit
// echo, and time.Now().Unix() for a local trial application, matching the
// §9 Open Question resolution.
type ApplyOptions struct {
	UserID  string
	Updated int64
}

// Apply mutates a copy of lines according to changes, applied left to
// right, and returns the resulting line list. Metadata ops (title,
// descriptions, deleted) are opaque to the applier; they carry
// server-side semantics only and are never produced by it.
func Apply(lines []Line, changes []ChangeOp, opts ApplyOptions) ([]Line, error) {
	out := make([]Line, len(lines))
	copy(out, lines)

	var err error
	for _, ch := range changes {
		switch ch.Kind {
		case OpInsert:
			out, err = applyInsert(out, ch, opts)
		case OpUpdate:
			out, err = applyUpdate(out, ch, opts)
		case OpDelete:
			out, err = applyDelete(out, ch)
		case OpTitle, OpDescriptions, OpDeletePage:
			// No-op here; the server interprets these.
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func indexOfLine(lines []Line, id LineId) int {
	for i := range lines {
		if lines[i].ID == id {
			return i
		}
	}
	return -1
}

func applyInsert(lines []Line, ch ChangeOp, opts ApplyOptions) ([]Line, error) {
	updated, err := TimeOf(ch.NewLine.ID)
	if err != nil {
		updated = opts.Updated
	}
	newLine := Line{
		ID:      ch.NewLine.ID,
		Text:    ch.NewLine.Text,
		UserID:  opts.UserID,
		Created: updated,
		Updated: updated,
	}
	if ch.Anchor == EndAnchor {
		return append(lines, newLine), nil
	}
	idx := indexOfLine(lines, ch.Anchor)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingAnchor, ch.Anchor)
	}
	out := make([]Line, 0, len(lines)+1)
	out = append(out, lines[:idx]...)
	out = append(out, newLine)
	out = append(out, lines[idx:]...)
	return out, nil
}

func applyUpdate(lines []Line, ch ChangeOp, opts ApplyOptions) ([]Line, error) {
	idx := indexOfLine(lines, ch.Anchor)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingAnchor, ch.Anchor)
	}
	lines[idx].Text = ch.Text
	lines[idx].Updated = opts.Updated
	return lines, nil
}

func applyDelete(lines []Line, ch ChangeOp) ([]Line, error) {
	idx := indexOfLine(lines, ch.Anchor)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingAnchor, ch.Anchor)
	}
	out := make([]Line, 0, len(lines)-1)
	out = append(out, lines[:idx]...)
	out = append(out, lines[idx+1:]...)
	return out, nil
}
