package page

import (
	"encoding/json"
	"fmt"
)

// OpKind discriminates the six shapes a ChangeOp can take on the wire.
type OpKind int

const (
	OpInsert OpKind = iota
	OpUpdate
	OpDelete
	OpTitle
	OpDescriptions
	OpDeletePage
)

// NewLine is the payload of an _insert change-op.
type NewLine struct {
	ID   LineId
	Text string
}

// ChangeOp is one record of an ordered change-op batch (spec §3). Kind
// selects which fields are meaningful (Anchor with NewLine for an insert,
// Anchor with Text for an update, Anchor alone for a delete, Title or
// Descriptions for metadata, none for a page delete); the rest are zero.
// This mirrors the wire tagged union (_insert/_update/_delete/
// title/descriptions/deleted) as one flat struct rather than an
// interface, so a batch is just a []ChangeOp with no type assertions at
// the call sites that build or walk it.
type ChangeOp struct {
	Kind         OpKind
	Anchor       LineId
	NewLine      NewLine
	Text         string
	Title        string
	Descriptions []string
}

func NewInsertOp(anchor, id LineId, text string) ChangeOp {
	return ChangeOp{Kind: OpInsert, Anchor: anchor, NewLine: NewLine{ID: id, Text: text}}
}

func NewUpdateOp(anchor LineId, text string) ChangeOp {
	return ChangeOp{Kind: OpUpdate, Anchor: anchor, Text: text}
}

func NewDeleteOp(anchor LineId) ChangeOp {
	return ChangeOp{Kind: OpDelete, Anchor: anchor}
}

func NewTitleOp(title string) ChangeOp {
	return ChangeOp{Kind: OpTitle, Title: title}
}

func NewDescriptionsOp(descriptions []string) ChangeOp {
	return ChangeOp{Kind: OpDescriptions, Descriptions: descriptions}
}

func NewDeletePageOp() ChangeOp {
	return ChangeOp{Kind: OpDeletePage}
}

// wireInsertLines/wireUpdateLines are the nested "lines" payload shapes
// used on the wire for _insert and _update respectively.
type wireInsertLines struct {
	ID   LineId `json:"id"`
	Text string `json:"text"`
}

type wireUpdateLines struct {
	Text string `json:"text"`
}

// MarshalJSON emits only the key(s) relevant to Kind, matching the
// teacher's ServerMsg pattern of a tagged union that serializes as a flat
// object with a single meaningful field.
func (c ChangeOp) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case OpInsert:
		return json.Marshal(struct {
			Insert LineId          `json:"_insert"`
			Lines  wireInsertLines `json:"lines"`
		}{Insert: c.Anchor, Lines: wireInsertLines{ID: c.NewLine.ID, Text: c.NewLine.Text}})
	case OpUpdate:
		return json.Marshal(struct {
			Update LineId          `json:"_update"`
			Lines  wireUpdateLines `json:"lines"`
		}{Update: c.Anchor, Lines: wireUpdateLines{Text: c.Text}})
	case OpDelete:
		return json.Marshal(struct {
			Delete LineId `json:"_delete"`
			Lines  int    `json:"lines"`
		}{Delete: c.Anchor, Lines: -1})
	case OpTitle:
		return json.Marshal(struct {
			Title string `json:"title"`
		}{Title: c.Title})
	case OpDescriptions:
		return json.Marshal(struct {
			Descriptions []string `json:"descriptions"`
		}{Descriptions: c.Descriptions})
	case OpDeletePage:
		return json.Marshal(struct {
			Deleted bool `json:"deleted"`
		}{Deleted: true})
	default:
		return nil, fmt.Errorf("change_op: unknown kind %d", c.Kind)
	}
}

// UnmarshalJSON probes the raw object for the key that discriminates the
// change-op's shape, in the teacher's ClientMsg style.
func (c *ChangeOp) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	if raw, ok := probe["_insert"]; ok {
		var anchor LineId
		if err := json.Unmarshal(raw, &anchor); err != nil {
			return fmt.Errorf("change_op: _insert anchor: %w", err)
		}
		var lines wireInsertLines
		if err := json.Unmarshal(probe["lines"], &lines); err != nil {
			return fmt.Errorf("change_op: _insert lines: %w", err)
		}
		*c = NewInsertOp(anchor, lines.ID, lines.Text)
		return nil
	}
	if raw, ok := probe["_update"]; ok {
		var anchor LineId
		if err := json.Unmarshal(raw, &anchor); err != nil {
			return fmt.Errorf("change_op: _update anchor: %w", err)
		}
		var lines wireUpdateLines
		if err := json.Unmarshal(probe["lines"], &lines); err != nil {
			return fmt.Errorf("change_op: _update lines: %w", err)
		}
		*c = NewUpdateOp(anchor, lines.Text)
		return nil
	}
	if raw, ok := probe["_delete"]; ok {
		var anchor LineId
		if err := json.Unmarshal(raw, &anchor); err != nil {
			return fmt.Errorf("change_op: _delete anchor: %w", err)
		}
		*c = NewDeleteOp(anchor)
		return nil
	}
	if raw, ok := probe["title"]; ok {
		var title string
		if err := json.Unmarshal(raw, &title); err != nil {
			return fmt.Errorf("change_op: title: %w", err)
		}
		*c = NewTitleOp(title)
		return nil
	}
	if raw, ok := probe["descriptions"]; ok {
		var descriptions []string
		if err := json.Unmarshal(raw, &descriptions); err != nil {
			return fmt.Errorf("change_op: descriptions: %w", err)
		}
		*c = NewDescriptionsOp(descriptions)
		return nil
	}
	if _, ok := probe["deleted"]; ok {
		*c = NewDeletePageOp()
		return nil
	}
	return fmt.Errorf("change_op: unrecognized change-op shape")
}
