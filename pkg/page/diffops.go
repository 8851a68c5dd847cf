package page

import (
	"fmt"

	"github.com/takker99/scrapbox-core-go/pkg/diff"
)

// DiffToChanges runs the SES diff (§4.1) and the Extended-Change Folder
// (§4.2) over left's texts and right, then anchors the folded stream onto
// left's line-ids as a left-to-right change-op batch (§4.3).
func DiffToChanges(left []Line, right []string, userID string) ([]ChangeOp, error) {
	leftTexts := make([]string, len(left))
	for i, l := range left {
		leftTexts[i] = l.Text
	}

	script := diff.Diff(leftTexts, right)
	folded := diff.Fold(script.Cursor())
	cursor := folded.Cursor()

	var ops []ChangeOp
	lineNo := 0
	anchor := EndAnchor
	if len(left) > 0 {
		anchor = left[0].ID
	}

	for {
		ch, ok := cursor.Next()
		if !ok {
			break
		}
		if anchor == EndAnchor && ch.Tag != diff.FoldedAdded {
			return nil, fmt.Errorf("%w: cursor ran past end of pre-image on a %s", ErrBadAnchor, ch.Tag)
		}

		switch ch.Tag {
		case diff.FoldedAdded:
			ops = append(ops, NewInsertOp(anchor, NewLineID(userID), ch.Value))
		case diff.FoldedDeleted:
			ops = append(ops, NewDeleteOp(anchor))
			lineNo++
		case diff.FoldedReplaced:
			ops = append(ops, NewUpdateOp(anchor, ch.Value))
			lineNo++
		case diff.FoldedCommon:
			lineNo++
		}

		if lineNo < len(left) {
			anchor = left[lineNo].ID
		} else {
			anchor = EndAnchor
		}
	}

	return ops, nil
}
