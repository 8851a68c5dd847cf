package page

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func applyTexts(t *testing.T, lines []Line, ops []ChangeOp, userID string) []string {
	t.Helper()
	result, err := Apply(lines, ops, ApplyOptions{UserID: userID, Updated: time.Now().Unix()})
	require.NoError(t, err)
	texts := make([]string, len(result))
	for i, l := range result {
		texts[i] = l.Text
	}
	return texts
}

// TestDiffToChangesBasicScenario is scenario 1 from spec §8.
func TestDiffToChangesBasicScenario(t *testing.T) {
	left := []Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "b"}, {ID: "L3", Text: "c"}}
	right := []string{"a", "x", "c"}

	ops, err := DiffToChanges(left, right, "user1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, OpUpdate, ops[0].Kind)
	require.Equal(t, LineId("L2"), ops[0].Anchor)
	require.Equal(t, "x", ops[0].Text)
}

// TestDiffToChangesAppendAtEnd is scenario 2.
func TestDiffToChangesAppendAtEnd(t *testing.T) {
	left := []Line{{ID: "L1", Text: "hi"}}
	right := []string{"hi", "world"}

	ops, err := DiffToChanges(left, right, "user1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, OpInsert, ops[0].Kind)
	require.Equal(t, EndAnchor, ops[0].Anchor)
	require.Equal(t, "world", ops[0].NewLine.Text)
	require.NotEmpty(t, ops[0].NewLine.ID)
}

// TestDiffToChangesDeleteOnly is scenario 3.
func TestDiffToChangesDeleteOnly(t *testing.T) {
	left := []Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "b"}}
	right := []string{"a"}

	ops, err := DiffToChanges(left, right, "user1")
	require.NoError(t, err)
	require.Len(t, ops, 1)
	require.Equal(t, OpDelete, ops[0].Kind)
	require.Equal(t, LineId("L2"), ops[0].Anchor)
}

// TestDiffToChangesReplaceThenInsert is scenario 4.
func TestDiffToChangesReplaceThenInsert(t *testing.T) {
	left := []Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "b"}}
	right := []string{"a", "B", "C"}

	ops, err := DiffToChanges(left, right, "user1")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	require.Equal(t, OpUpdate, ops[0].Kind)
	require.Equal(t, LineId("L2"), ops[0].Anchor)
	require.Equal(t, "B", ops[0].Text)
	require.Equal(t, OpInsert, ops[1].Kind)
	require.Equal(t, EndAnchor, ops[1].Anchor)
	require.Equal(t, "C", ops[1].NewLine.Text)
}

// TestApplyDiffToChangesRoundTrip checks P1: applying DiffToChanges's
// output to the pre-image reproduces the post-image texts exactly.
func TestApplyDiffToChangesRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		left  []Line
		right []string
	}{
		{"basic replace", []Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "b"}, {ID: "L3", Text: "c"}}, []string{"a", "x", "c"}},
		{"append", []Line{{ID: "L1", Text: "hi"}}, []string{"hi", "world"}},
		{"delete only", []Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "b"}}, []string{"a"}},
		{"replace then insert", []Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "b"}}, []string{"a", "B", "C"}},
		{"empty to nonempty", nil, []string{"title", "body"}},
		{"single line unchanged", []Line{{ID: "L1", Text: "a"}}, []string{"a"}},
		{"multi replace", []Line{{ID: "L1", Text: "a"}, {ID: "L2", Text: "b"}, {ID: "L3", Text: "c"}, {ID: "L4", Text: "d"}}, []string{"a", "B", "D", "e"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ops, err := DiffToChanges(tc.left, tc.right, "user1")
			require.NoError(t, err)
			got := applyTexts(t, tc.left, ops, "user1")
			require.Equal(t, tc.right, got)
		})
	}
}

func TestDiffToChangesAppendPastEndIsNotBadAnchor(t *testing.T) {
	// A patch longer than the pre-image only adds lines once the cursor
	// reaches "_end". Every non-added element consumes exactly one
	// pre-image line, so DiffToChanges never reaches BadAnchor here.
	left := []Line{{ID: "L1", Text: "a"}}
	ops, err := DiffToChanges(left, []string{"a", "b", "c"}, "user1")
	require.NoError(t, err)
	require.Len(t, ops, 2)
}
