package page

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestNewLineIDProperties checks P4: timeOf(newLineId(u)) is within 1
// second of the wall clock, and the last 6 characters equal u.slice(-6).
func TestNewLineIDProperties(t *testing.T) {
	userID := "user-0123456"
	before := time.Now().Unix()
	id := NewLineID(userID)
	after := time.Now().Unix()

	require.Len(t, string(id), 24)

	ts, err := TimeOf(id)
	require.NoError(t, err)
	require.GreaterOrEqual(t, ts, before-1)
	require.LessOrEqual(t, ts, after+1)

	require.Equal(t, userID[len(userID)-6:], string(id)[8:14])
}

func TestNewLineIDShortUserID(t *testing.T) {
	id := NewLineID("abc")
	require.Equal(t, "abc", string(id)[8:11])
}

func TestTimeOfNumericID(t *testing.T) {
	ts, err := TimeOf("1700000000")
	require.NoError(t, err)
	require.Equal(t, int64(1700000000), ts)
}

func TestTimeOfHexID(t *testing.T) {
	// 0x65590000 == 1700331520
	ts, err := TimeOf("65590000abcdef0000aaaaaaaa")
	require.NoError(t, err)
	require.Equal(t, int64(0x65590000), ts)
}

func TestTimeOfTooShortErrors(t *testing.T) {
	_, err := TimeOf("abc")
	require.Error(t, err)
}

func TestNewLineIDsAreUnique(t *testing.T) {
	seen := map[LineId]bool{}
	for i := 0; i < 100; i++ {
		id := NewLineID("user1")
		require.False(t, seen[id], "collision at iteration %d", i)
		seen[id] = true
	}
}
