package page

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"
)

// NewLineID mints a fresh 24-hex-character line id: 8 hex digits of the
// current unix-second timestamp, the last 6 characters of userID, the
// literal "0000", then 6 hex digits of cryptographic randomness.
// Collision probability is negligible within a single user's commit rate.
func NewLineID(userID string) LineId {
	return LineId(newLineIDAt(time.Now().Unix(), userID))
}

func newLineIDAt(unixSeconds int64, userID string) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	random := binary.BigEndian.Uint32(buf[:]) % 0xFFFFFE
	return fmt.Sprintf("%08x%s0000%06x", uint32(unixSeconds), lastSix(userID), random)
}

// lastSix mirrors JavaScript's String.prototype.slice(-6): the last six
// characters, or the whole string if it is shorter.
func lastSix(s string) string {
	if len(s) <= 6 {
		return s
	}
	return s[len(s)-6:]
}

// TimeOf decodes the unix-second timestamp carried by a line id (its
// first 8 hex characters), or returns a purely numeric id unchanged.
func TimeOf(id LineId) (int64, error) {
	s := string(id)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if len(s) < 8 {
		return 0, fmt.Errorf("timeOf: id %q shorter than 8 hex chars", s)
	}
	seconds, err := strconv.ParseUint(s[:8], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("timeOf: id %q: %w", s, err)
	}
	return int64(seconds), nil
}
