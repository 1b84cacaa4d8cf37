package orders

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const accessTokenBytes = 32

// NewAccessToken returns 64 hex characters of crypto randomness. The token
// is the only credential of a report link.
func NewAccessToken() (string, error) {
	buf := make([]byte, accessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// DueDate is the calendar day days after now, with days clamped to 1..7.
func DueDate(now time.Time, days int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, clampDueDays(days))
}

func clampDueDays(days int) int {
	if days < minDueDays {
		return minDueDays
	}
	if days > maxDueDays {
		return maxDueDays
	}
	return days
}
