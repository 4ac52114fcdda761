package core

import (
	"crypto/rand"
	"encoding/hex"
)

// newRequestID returns a short random identifier for requests submitted
// without one.
func newRequestID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req-unknown"
	}
	return hex.EncodeToString(b[:])
}
