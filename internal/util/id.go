// Package util holds small helpers shared across packages.
package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier like "rm_3f2a...". Prefixes in use:
// usr (users), rm (roadmaps), it (items), jti (access token ids),
// rft (refresh tokens). An empty prefix yields bare hex.
func NewID(prefix string) string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
