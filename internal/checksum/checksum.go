// Package checksum fingerprints data files and notes. The engine uses it to
// skip identical writes; notes expose it as an entity tag for If-Match.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Matches reports whether tag names the digest of data. Tag may be a bare
// digest or an HTTP entity tag, quoted and optionally weak.
func Matches(data []byte, tag string) bool {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
	return strings.Trim(tag, `"`) == Sum(data)
}
