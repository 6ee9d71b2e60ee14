package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// hashedMarker separates a prefix from a hashed identifier so hashed keys
// can never collide with a literal identifier of the same text.
const hashedMarker = "#sha256:"

// Key joins a namespace prefix (such as "rl:" or "revoked:") and an
// identifier into a cache key.
//
// Identifiers that would make the key exceed MaxKeyLength, or that contain
// characters ValidateKey rejects, are replaced by their SHA-256 digest so
// callers can key on arbitrary client-supplied values.
// Distinct identifiers under the same prefix always map to distinct keys
// (up to SHA-256 collisions).
func Key(prefix, id string) string {
	if len(prefix)+len(id) <= MaxKeyLength &&
		!strings.ContainsAny(id, "\n\r") &&
		!strings.HasPrefix(id, hashedMarker) {
		return prefix + id
	}

	sum := sha256.Sum256([]byte(id))
	return prefix + hashedMarker + hex.EncodeToString(sum[:])
}
