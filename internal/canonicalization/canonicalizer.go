// Package canonicalization provides deterministic payload hashing for
// submission audit trails: the same canonical JSON body always hashes to
// the same digest, so a dead-lettered submission can be compared byte-for
// -byte against what was actually sent to the regulator.
package canonicalization

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPayload computes the SHA-256 digest of a canonical JSON payload,
// returned as a 64-character lowercase hex string. Go's encoding/json
// marshals map keys in sorted order, so marshaling the same enriched event
// twice always produces the same bytes and therefore the same hash.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)

	return hex.EncodeToString(sum[:])
}
