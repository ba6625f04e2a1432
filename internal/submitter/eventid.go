package submitter

import (
	"crypto/md5" //nolint:gosec // MD5 used only as a deterministic hash, not for security.
	"encoding/hex"
	"fmt"
)

// eventNamespace is the fixed namespace string shared with the upstream
// transformation layer so both sides derive the same event_id for the
// same logical event.
const eventNamespace = "b1f7fb7e-210e-4db4-8e81-3c0c7f9a6f2d"

// EventID deterministically derives the event_id idempotency key from an
// event's domain, source system, and source-side identifier.
func EventID(domain, sourceSystem, sourceEventID string) string {
	input := fmt.Sprintf("%s:event:%s:%s:%s", eventNamespace, domain, sourceSystem, sourceEventID)
	sum := md5.Sum([]byte(input)) //nolint:gosec

	return hex.EncodeToString(sum[:])
}
