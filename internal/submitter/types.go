// Package submitter implements the regulatory submission half of the
// reporting cache and submitter: it enriches an incoming business event
// with reference data, derives a deterministic idempotency key, and posts
// it to the regulator endpoint with retrying backoff, recording an audit
// row on success or a dead-letter row on exhaustion.
package submitter

import (
	"encoding/json"
	"time"
)

const knownEventTimestampLayout = time.RFC3339

// Event is an inbound submission request.
// Fields holds every business field the caller sent, excluding the
// envelope fields (source_system, source_event_id, trade_id, domain,
// event_timestamp) that this type already surfaces as named fields.
type Event struct {
	SourceSystem   string
	SourceEventID  string
	TradeID        string
	Domain         string
	EventTimestamp time.Time
	Fields         map[string]any
}

// UnmarshalJSON decodes the full event body into Fields, then lifts the
// envelope fields out by name so Fields retains only caller-supplied
// business data.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.SourceSystem, _ = raw["source_system"].(string)
	e.SourceEventID, _ = raw["source_event_id"].(string)
	e.TradeID, _ = raw["trade_id"].(string)
	e.Domain, _ = raw["domain"].(string)

	if ts, ok := raw["event_timestamp"].(string); ok {
		if parsed, err := time.Parse(knownEventTimestampLayout, ts); err == nil {
			e.EventTimestamp = parsed
		}
	}

	for _, key := range []string{"source_system", "source_event_id", "trade_id", "domain", "event_timestamp"} {
		delete(raw, key)
	}

	e.Fields = raw

	return nil
}

// Key returns the source-side identifier used to derive the idempotency
// key: source_event_id if present, else trade_id.
func (e Event) Key() string {
	if e.SourceEventID != "" {
		return e.SourceEventID
	}

	return e.TradeID
}

// Result is the outcome of a Submit call.
type Result struct {
	Status             string // "success" | "duplicate" | "dead_letter"
	EventID            string
	RegulatorReference string
}

// AuditRecord mirrors control.regulatory_submissions.
type AuditRecord struct {
	SubmissionID       string
	EventID            string
	EventTimestamp     time.Time
	SubmittedAt        time.Time
	RegulatorReference string
	Latency            time.Duration
	Status             string
	PayloadHash        string
	RetryCount         int
}

// DeadLetterRecord mirrors control.regulatory_dead_letter.
type DeadLetterRecord struct {
	DeadLetterID   string
	EventID        string
	EventTimestamp time.Time
	FailedAt       time.Time
	FailureReason  string
	RetryCount     int
	LastError      string
	EventPayload   string
}
