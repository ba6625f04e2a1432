package submitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/meridian-markets/surveillance-platform/internal/cache"
	"github.com/meridian-markets/surveillance-platform/internal/canonicalization"
	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

const (
	submissionsTable = "control.regulatory_submissions"
	deadLetterTable  = "control.regulatory_dead_letter"

	defaultDomain         = "markets"
	defaultMaxAttempts    = 5
	defaultInitialDelay   = 1 * time.Second
	defaultMaxDelay       = 16 * time.Second
	defaultMultiplier     = 2.0
	defaultRequestTimeout = 10 * time.Second
	defaultRatePerSecond  = 10
	defaultBurst          = 10

	statusSuccess    = "success"
	statusDuplicate  = "duplicate"
	statusDeadLetter = "dead_letter"
)

// ErrRegulatorURLEmpty is returned when Config.RegulatorURL is unset.
var ErrRegulatorURLEmpty = errors.New("submitter: regulator API URL not configured")

// Doer is the subset of *http.Client the Submitter depends on, letting
// tests substitute a fake transport without a real network call.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config tunes the outbound submission path: the regulator endpoint, the
// retry schedule (initial/base/max delay and max attempts), and the
// per-request timeout.
type Config struct {
	RegulatorURL   string
	APIKey         string
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	RequestTimeout time.Duration
	RateLimit      float64
	Burst          int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}

	if c.InitialDelay <= 0 {
		c.InitialDelay = defaultInitialDelay
	}

	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}

	if c.Multiplier <= 0 {
		c.Multiplier = defaultMultiplier
	}

	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}

	if c.RateLimit <= 0 {
		c.RateLimit = defaultRatePerSecond
	}

	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}

	return c
}

// Submitter enriches events against the reporting cache and submits them
// to the regulator endpoint with retrying backoff, recording an audit row
// on success and a dead-letter row on exhaustion.
type Submitter struct {
	wh      warehouse.Warehouse
	cache   *cache.Cache
	http    Doer
	limiter *rate.Limiter
	clk     clock.Clock
	logger  *slog.Logger
	cfg     Config
}

// New builds a Submitter. doer defaults to http.DefaultClient when nil.
func New(wh warehouse.Warehouse, c *cache.Cache, doer Doer, clk clock.Clock, logger *slog.Logger, cfg Config) *Submitter {
	cfg = cfg.withDefaults()

	if doer == nil {
		doer = http.DefaultClient
	}

	return &Submitter{
		wh:      wh,
		cache:   c,
		http:    doer,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		clk:     clk,
		logger:  logger,
		cfg:     cfg,
	}
}

// Submit enriches ev, derives its idempotency key, and attempts delivery.
// A prior successful submission for the same key short-circuits as
// "duplicate". Retry exhaustion dead-letters the event rather than
// returning an error, since failure to reach the regulator is an expected,
// recorded outcome, not a caller-facing fault.
func (s *Submitter) Submit(ctx context.Context, ev Event) (Result, error) {
	domain := ev.Domain
	if domain == "" {
		domain = defaultDomain
	}

	eventID := EventID(domain, ev.SourceSystem, ev.Key())

	dup, err := s.isDuplicate(ctx, eventID)
	if err != nil {
		return Result{}, fmt.Errorf("submitter: duplicate check: %w", err)
	}

	if dup {
		return Result{Status: statusDuplicate, EventID: eventID}, nil
	}

	originalPayload, err := json.Marshal(ev.Fields)
	if err != nil {
		return Result{}, fmt.Errorf("submitter: marshal original payload: %w", err)
	}

	enriched := s.enrich(ctx, ev)
	enriched["event_id"] = eventID
	enriched["domain"] = domain
	enriched["source_system"] = ev.SourceSystem

	if key := ev.Key(); key != "" {
		enriched["source_event_id"] = key
	}

	payload, err := json.Marshal(enriched)
	if err != nil {
		return Result{}, fmt.Errorf("submitter: marshal enriched payload: %w", err)
	}

	start := s.clk.Now()

	var (
		reference string
		attempts  int
	)

	operation := func() error {
		attempts++

		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		ref, retryable, postErr := s.post(ctx, eventID, payload)
		if postErr == nil {
			reference = ref

			return nil
		}

		if retryable {
			return postErr
		}

		return backoff.Permanent(postErr)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialDelay
	b.MaxInterval = s.cfg.MaxDelay
	b.Multiplier = s.cfg.Multiplier
	b.MaxElapsedTime = 0

	retrier := backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxAttempts-1)), ctx)

	submitErr := backoff.Retry(operation, retrier)

	retryCount := attempts - 1
	if retryCount < 0 {
		retryCount = 0
	}

	if submitErr != nil {
		s.deadLetter(ctx, eventID, ev, originalPayload, retryCount, submitErr)

		return Result{Status: statusDeadLetter, EventID: eventID}, nil
	}

	s.audit(ctx, eventID, domain, ev, payload, reference, s.clk.Since(start), retryCount)

	return Result{Status: statusSuccess, EventID: eventID, RegulatorReference: reference}, nil
}

func (s *Submitter) isDuplicate(ctx context.Context, eventID string) (bool, error) {
	rows, err := s.wh.Query(ctx, "SELECT submission_id FROM "+submissionsTable+" WHERE event_id = $1", eventID)
	if err != nil {
		return false, err
	}

	return len(rows) > 0, nil
}

// enrich resolves trader, counterparty, and instrument references against
// the reporting cache, tolerating misses by dropping the unresolved
// reference rather than failing the submission.
func (s *Submitter) enrich(ctx context.Context, ev Event) map[string]any {
	out := make(map[string]any, len(ev.Fields)+4)
	for k, v := range ev.Fields {
		out[k] = v
	}

	if traderID, ok := out["trader_id"].(string); ok && traderID != "" {
		if t, found := s.cache.Trader(ctx, traderID); found {
			out["trader_name"] = t.Name
			out["trader_desk"] = t.Desk
		} else {
			s.logger.Warn("trader reference not found", slog.String("trader_id", traderID))
		}
	}

	if cpID, ok := out["counterparty_id"].(string); ok && cpID != "" {
		if cp, found := s.cache.CounterpartyByID(ctx, cpID); found {
			out["counterparty_name"] = cp.Name
			out["counterparty_lei"] = cp.LEI
		}
	} else if cpName, ok := out["counterparty_name"].(string); ok && cpName != "" {
		if cp, found := s.cache.CounterpartyByName(ctx, cpName); found {
			out["counterparty_id"] = cp.ID
			out["counterparty_lei"] = cp.LEI
		}
	}

	if instrumentID, ok := out["instrument_id"].(string); ok && instrumentID != "" {
		if i, found := s.cache.Instrument(ctx, instrumentID); found {
			out["instrument_symbol"] = i.Symbol
			out["instrument_asset_class"] = i.AssetClass
		}
	}

	return out
}

// post submits payload once, classifying the outcome for the retry loop:
// 2xx is success, 429 and 5xx are retryable, everything else is terminal.
func (s *Submitter) post(ctx context.Context, eventID string, payload []byte) (reference string, retryable bool, err error) {
	if s.cfg.RegulatorURL == "" {
		return "", false, ErrRegulatorURLEmpty
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.cfg.RegulatorURL, bytes.NewReader(payload))
	if err != nil {
		return "", false, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", eventID)

	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("submitter: post: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		var parsed struct {
			Reference string `json:"reference"`
		}

		_ = json.Unmarshal(body, &parsed)

		return parsed.Reference, false, nil
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return "", true, fmt.Errorf("submitter: regulator responded %d", resp.StatusCode)
	default:
		return "", false, fmt.Errorf("submitter: regulator responded %d: %s", resp.StatusCode, string(body))
	}
}

func (s *Submitter) audit(
	ctx context.Context,
	eventID, domain string,
	ev Event,
	payload []byte,
	reference string,
	latency time.Duration,
	retryCount int,
) {
	row := warehouse.Row{
		"submission_id":              uuid.NewString(),
		"event_id":                   eventID,
		"event_timestamp":            ev.EventTimestamp,
		"submitted_at":               s.clk.Now(),
		"regulator_reference":        reference,
		"submission_latency_seconds": latency.Seconds(),
		"status":                     statusSuccess,
		"report_type":                domain,
		"report_payload_hash":        canonicalization.HashPayload(payload),
		"retry_count":                retryCount,
	}

	if err := s.wh.InsertAudit(ctx, submissionsTable, row); err != nil {
		s.logger.Error("failed to record submission audit", slog.String("event_id", eventID), slog.Any("error", err))
	}
}

func (s *Submitter) deadLetter(
	ctx context.Context,
	eventID string,
	ev Event,
	originalPayload []byte,
	retryCount int,
	cause error,
) {
	row := warehouse.Row{
		"dead_letter_id":  uuid.NewString(),
		"event_id":        eventID,
		"event_timestamp": ev.EventTimestamp,
		"failed_at":       s.clk.Now(),
		"failure_reason":  cause.Error(),
		"retry_count":     retryCount,
		"last_error":      cause.Error(),
		"event_payload":   string(originalPayload),
	}

	if err := s.wh.InsertAudit(ctx, deadLetterTable, row); err != nil {
		s.logger.Error("failed to record dead letter", slog.String("event_id", eventID), slog.Any("error", err))
	}
}
