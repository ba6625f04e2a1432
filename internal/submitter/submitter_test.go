package submitter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-markets/surveillance-platform/internal/cache"
	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDoer struct {
	responses []*http.Response
	errs      []error
	calls     atomic.Int32
}

func (f *fakeDoer) Do(_ *http.Request) (*http.Response, error) {
	i := int(f.calls.Add(1)) - 1

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}

	return f.responses[i], nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func noopConfig() Config {
	return Config{
		RegulatorURL: "https://regulator.example/submit",
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		RateLimit:    1000,
		Burst:        1000,
	}
}

func TestSubmitSuccessRecordsAudit(t *testing.T) {
	wh := warehouse.NewMemory()
	c := cache.New(wh, clock.NewFake(time.Now()), testLogger(), cache.Config{})
	doer := &fakeDoer{responses: []*http.Response{jsonResponse(http.StatusOK, `{"reference":"REF-1"}`)}}

	s := New(wh, c, doer, clock.NewFake(time.Now()), testLogger(), noopConfig())

	ev := Event{SourceSystem: "oms", SourceEventID: "evt-1", Fields: map[string]any{"trade_id": "T-1"}}

	res, err := s.Submit(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, statusSuccess, res.Status)
	require.Equal(t, "REF-1", res.RegulatorReference)
	require.Len(t, wh.Rows(submissionsTable), 1)
}

func TestSubmitDuplicateShortCircuits(t *testing.T) {
	wh := warehouse.NewMemory()
	wh.QueryFunc = func(_ context.Context, query string, _ ...any) ([]warehouse.Row, error) {
		if strings.Contains(query, submissionsTable) {
			return []warehouse.Row{{"submission_id": "existing"}}, nil
		}

		return nil, nil
	}

	c := cache.New(wh, clock.NewFake(time.Now()), testLogger(), cache.Config{})
	doer := &fakeDoer{}
	s := New(wh, c, doer, clock.NewFake(time.Now()), testLogger(), noopConfig())

	ev := Event{SourceSystem: "oms", SourceEventID: "evt-1"}

	res, err := s.Submit(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, statusDuplicate, res.Status)
	require.Equal(t, int32(0), doer.calls.Load(), "duplicate submissions must never reach the regulator")
}

func TestSubmitRetriesOnServerErrorThenSucceeds(t *testing.T) {
	wh := warehouse.NewMemory()
	c := cache.New(wh, clock.NewFake(time.Now()), testLogger(), cache.Config{})
	doer := &fakeDoer{responses: []*http.Response{
		jsonResponse(http.StatusServiceUnavailable, ""),
		jsonResponse(http.StatusOK, `{"reference":"REF-2"}`),
	}}

	s := New(wh, c, doer, clock.NewFake(time.Now()), testLogger(), noopConfig())

	res, err := s.Submit(context.Background(), Event{SourceSystem: "oms", SourceEventID: "evt-2"})
	require.NoError(t, err)
	require.Equal(t, statusSuccess, res.Status)
	require.Equal(t, int32(2), doer.calls.Load())

	rows := wh.Rows(submissionsTable)
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0]["retry_count"])
}

func TestSubmitDeadLettersAfterExhaustingRetries(t *testing.T) {
	wh := warehouse.NewMemory()
	c := cache.New(wh, clock.NewFake(time.Now()), testLogger(), cache.Config{})

	cfg := noopConfig()
	cfg.MaxAttempts = 2

	responses := make([]*http.Response, cfg.MaxAttempts)
	for i := range responses {
		responses[i] = jsonResponse(http.StatusServiceUnavailable, "")
	}

	doer := &fakeDoer{responses: responses}
	s := New(wh, c, doer, clock.NewFake(time.Now()), testLogger(), cfg)

	res, err := s.Submit(context.Background(), Event{SourceSystem: "oms", SourceEventID: "evt-3"})
	require.NoError(t, err)
	require.Equal(t, statusDeadLetter, res.Status)
	require.Equal(t, int32(cfg.MaxAttempts), doer.calls.Load())
	require.Len(t, wh.Rows(deadLetterTable), 1)
	require.Empty(t, wh.Rows(submissionsTable))
}

func TestSubmitTerminatesImmediatelyOnClientError(t *testing.T) {
	wh := warehouse.NewMemory()
	c := cache.New(wh, clock.NewFake(time.Now()), testLogger(), cache.Config{})
	doer := &fakeDoer{responses: []*http.Response{jsonResponse(http.StatusBadRequest, `{"error":"malformed"}`)}}

	s := New(wh, c, doer, clock.NewFake(time.Now()), testLogger(), noopConfig())

	res, err := s.Submit(context.Background(), Event{SourceSystem: "oms", SourceEventID: "evt-4"})
	require.NoError(t, err)
	require.Equal(t, statusDeadLetter, res.Status)
	require.Equal(t, int32(1), doer.calls.Load(), "a non-retryable status must not be retried")
}

func TestSubmitEnrichesFromCache(t *testing.T) {
	wh := warehouse.NewMemory()
	wh.QueryFunc = func(_ context.Context, query string, args ...any) ([]warehouse.Row, error) {
		switch query {
		case "SELECT id, name, desk FROM traders WHERE id = $1":
			return []warehouse.Row{{"id": "T-1", "name": "Alice", "desk": "rates"}}, nil
		default:
			return nil, nil
		}
	}

	c := cache.New(wh, clock.NewFake(time.Now()), testLogger(), cache.Config{})
	doer := &fakeDoer{responses: []*http.Response{jsonResponse(http.StatusOK, `{"reference":"REF-5"}`)}}

	s := New(wh, c, doer, clock.NewFake(time.Now()), testLogger(), noopConfig())

	ev := Event{SourceSystem: "oms", SourceEventID: "evt-5", Fields: map[string]any{"trader_id": "T-1"}}

	res, err := s.Submit(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, statusSuccess, res.Status)
}

func TestEventIDIsDeterministic(t *testing.T) {
	a := EventID("markets", "oms", "evt-1")
	b := EventID("markets", "oms", "evt-1")
	c := EventID("markets", "oms", "evt-2")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
