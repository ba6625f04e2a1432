package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/meridian-markets/surveillance-platform/internal/clock"
	"github.com/meridian-markets/surveillance-platform/internal/objectstore"
)

const landingPrefix = "landing/"

// ArchiveItem pairs a validated staging artifact with the landing path of
// the source object it was produced from. Archival moves the staging
// object, but the archive destination carries the original landing
// filename so operators find a file under the same path it landed with.
type ArchiveItem struct {
	StagingPath string
	LandingPath string
}

// Archiver moves validated staging artifacts into cold storage. It moves
// only the staging objects produced by the current run's validation pass —
// anything else under staging/ arrived after the run began and is left
// untouched for the next run to pick up.
type Archiver struct {
	store objectstore.ObjectStore
	clk   clock.Clock
}

// NewArchiver builds an Archiver backed by store, using clk to timestamp
// the archive prefix.
func NewArchiver(store objectstore.ObjectStore, clk clock.Clock) *Archiver {
	return &Archiver{store: store, clk: clk}
}

// Archive moves each item's staging object to
// archive/<YYYY-MM-DD>/<HHMM>/<original landing path>, returning the count
// successfully moved. A per-object move failure is logged and skipped; it
// never aborts the remaining moves.
func (a *Archiver) Archive(ctx context.Context, items []ArchiveItem, logger *slog.Logger) (int, error) {
	now := a.clk.Now()
	prefix := fmt.Sprintf("archive/%s/%s/", now.Format("2006-01-02"), now.Format("1504"))

	moved := 0

	for _, item := range items {
		rel := strings.TrimPrefix(item.LandingPath, landingPrefix)
		dst := prefix + rel

		if err := a.store.Move(ctx, item.StagingPath, dst); err != nil {
			logger.Error("failed to archive staging object",
				slog.String("path", item.StagingPath), slog.Any("error", err))

			continue
		}

		moved++
	}

	return moved, nil
}
