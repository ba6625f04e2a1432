package orchestrator

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridian-markets/surveillance-platform/internal/warehouse"
)

// ExtractFormatJSONL is the only supported extract export format. Avro is
// a recognized option with no available Go library (see DESIGN.md);
// requesting it makes the extract step return an error when it runs rather
// than degrading silently.
const ExtractFormatJSONL = "jsonl"

// ExtractFormatAvro is recognized only to produce a clear configuration
// error; it is never emitted.
const ExtractFormatAvro = "avro"

// ExtractConfig describes the optional extract generator.
type ExtractConfig struct {
	Hour   int // UTC hour to run at; negative disables the extract entirely
	Format string
	Query  string
}

// runExtract materializes Query against the warehouse and exports the
// result as gzip-compressed JSON Lines under extract/. The warehouse
// contract (internal/warehouse.Warehouse) exposes only parameterized Query,
// not arbitrary DDL, so "materialize into a temp table, export, then drop
// it" is modeled as a single read query whose result rows stand in for the
// temp table's contents — there is no separate drop step to fail partway
// through.
func (o *Orchestrator) runExtract(ctx context.Context) error {
	if o.cfg.Extract.Format != ExtractFormatJSONL {
		return fmt.Errorf("orchestrator: unsupported extract format %q (only %q is implemented)", o.cfg.Extract.Format, ExtractFormatJSONL)
	}

	rows, err := o.wh.Query(ctx, o.cfg.Extract.Query)
	if err != nil {
		return fmt.Errorf("orchestrator: extract query: %w", err)
	}

	data, err := encodeExtractJSONL(rows)
	if err != nil {
		return fmt.Errorf("orchestrator: encode extract: %w", err)
	}

	now := o.clk.Now()
	path := fmt.Sprintf("extract/%s/%s.jsonl.gz", now.Format("2006-01-02"), uuid.NewString())

	return o.store.Write(ctx, path, data)
}

func encodeExtractJSONL(rows []warehouse.Row) ([]byte, error) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			_ = gz.Close()

			return nil, err
		}
	}

	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
