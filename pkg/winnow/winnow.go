package winnow

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/iron-birch/winnow/internal/engine"
	"github.com/iron-birch/winnow/internal/ingest"
	"github.com/iron-birch/winnow/internal/model"
	"github.com/iron-birch/winnow/internal/pipeline"
)

// Winnow is a query-guided log reduction engine.
// It normalizes heterogeneous records, groups them into correlation
// windows, and keeps only the windows scoring against the query.
// Safe for concurrent use.
type Winnow struct {
	pipe   *pipeline.Pipeline
	reader *ingest.Reader
}

// New validates the configured options and wires the reduction stages.
// Create once, reuse across requests.
func New(opts ...Option) (*Winnow, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	eng, err := engine.New(o.cfg)
	if err != nil {
		return nil, fmt.Errorf("winnow: %w", err)
	}
	reader, err := ingest.New(ingest.Config{
		MaxBytes:   o.cfg.MaxInputBytes,
		MaxRecords: o.cfg.MaxRecords,
	})
	if err != nil {
		return nil, fmt.Errorf("winnow: %w", err)
	}

	return &Winnow{pipe: pipeline.New(eng, o.cfg), reader: reader}, nil
}

// Reduce runs the pipeline over already-decoded records.
func (w *Winnow) Reduce(ctx context.Context, records []map[string]any, query string) (Report, error) {
	raws := make([]model.RawRecord, len(records))
	for i, r := range records {
		raws[i] = model.RawRecord(r)
	}
	rep, err := w.pipe.Run(ctx, raws, query)
	if err != nil {
		return Report{}, publicErr(err)
	}
	return reportFromInternal(rep, 0), nil
}

// ReduceReader decodes NDJSON or a JSON array from r, transparently
// decompressing gzip and zstd, and reduces the batch. Undecodable lines
// are kept as degraded records and counted in MalformedRecords.
func (w *Winnow) ReduceReader(ctx context.Context, r io.Reader, query string) (Report, error) {
	res, err := w.reader.Read(r)
	if err != nil {
		return Report{}, publicErr(err)
	}
	return w.run(ctx, res, query)
}

// ReduceFile reduces a log file on disk. Same formats as ReduceReader.
func (w *Winnow) ReduceFile(ctx context.Context, path, query string) (Report, error) {
	res, err := w.reader.ReadFile(path)
	if err != nil {
		return Report{}, publicErr(err)
	}
	return w.run(ctx, res, query)
}

func (w *Winnow) run(ctx context.Context, res ingest.Result, query string) (Report, error) {
	rep, err := w.pipe.Run(ctx, res.Records, query)
	if err != nil {
		return Report{}, publicErr(err)
	}
	return reportFromInternal(rep, res.Malformed), nil
}

// publicErr converts internal error types to their stable public
// equivalents so callers can match with errors.As.
func publicErr(err error) error {
	var limit *model.LimitError
	if errors.As(err, &limit) {
		return &LimitError{What: limit.What, Limit: limit.Limit, Actual: limit.Actual}
	}
	return err
}
