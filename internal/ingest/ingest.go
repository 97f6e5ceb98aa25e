// Package ingest reads finite batches of raw log records from NDJSON or
// JSON-array input, transparently decompressing gzip and zstd streams. A
// line that cannot be parsed is wrapped as a body-only record instead of
// being dropped, so output counts always match the input.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fastjson"

	"github.com/iron-birch/winnow/internal/model"
)

// Compression frame magic bytes.
var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Config bounds a single read. Zero or negative limits disable the
// corresponding check.
type Config struct {
	MaxBytes   int64 // ceiling on input size, raw and decompressed
	MaxRecords int
}

// Result is one parsed batch. Malformed counts entries that were not valid
// JSON objects and came through as body-only records.
type Result struct {
	Records   []model.RawRecord
	Malformed int
	Bytes     int64 // decompressed input size
}

// Reader parses log batches. Safe for concurrent use; the parser pool and
// the shared zstd decoder are both concurrency-safe.
type Reader struct {
	cfg  Config
	pool fastjson.ParserPool
	zstd *zstd.Decoder
}

func New(cfg Config) (*Reader, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("ingest: zstd decoder: %w", err)
	}
	return &Reader{cfg: cfg, zstd: dec}, nil
}

// ReadFile reads one batch from path. Files over the byte ceiling are
// rejected before any content is read.
func (r *Reader) ReadFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	if r.cfg.MaxBytes > 0 {
		if fi, err := f.Stat(); err == nil && fi.Size() > r.cfg.MaxBytes {
			return Result{}, &model.LimitError{What: "bytes", Limit: r.cfg.MaxBytes, Actual: fi.Size()}
		}
	}
	return r.Read(f)
}

// Read buffers src fully and parses it. The format is sniffed from the
// first non-whitespace byte: "[" starts a JSON array, anything else is
// scanned as NDJSON.
func (r *Reader) Read(src io.Reader) (Result, error) {
	data, err := r.readBounded(src)
	if err != nil {
		return Result{}, err
	}
	data, err = r.decompress(data)
	if err != nil {
		return Result{}, err
	}
	size := int64(len(data))

	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return Result{Bytes: size}, nil
	}

	if trimmed[0] == '[' {
		res, err := r.parseArray(trimmed)
		if err == nil {
			res.Bytes = size
			return res, nil
		}
		var limitErr *model.LimitError
		if errors.As(err, &limitErr) {
			return Result{}, err
		}
		// A bracket-leading input that is not a parseable array falls
		// through to the line scan.
	}

	res, err := r.parseLines(data)
	if err != nil {
		return Result{}, err
	}
	res.Bytes = size
	return res, nil
}

// readBounded reads src fully. When a byte ceiling is set the read stops
// one byte past it; the reported actual size is a floor, not an exact
// count, for non-file sources.
func (r *Reader) readBounded(src io.Reader) ([]byte, error) {
	bounded := src
	if r.cfg.MaxBytes > 0 {
		bounded = io.LimitReader(src, r.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(bounded)
	if err != nil {
		return nil, fmt.Errorf("ingest: read input: %w", err)
	}
	if r.cfg.MaxBytes > 0 && int64(len(data)) > r.cfg.MaxBytes {
		return nil, &model.LimitError{What: "bytes", Limit: r.cfg.MaxBytes, Actual: int64(len(data))}
	}
	return data, nil
}

// decompress unwraps one layer of gzip or zstd, detected by magic bytes.
// Plain input passes through untouched. The byte ceiling applies to the
// decompressed stream as well.
func (r *Reader) decompress(data []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(data, gzipMagic):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("ingest: gzip: %w", err)
		}
		defer zr.Close()
		return r.readBounded(zr)
	case bytes.HasPrefix(data, zstdMagic):
		out, err := r.zstd.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("ingest: zstd: %w", err)
		}
		if r.cfg.MaxBytes > 0 && int64(len(out)) > r.cfg.MaxBytes {
			return nil, &model.LimitError{What: "bytes", Limit: r.cfg.MaxBytes, Actual: int64(len(out))}
		}
		return out, nil
	default:
		return data, nil
	}
}

func (r *Reader) parseArray(data []byte) (Result, error) {
	p := r.pool.Get()
	defer r.pool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return Result{}, fmt.Errorf("ingest: parse array: %w", err)
	}
	arr, err := v.Array()
	if err != nil {
		return Result{}, fmt.Errorf("ingest: parse array: %w", err)
	}
	if r.cfg.MaxRecords > 0 && len(arr) > r.cfg.MaxRecords {
		return Result{}, &model.LimitError{What: "records", Limit: int64(r.cfg.MaxRecords), Actual: int64(len(arr))}
	}

	res := Result{Records: make([]model.RawRecord, 0, len(arr))}
	for _, item := range arr {
		rec, ok := objectRecord(item)
		if !ok {
			rec = model.RawRecord{"body": rawText(item)}
			res.Malformed++
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// parseLines scans NDJSON input. Blank lines are skipped; any other
// unparseable line becomes a body-only record.
func (r *Reader) parseLines(data []byte) (Result, error) {
	p := r.pool.Get()
	defer r.pool.Put(p)

	var res Result
	lines := bytes.Split(data, []byte{'\n'})
	for i, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if r.cfg.MaxRecords > 0 && len(res.Records) >= r.cfg.MaxRecords {
			return Result{}, &model.LimitError{
				What:   "records",
				Limit:  int64(r.cfg.MaxRecords),
				Actual: int64(len(res.Records)) + countNonEmpty(lines[i:]),
			}
		}
		v, err := p.ParseBytes(line)
		if err != nil {
			res.Records = append(res.Records, model.RawRecord{"body": string(line)})
			res.Malformed++
			continue
		}
		rec, ok := objectRecord(v)
		if !ok {
			rec = model.RawRecord{"body": rawText(v)}
			res.Malformed++
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func countNonEmpty(lines [][]byte) int64 {
	var n int64
	for _, line := range lines {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n
}

// objectRecord flattens a JSON object into a RawRecord. Returns false when
// v is not an object.
func objectRecord(v *fastjson.Value) (model.RawRecord, bool) {
	obj, err := v.Object()
	if err != nil {
		return nil, false
	}
	rec := make(model.RawRecord, obj.Len())
	flattenObject("", obj, rec)
	return rec, true
}

// flattenObject walks nested objects into dotted keys. Integer-valued
// numbers stay int64 so nanosecond epochs keep full precision; arrays keep
// their raw JSON text so list-valued fields stay searchable; nulls drop.
func flattenObject(prefix string, obj *fastjson.Object, rec model.RawRecord) {
	obj.Visit(func(key []byte, v *fastjson.Value) {
		name := string(key)
		if prefix != "" {
			name = prefix + "." + name
		}
		switch v.Type() {
		case fastjson.TypeObject:
			if nested, err := v.Object(); err == nil {
				flattenObject(name, nested, rec)
			}
		case fastjson.TypeString:
			rec[name] = string(v.GetStringBytes())
		case fastjson.TypeNumber:
			if i, err := v.Int64(); err == nil {
				rec[name] = i
			} else if f, err := v.Float64(); err == nil {
				rec[name] = f
			}
		case fastjson.TypeTrue:
			rec[name] = true
		case fastjson.TypeFalse:
			rec[name] = false
		case fastjson.TypeArray:
			rec[name] = string(v.MarshalTo(nil))
		}
	})
}

// rawText renders a non-object value for body wrapping: unquoted for JSON
// strings, raw JSON otherwise.
func rawText(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return string(v.MarshalTo(nil))
}
