package featurefile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/poiesic/skimap/core"
)

// Format selects how a file's features are laid out.
type Format int

const (
	// FormatAuto picks FormatSequence for .geojsonl, .geojsons, .jsonl and
	// .ndjson files and FormatCollection otherwise.
	FormatAuto Format = iota
	// FormatCollection is a single GeoJSON FeatureCollection object.
	FormatCollection
	// FormatSequence is a stream of GeoJSON Feature objects separated by whitespace.
	FormatSequence
)

var sequenceExtensions = map[string]bool{
	".geojsonl": true,
	".geojsons": true,
	".jsonl":    true,
	".ndjson":   true,
}

// Reader streams features from one GeoJSON source.
// Nothing is read until Features is iterated, and the underlying file is
// closed when iteration ends.
type Reader struct {
	name   string
	format Format
	open   func() (io.ReadCloser, error)
}

// Option configures a Reader.
type Option func(*Reader)

// WithFormat overrides format detection.
func WithFormat(format Format) Option {
	return func(r *Reader) {
		r.format = format
	}
}

// Open returns a Reader for the file at path.
func Open(path string, opts ...Option) *Reader {
	r := &Reader{
		name: path,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.format == FormatAuto {
		r.format = FormatCollection
		if sequenceExtensions[strings.ToLower(filepath.Ext(path))] {
			r.format = FormatSequence
		}
	}
	return r
}

// FromBytes returns a Reader over in-memory data. FormatAuto is treated as
// FormatCollection.
func FromBytes(name string, data []byte, format Format) *Reader {
	if format == FormatAuto {
		format = FormatCollection
	}
	return &Reader{
		name:   name,
		format: format,
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Name returns the path or name the reader was created with.
func (r *Reader) Name() string {
	return r.name
}

// Features yields every feature of the source in file order.
//
// A feature that cannot be converted (missing id, unknown type, bad geometry)
// yields an error wrapping core.ErrInvalidFeature and iteration continues.
// Any other error (I/O, broken JSON structure, cancellation) is yielded once
// and ends the iteration.
func (r *Reader) Features(ctx context.Context) iter.Seq2[core.Feature, error] {
	return func(yield func(core.Feature, error) bool) {
		rc, err := r.open()
		if err != nil {
			yield(nil, fmt.Errorf("failed to open %s: %w", r.name, err))
			return
		}
		defer rc.Close()

		dec := json.NewDecoder(bufio.NewReader(rc))
		switch r.format {
		case FormatSequence:
			r.readSequence(ctx, dec, yield)
		default:
			r.readCollection(ctx, dec, yield)
		}
	}
}

func (r *Reader) readSequence(ctx context.Context, dec *json.Decoder, yield func(core.Feature, error) bool) {
	for dec.More() {
		if !r.next(ctx, dec, yield) {
			return
		}
	}
}

func (r *Reader) readCollection(ctx context.Context, dec *json.Decoder, yield func(core.Feature, error) bool) {
	if err := expectDelim(dec, '{'); err != nil {
		yield(nil, r.wrap(err))
		return
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			yield(nil, r.wrap(err))
			return
		}
		key, _ := tok.(string)
		if key != "features" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				yield(nil, r.wrap(err))
				return
			}
			continue
		}

		if err := expectDelim(dec, '['); err != nil {
			yield(nil, r.wrap(err))
			return
		}
		for dec.More() {
			if !r.next(ctx, dec, yield) {
				return
			}
		}
		if err := expectDelim(dec, ']'); err != nil {
			yield(nil, r.wrap(err))
			return
		}
	}
}

// next decodes one feature object and yields it. Returns false when iteration must stop.
func (r *Reader) next(ctx context.Context, dec *json.Decoder, yield func(core.Feature, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(nil, err)
		return false
	}

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		yield(nil, r.wrap(err))
		return false
	}

	gf, err := geojson.UnmarshalFeature(raw)
	if err != nil {
		return yield(nil, fmt.Errorf("%w: %s: %w", core.ErrInvalidFeature, r.name, err))
	}
	feature, err := core.FromGeoJSON(gf)
	if err != nil {
		return yield(nil, fmt.Errorf("%s: %w", r.name, err))
	}
	return yield(feature, nil)
}

func (r *Reader) wrap(err error) error {
	return fmt.Errorf("failed to read %s: %w", r.name, err)
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
