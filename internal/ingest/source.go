// Package ingest reads product price files (CSV or XLSX) as a lazy stream of raw records.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/propane-pricer/internal/model"
)

// Options configures how a source file is read.
type Options struct {
	Columns    Columns
	Delimiter  rune   // CSV only; default ','
	LazyQuotes bool   // CSV only
	Sheet      string // XLSX only; default is the first sheet
}

// recordReader yields raw cells one record at a time and remembers where
// the last record (or failed record) started.
type recordReader interface {
	Read() ([]string, error)
	Line() int
	Close() error
}

// Source is an opened input file whose header has been matched to Row fields.
type Source struct {
	path   string
	header []string
	hm     headerMap
	r      recordReader
}

// Open opens path and validates its header. A missing file, an empty file,
// or a header without SKU and list price columns is an error; nothing is
// streamed in that case.
func Open(path string, opts Options) (*Source, error) {
	var (
		r   recordReader
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		r, err = openXLSX(path, opts.Sheet)
	default:
		r, err = openCSV(path, opts)
	}
	if err != nil {
		return nil, err
	}

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		_ = r.Close()
		return nil, eris.Errorf("ingest: %s has no header row", path)
	}
	if err != nil {
		_ = r.Close()
		return nil, eris.Wrapf(err, "ingest: read header of %s", path)
	}

	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	hm := matchHeader(header, opts.Columns)
	var missing []string
	for _, col := range []string{ColSKU, ColListPrice} {
		if _, ok := hm.found[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		_ = r.Close()
		return nil, eris.Errorf("ingest: %s: missing required column(s) %s in header [%s]",
			path, strings.Join(missing, ", "), strings.Join(header, ", "))
	}

	return &Source{path: path, header: header, hm: hm, r: r}, nil
}

// Path returns the file path the source was opened from.
func (s *Source) Path() string { return s.path }

// Header returns the file's header row as read.
func (s *Source) Header() []string { return s.header }

// Mapped returns canonical field name -> header column it was read from.
func (s *Source) Mapped() map[string]string { return s.hm.found }

// Ignored returns header columns that map to no Row field.
func (s *Source) Ignored() []string { return s.hm.ignored }

// Close releases the underlying file.
func (s *Source) Close() error { return s.r.Close() }

// Stream decodes the remaining records and sends them on the returned
// channel. Lines that cannot be decoded are still sent, with Err set, so
// every data line yields exactly one record. A read failure that leaves the
// file unusable is sent on the error channel and ends the stream. Both
// channels are closed when processing completes.
func (s *Source) Stream(ctx context.Context) (<-chan model.RawRecord, <-chan error) {
	recCh := make(chan model.RawRecord, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(recCh)
		defer close(errCh)

		dec, err := csvutil.NewDecoder(s.r, s.hm.canonical...)
		if err != nil {
			errCh <- eris.Wrap(err, "ingest: init decoder")
			return
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}

			var rec model.RawRecord
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				if !isRecordError(err) {
					errCh <- eris.Wrapf(err, "ingest: read %s", s.path)
					return
				}
				if errors.Is(err, csvutil.ErrFieldCount) {
					rec = s.partial(dec.Record())
				}
				rec.Err = err
			}
			rec.Line = s.r.Line()

			select {
			case recCh <- rec:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "ingest: context cancelled")
				return
			}
		}
	}()

	return recCh, errCh
}

// partial recovers the SKU from a record that failed to decode so failures
// can be reported against it.
func (s *Source) partial(record []string) model.RawRecord {
	for i, name := range s.hm.canonical {
		if name == ColSKU && i < len(record) {
			return model.RawRecord{SKU: strings.TrimSpace(record[i])}
		}
	}
	return model.RawRecord{}
}

// isRecordError reports whether err affects a single record only.
func isRecordError(err error) bool {
	var perr *csv.ParseError
	return errors.As(err, &perr) || errors.Is(err, csvutil.ErrFieldCount)
}

type csvReader struct {
	f    *os.File
	r    *csv.Reader
	line int
}

func openCSV(path string, opts Options) (*csvReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open csv")
	}

	r := csv.NewReader(f)
	if opts.Delimiter != 0 {
		r.Comma = opts.Delimiter
	}
	r.LazyQuotes = opts.LazyQuotes
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1 // width is checked against the header by the decoder

	return &csvReader{f: f, r: r}, nil
}

func (c *csvReader) Read() ([]string, error) {
	record, err := c.r.Read()
	var perr *csv.ParseError
	switch {
	case err == nil:
		c.line, _ = c.r.FieldPos(0)
	case errors.As(err, &perr):
		c.line = perr.StartLine
	}
	return record, err
}

func (c *csvReader) Line() int { return c.line }

func (c *csvReader) Close() error { return c.f.Close() }
