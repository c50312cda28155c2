// Package export encodes sync record exports as CSV or XLSX.
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVEncoder writes rows with encoding/csv
type CSVEncoder struct {
	buf       *bufio.Writer
	writer    *csv.Writer
	delimiter rune
	bom       bool
	started   bool
	closed    bool
}

// CSVOption configures a CSVEncoder
type CSVOption func(*CSVEncoder)

// WithDelimiter sets the field delimiter (default is comma)
func WithDelimiter(d rune) CSVOption {
	return func(e *CSVEncoder) {
		e.delimiter = d
	}
}

// WithBOM prefixes the output with a UTF-8 byte order mark so spreadsheet
// programs pick the right encoding
func WithBOM(bom bool) CSVOption {
	return func(e *CSVEncoder) {
		e.bom = bom
	}
}

// NewCSVEncoder creates a CSV encoder writing to w
func NewCSVEncoder(w io.Writer, opts ...CSVOption) *CSVEncoder {
	e := &CSVEncoder{delimiter: ','}
	for _, opt := range opts {
		opt(e)
	}
	e.buf = bufio.NewWriter(w)
	e.writer = csv.NewWriter(e.buf)
	e.writer.Comma = e.delimiter
	return e
}

// WriteRow writes one record
func (e *CSVEncoder) WriteRow(values []string) error {
	if e.closed {
		return ErrEncoderClosed
	}
	if !e.started {
		e.started = true
		if e.bom {
			if _, err := e.buf.Write(utf8BOM); err != nil {
				return fmt.Errorf("write bom: %w", err)
			}
		}
	}
	if err := e.writer.Write(values); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	return nil
}

// Close flushes buffered rows
func (e *CSVEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.writer.Flush()
	if err := e.writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return e.buf.Flush()
}

// ContentType implements appintegration.ExportEncoder
func (e *CSVEncoder) ContentType() string { return "text/csv; charset=utf-8" }

// Extension implements appintegration.ExportEncoder
func (e *CSVEncoder) Extension() string { return "csv" }

var _ appintegration.ExportEncoder = (*CSVEncoder)(nil)
