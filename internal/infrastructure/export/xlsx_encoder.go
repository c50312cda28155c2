package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
)

// DefaultSheetName names the single worksheet of an XLSX export
const DefaultSheetName = "Sync Records"

// XLSXEncoder streams rows into one worksheet. The workbook is written to the
// underlying writer on Close.
type XLSXEncoder struct {
	w      io.Writer
	file   *excelize.File
	stream *excelize.StreamWriter
	row    int
	closed bool
}

// NewXLSXEncoder creates an XLSX encoder writing to w
func NewXLSXEncoder(w io.Writer, sheet string) (*XLSXEncoder, error) {
	if sheet == "" {
		sheet = DefaultSheetName
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	stream, err := f.NewStreamWriter(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open stream writer: %w", err)
	}
	return &XLSXEncoder{w: w, file: f, stream: stream}, nil
}

// WriteRow appends one row
func (e *XLSXEncoder) WriteRow(values []string) error {
	if e.closed {
		return ErrEncoderClosed
	}
	e.row++
	cell, err := excelize.CoordinatesToCellName(1, e.row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := e.stream.SetRow(cell, cells); err != nil {
		return fmt.Errorf("write xlsx row %d: %w", e.row, err)
	}
	return nil
}

// Close finishes the worksheet and writes the workbook
func (e *XLSXEncoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	defer e.file.Close()

	if err := e.stream.Flush(); err != nil {
		return fmt.Errorf("flush xlsx: %w", err)
	}
	if err := e.file.Write(e.w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// ContentType implements appintegration.ExportEncoder
func (e *XLSXEncoder) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension implements appintegration.ExportEncoder
func (e *XLSXEncoder) Extension() string { return "xlsx" }

var _ appintegration.ExportEncoder = (*XLSXEncoder)(nil)
