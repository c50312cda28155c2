package export

import (
	"errors"
	"fmt"
	"io"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
)

var (
	// ErrEncoderClosed is returned when writing after Close
	ErrEncoderClosed = errors.New("export: encoder closed")
	// ErrUnsupportedFormat is returned for formats with no encoder
	ErrUnsupportedFormat = errors.New("export: unsupported format")
)

// NewEncoder is an appintegration.ExportEncoderFactory. CSV output carries a
// BOM so it opens cleanly in spreadsheet programs.
func NewEncoder(format appintegration.ExportFormat, w io.Writer) (appintegration.ExportEncoder, error) {
	switch format {
	case appintegration.ExportFormatCSV, "":
		return NewCSVEncoder(w, WithBOM(true)), nil
	case appintegration.ExportFormatXLSX:
		enc, err := NewXLSXEncoder(w, DefaultSheetName)
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

var _ appintegration.ExportEncoderFactory = NewEncoder
