package parser

import (
	"context"
	"fmt"
	"strings"

	"sfex/internal/constants"
	"sfex/internal/logger"
	"sfex/pkg/errors"
	"sfex/pkg/models"
)

// Options is the subset of a vendor profile the parser needs. Dispatch
// is keyed on the declared format, never on a file extension.
type Options struct {
	Format         string
	Delimiter      string
	FieldSeparator string
	KVSeparator    string
}

type Parser struct {
	logger logger.Logger
}

func New(log logger.Logger) *Parser {
	return &Parser{logger: log}
}

// Parse converts raw file bytes into an ordered sequence of records.
// Record ids are assigned sequentially (record_0, record_1, ...) so
// discrepancies can reference the originating row deterministically.
// Content of encrypted profiles must be decrypted before this call.
func (p *Parser) Parse(ctx context.Context, opts Options, content []byte) ([]models.Record, error) {
	switch strings.ToLower(opts.Format) {
	case constants.FormatCSV:
		return p.parseDelimited(ctx, opts, content)
	case constants.FormatJSON:
		return p.parseJSON(ctx, content)
	case constants.FormatXML:
		return p.parseXML(ctx, content)
	case constants.FormatText:
		return p.parseText(ctx, opts, content)
	default:
		return nil, errors.ErrUnsupportedFormat.WithDetail("format", opts.Format)
	}
}

func recordID(index int) string {
	return fmt.Sprintf("record_%d", index)
}
