package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"sfex/pkg/errors"
	"sfex/pkg/models"
)

// parseDelimited reads header-first delimited text. Rows shorter than
// the header populate only the present fields; extra values beyond the
// header are discarded.
func (p *Parser) parseDelimited(ctx context.Context, opts Options, content []byte) ([]models.Record, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if opts.Delimiter != "" {
		// The configured delimiter may be a multi-byte rune.
		delimiter, _ := utf8.DecodeRuneInString(opts.Delimiter)
		reader.Comma = delimiter
	}

	header, err := reader.Read()
	if err == io.EOF {
		return []models.Record{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrMalformedContent)
	}

	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	records := make([]models.Record, 0)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrMalformedContent)
		}

		record := models.NewRecord(recordID(len(records)))
		for i := 0; i < len(header) && i < len(row); i++ {
			record.Set(header[i], strings.TrimSpace(row[i]))
		}
		records = append(records, record)
	}

	return records, nil
}
