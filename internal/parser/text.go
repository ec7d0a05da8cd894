package parser

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"sfex/pkg/models"
)

// parseText handles free-form line-based key/value content. Each line
// is split on the field separator, each field on the key/value
// separator; lines producing zero fields are dropped.
func (p *Parser) parseText(ctx context.Context, opts Options, content []byte) ([]models.Record, error) {
	fieldSep := opts.FieldSeparator
	if fieldSep == "" {
		fieldSep = ";"
	}
	kvSep := opts.KVSeparator
	if kvSep == "" {
		kvSep = "="
	}

	records := make([]models.Record, 0)
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		record := models.NewRecord(recordID(len(records)))
		for _, field := range strings.Split(line, fieldSep) {
			key, value, found := strings.Cut(field, kvSep)
			if !found {
				continue
			}
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			record.Set(key, strings.TrimSpace(value))
		}

		if record.Len() == 0 {
			continue
		}
		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
