package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"sfex/pkg/errors"
	"sfex/pkg/models"
)

// parseJSON expects an array of objects at the root. Any other root is
// a logged no-op yielding zero records. Objects are walked at token
// level so field order follows the document, and numbers keep their
// source literal.
func (p *Parser) parseJSON(ctx context.Context, content []byte) ([]models.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrMalformedContent)
	}

	delim, ok := tok.(json.Delim)
	if !ok || delim != '[' {
		p.logger.WarnwCtx(ctx, "JSON root is not an array, producing no records")
		return []models.Record{}, nil
	}

	records := make([]models.Record, 0)
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrMalformedContent)
		}

		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			// Non-object array elements carry no fields.
			continue
		}

		record := models.NewRecord(recordID(len(records)))
		if err := decodeObjectFields(trimmed, &record); err != nil {
			return nil, errors.Wrap(err, errors.ErrMalformedContent)
		}
		records = append(records, record)
	}

	// Consume the closing bracket so a truncated document still fails.
	if _, err := dec.Token(); err != nil {
		return nil, errors.Wrap(err, errors.ErrMalformedContent)
	}

	return records, nil
}

// decodeObjectFields walks one object at token level, preserving member
// order. Scalars become string fields, nested structures are kept as
// compact JSON, nulls are treated as absent.
func decodeObjectFields(object json.RawMessage, record *models.Record) error {
	dec := json.NewDecoder(bytes.NewReader(object))
	dec.UseNumber()

	if _, err := dec.Token(); err != nil {
		return err
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key token %v", keyTok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}

		value, present, err := rawToString(raw)
		if err != nil {
			return err
		}
		if present {
			record.Set(key, value)
		}
	}

	_, err := dec.Token()
	return err
}

func rawToString(raw json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false, fmt.Errorf("empty JSON value")
	}

	switch trimmed[0] {
	case 'n': // null: absent, not empty
		return "", false, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return "", false, err
		}
		return buf.String(), true, nil
	default: // numbers and booleans keep their source literal
		return string(trimmed), true, nil
	}
}
