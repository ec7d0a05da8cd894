package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/logger"
	"sfex/pkg/errors"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	return New(logger.NopLogger())
}

func TestParseCSV(t *testing.T) {
	content := []byte("Id,Amount\n1,100\n2,200")

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "csv"}, content)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "record_0", records[0].ID)
	assert.Equal(t, "record_1", records[1].ID)
	assert.Equal(t, []string{"Id", "Amount"}, records[0].Order)

	amount, ok := records[0].Get("Amount")
	require.True(t, ok)
	assert.Equal(t, "100", amount)

	id, ok := records[1].Get("Id")
	require.True(t, ok)
	assert.Equal(t, "2", id)
}

func TestParseCSVShortRows(t *testing.T) {
	content := []byte("A,B,C\n1,2\n3")

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "csv"}, content)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 2, records[0].Len())
	_, hasC := records[0].Get("C")
	assert.False(t, hasC, "absent field must stay absent, not become empty")

	assert.Equal(t, 1, records[1].Len())
}

func TestParseCSVCustomDelimiter(t *testing.T) {
	content := []byte("Id;Name\n1;acme")

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "csv", Delimiter: ";"}, content)
	require.NoError(t, err)
	require.Len(t, records, 1)

	name, _ := records[0].Get("Name")
	assert.Equal(t, "acme", name)
}

func TestParseCSVMultiByteDelimiter(t *testing.T) {
	content := []byte("Id¦Name\n1¦acme")

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "csv", Delimiter: "¦"}, content)
	require.NoError(t, err)
	require.Len(t, records, 1)

	id, _ := records[0].Get("Id")
	assert.Equal(t, "1", id)
	name, _ := records[0].Get("Name")
	assert.Equal(t, "acme", name)
}

func TestParseCSVEmptyContent(t *testing.T) {
	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "csv"}, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseJSON(t *testing.T) {
	content := []byte(`[{"Id": "1", "Amount": 100.5, "Active": true}, {"Id": "2", "Note": null}]`)

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "json"}, content)
	require.NoError(t, err)
	require.Len(t, records, 2)

	amount, _ := records[0].Get("Amount")
	assert.Equal(t, "100.5", amount)
	active, _ := records[0].Get("Active")
	assert.Equal(t, "true", active)

	assert.Equal(t, []string{"Id", "Amount", "Active"}, records[0].Order)

	_, hasNote := records[1].Get("Note")
	assert.False(t, hasNote, "null values are absent fields")
}

func TestParseJSONNonArrayRoot(t *testing.T) {
	content := []byte(`{"Id": "1"}`)

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "json"}, content)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseJSONMalformed(t *testing.T) {
	content := []byte(`[{"Id": `)

	_, err := newTestParser(t).Parse(context.Background(), Options{Format: "json"}, content)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedContent)
	assert.True(t, errors.IsFatal(err))
}

func TestParseJSONNestedValue(t *testing.T) {
	content := []byte(`[{"Id": "1", "Meta": {"a": 1}}]`)

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "json"}, content)
	require.NoError(t, err)
	require.Len(t, records, 1)

	meta, _ := records[0].Get("Meta")
	assert.Equal(t, `{"a":1}`, meta)
}

func TestParseXMLRecordElements(t *testing.T) {
	content := []byte(`<file><record id="1"><Amount>100</Amount></record><record id="2"><Amount>200</Amount></record></file>`)

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "xml"}, content)
	require.NoError(t, err)
	require.Len(t, records, 2)

	id, _ := records[0].Get("id")
	assert.Equal(t, "1", id)
	amount, _ := records[1].Get("Amount")
	assert.Equal(t, "200", amount)
}

func TestParseXMLFallsBackToRootChildren(t *testing.T) {
	content := []byte(`<rows><row><Id>1</Id></row><row><Id>2</Id></row></rows>`)

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "xml"}, content)
	require.NoError(t, err)
	require.Len(t, records, 2)

	id, _ := records[1].Get("Id")
	assert.Equal(t, "2", id)
}

func TestParseXMLMalformed(t *testing.T) {
	content := []byte(`<rows><row>`)

	_, err := newTestParser(t).Parse(context.Background(), Options{Format: "xml"}, content)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMalformedContent)
}

func TestParseText(t *testing.T) {
	content := []byte("Id=1;Amount=100\n\ngarbage line\nId=2;Amount=200")

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "text"}, content)
	require.NoError(t, err)
	require.Len(t, records, 2)

	amount, _ := records[0].Get("Amount")
	assert.Equal(t, "100", amount)
	assert.Equal(t, "record_1", records[1].ID)
}

func TestParseTextCustomSeparators(t *testing.T) {
	content := []byte("Id:1|Amount:100")

	records, err := newTestParser(t).Parse(context.Background(), Options{Format: "text", FieldSeparator: "|", KVSeparator: ":"}, content)
	require.NoError(t, err)
	require.Len(t, records, 1)

	id, _ := records[0].Get("Id")
	assert.Equal(t, "1", id)
}

func TestParseUnsupportedFormat(t *testing.T) {
	_, err := newTestParser(t).Parse(context.Background(), Options{Format: "parquet"}, []byte("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedFormat)
	assert.True(t, errors.IsFatal(err))
}
