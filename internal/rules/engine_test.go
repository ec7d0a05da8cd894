package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/logger"
	"sfex/pkg/models"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func makeRecord(id string, pairs ...string) models.Record {
	r := models.NewRecord(id)
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i], pairs[i+1])
	}
	return r
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(nil, logger.NopLogger())
}

func TestValidateCleanRecords(t *testing.T) {
	ruleSet, err := CompileRules([]Config{
		{Field: "Id", Kind: "required"},
		{Field: "Amount", Kind: "range", Min: floatPtr(0), Max: floatPtr(1000)},
	})
	require.NoError(t, err)

	records := []models.Record{
		makeRecord("record_0", "Id", "1", "Amount", "100"),
		makeRecord("record_1", "Id", "2", "Amount", "200"),
	}

	result := newTestEngine(t).Validate(context.Background(), records, ruleSet, "corr-1")

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Discrepancies)
	assert.Equal(t, "corr-1", result.CorrelationID)
}

func TestValidateRangeFailuresPerRecord(t *testing.T) {
	ruleSet, err := CompileRules([]Config{
		{Field: "Amount", Kind: "range", Min: floatPtr(0), Max: floatPtr(50)},
	})
	require.NoError(t, err)

	records := []models.Record{
		makeRecord("record_0", "Id", "1", "Amount", "100"),
		makeRecord("record_1", "Id", "2", "Amount", "200"),
	}

	result := newTestEngine(t).Validate(context.Background(), records, ruleSet, "corr-2")

	assert.False(t, result.IsValid)
	require.Len(t, result.Discrepancies, 2)
	for i, d := range result.Discrepancies {
		assert.Equal(t, string(KindRange), d.RuleKind)
		assert.Equal(t, records[i].ID, d.RecordID)
		assert.Equal(t, "Amount", d.FieldName)
	}
}

func TestValidateRequired(t *testing.T) {
	ruleSet, err := CompileRules([]Config{
		{Field: "Name", Kind: "required"},
	})
	require.NoError(t, err)

	tests := []struct {
		name          string
		record        models.Record
		wantViolation bool
		wantActual    string
	}{
		{
			name:          "missing field",
			record:        makeRecord("record_0", "Other", "x"),
			wantViolation: true,
			wantActual:    "missing",
		},
		{
			name:          "empty value",
			record:        makeRecord("record_0", "Name", ""),
			wantViolation: true,
			wantActual:    "empty",
		},
		{
			name:          "non-empty value",
			record:        makeRecord("record_0", "Name", "acme"),
			wantViolation: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newTestEngine(t).Validate(context.Background(), []models.Record{tt.record}, ruleSet, "c")
			if tt.wantViolation {
				require.Len(t, result.Discrepancies, 1)
				assert.Equal(t, string(KindRequired), result.Discrepancies[0].RuleKind)
				assert.Equal(t, tt.wantActual, result.Discrepancies[0].Actual)
				assert.False(t, result.IsValid)
			} else {
				assert.Empty(t, result.Discrepancies)
				assert.True(t, result.IsValid)
			}
		})
	}
}

func TestValidateRegex(t *testing.T) {
	ruleSet, err := CompileRules([]Config{
		{Field: "Code", Kind: "regex", Pattern: `^[A-Z]{3}-\d{4}$`},
	})
	require.NoError(t, err)

	engine := newTestEngine(t)

	matching := makeRecord("record_0", "Code", "ABC-1234")
	result := engine.Validate(context.Background(), []models.Record{matching}, ruleSet, "c")
	assert.Empty(t, result.Discrepancies)

	mismatching := makeRecord("record_0", "Code", "nope")
	result = engine.Validate(context.Background(), []models.Record{mismatching}, ruleSet, "c")
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, string(KindRegex), result.Discrepancies[0].RuleKind)
	assert.Equal(t, "nope", result.Discrepancies[0].Actual)
}

func TestMissingFieldSkippedForNonRequiredKinds(t *testing.T) {
	ruleSet, err := CompileRules([]Config{
		{Field: "Amount", Kind: "range", Min: floatPtr(0)},
		{Field: "Code", Kind: "regex", Pattern: `^\d+$`},
		{Field: "Name", Kind: "length", MinLength: intPtr(2)},
		{Field: "Status", Kind: "exact_value", Expected: "open"},
		{Field: "Due", Kind: "date"},
	})
	require.NoError(t, err)

	record := makeRecord("record_0", "Unrelated", "x")
	result := newTestEngine(t).Validate(context.Background(), []models.Record{record}, ruleSet, "c")

	assert.True(t, result.IsValid)
	assert.Empty(t, result.Discrepancies)
}

func TestValidateKinds(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		value    string
		wantFail bool
	}{
		{"range unparseable", Config{Field: "F", Kind: "range", Min: floatPtr(0)}, "abc", true},
		{"range below min", Config{Field: "F", Kind: "range", Min: floatPtr(10)}, "5", true},
		{"range above max", Config{Field: "F", Kind: "range", Max: floatPtr(10)}, "15", true},
		{"range min only ok", Config{Field: "F", Kind: "range", Min: floatPtr(10)}, "15", false},
		{"length too short", Config{Field: "F", Kind: "length", MinLength: intPtr(3)}, "ab", true},
		{"length too long", Config{Field: "F", Kind: "length", MaxLength: intPtr(3)}, "abcd", true},
		{"length within bounds", Config{Field: "F", Kind: "length", MinLength: intPtr(1), MaxLength: intPtr(3)}, "ab", false},
		{"exact value mismatch", Config{Field: "F", Kind: "exact_value", Expected: "yes"}, "no", true},
		{"exact value match", Config{Field: "F", Kind: "exact_value", Expected: "yes"}, "yes", false},
		{"date invalid", Config{Field: "F", Kind: "date", DateFormat: "yyyy-MM-dd"}, "not-a-date", true},
		{"date valid", Config{Field: "F", Kind: "date", DateFormat: "yyyy-MM-dd"}, "2024-03-01", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ruleSet, err := CompileRules([]Config{tt.config})
			require.NoError(t, err)

			record := makeRecord("record_0", "F", tt.value)
			result := newTestEngine(t).Validate(context.Background(), []models.Record{record}, ruleSet, "c")

			if tt.wantFail {
				require.Len(t, result.Discrepancies, 1)
				assert.False(t, result.IsValid)
			} else {
				assert.Empty(t, result.Discrepancies)
				assert.True(t, result.IsValid)
			}
		})
	}
}

func TestDiscrepancyOrderFollowsRuleThenRecordOrder(t *testing.T) {
	ruleSet, err := CompileRules([]Config{
		{Field: "A", Kind: "required"},
		{Field: "B", Kind: "required"},
	})
	require.NoError(t, err)

	records := []models.Record{
		makeRecord("record_0"),
		makeRecord("record_1"),
	}

	result := newTestEngine(t).Validate(context.Background(), records, ruleSet, "c")

	require.Len(t, result.Discrepancies, 4)
	assert.Equal(t, "A", result.Discrepancies[0].FieldName)
	assert.Equal(t, "record_0", result.Discrepancies[0].RecordID)
	assert.Equal(t, "A", result.Discrepancies[1].FieldName)
	assert.Equal(t, "record_1", result.Discrepancies[1].RecordID)
	assert.Equal(t, "B", result.Discrepancies[2].FieldName)
	assert.Equal(t, "record_0", result.Discrepancies[2].RecordID)
}

func TestExpressionRule(t *testing.T) {
	ruleSet, err := CompileRules([]Config{
		{Kind: "expression", Expression: `record["Amount"] != "0"`, Message: "amount must not be zero"},
	})
	require.NoError(t, err)

	engine := newTestEngine(t)

	ok := makeRecord("record_0", "Amount", "5")
	result := engine.Validate(context.Background(), []models.Record{ok}, ruleSet, "c")
	assert.True(t, result.IsValid)

	zero := makeRecord("record_0", "Amount", "0")
	result = engine.Validate(context.Background(), []models.Record{zero}, ruleSet, "c")
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, string(KindExpression), result.Discrepancies[0].RuleKind)
	assert.Equal(t, "amount must not be zero", result.Discrepancies[0].Description)
}

func TestValidateEmptyRuleSet(t *testing.T) {
	result := newTestEngine(t).Validate(context.Background(), []models.Record{makeRecord("record_0", "A", "1")}, &RuleSet{}, "c")
	assert.True(t, result.IsValid)
	assert.NotNil(t, result.Discrepancies)
}
