package rules

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sfex/internal/logger"
	"sfex/pkg/metrics"
	"sfex/pkg/models"
)

// ProfileStore resolves the compiled rule set for a vendor. Unknown
// vendors must surface errors.ErrVendorNotFound.
type ProfileStore interface {
	RuleSet(vendorID string) (*RuleSet, error)
}

type Engine struct {
	store  ProfileStore
	logger logger.Logger
}

func NewEngine(store ProfileStore, log logger.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: log,
	}
}

// ValidateVendor resolves the vendor's rule set and validates records
// against it. Unknown vendor ids fail fast before any evaluation.
func (e *Engine) ValidateVendor(ctx context.Context, vendorID, correlationID string, records []models.Record) (models.ValidationResult, error) {
	ruleSet, err := e.store.RuleSet(vendorID)
	if err != nil {
		return models.ValidationResult{}, err
	}

	start := time.Now()
	result := e.Validate(ctx, records, ruleSet, correlationID)
	metrics.ObserveValidationDuration(vendorID, time.Since(start))

	outcome := "valid"
	if !result.IsValid {
		outcome = "invalid"
	}
	metrics.ValidationResultsTotal.WithLabelValues(vendorID, outcome).Inc()
	for _, d := range result.Discrepancies {
		metrics.ValidationDiscrepanciesTotal.WithLabelValues(vendorID, d.RuleKind).Inc()
	}

	e.logger.InfowCtx(ctx, "Validation completed",
		"vendor_id", vendorID,
		"records", len(records),
		"discrepancies", len(result.Discrepancies),
	)

	return result, nil
}

// Validate evaluates every rule against every record. Discrepancy list
// order follows rule declaration order, then record order. IsValid is
// derived once, at the end, from the discrepancy list alone.
func (e *Engine) Validate(ctx context.Context, records []models.Record, ruleSet *RuleSet, correlationID string) models.ValidationResult {
	result := models.ValidationResult{
		Discrepancies: make([]models.Discrepancy, 0),
		CorrelationID: correlationID,
	}

	if ruleSet != nil {
		for _, rule := range ruleSet.Rules {
			for _, record := range records {
				if d := e.evaluate(ctx, rule, record); d != nil {
					result.Discrepancies = append(result.Discrepancies, *d)
				}
			}
		}
	}

	result.IsValid = len(result.Discrepancies) == 0
	return result
}

func (e *Engine) evaluate(ctx context.Context, rule Rule, record models.Record) *models.Discrepancy {
	if rule.Kind == KindExpression {
		return e.evaluateExpressionRule(ctx, rule, record)
	}

	value, present := record.Get(rule.Field)

	if rule.Kind == KindRequired {
		if !present || value == "" {
			actual := "empty"
			if !present {
				actual = "missing"
			}
			return e.discrepancy(rule, record, "required non-empty value", actual,
				fmt.Sprintf("required field %s is %s", rule.Field, actual))
		}
		return nil
	}

	// A missing field only ever fails the Required kind.
	if !present {
		return nil
	}

	switch rule.Kind {
	case KindRegex:
		if !rule.pattern.MatchString(value) {
			return e.discrepancy(rule, record, fmt.Sprintf("pattern %s", rule.pattern.String()), value,
				fmt.Sprintf("field %s does not match required pattern", rule.Field))
		}

	case KindRange:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return e.discrepancy(rule, record, e.rangeExpectation(rule), value,
				fmt.Sprintf("field %s is not numeric", rule.Field))
		}
		if (rule.min != nil && parsed < *rule.min) || (rule.max != nil && parsed > *rule.max) {
			return e.discrepancy(rule, record, e.rangeExpectation(rule), value,
				fmt.Sprintf("field %s is out of range", rule.Field))
		}

	case KindLength:
		length := len(value)
		if rule.minLength != nil && length < *rule.minLength {
			return e.discrepancy(rule, record, fmt.Sprintf("minimum length %d", *rule.minLength),
				fmt.Sprintf("length %d", length),
				fmt.Sprintf("field %s is too short", rule.Field))
		}
		if rule.maxLength != nil && length > *rule.maxLength {
			return e.discrepancy(rule, record, fmt.Sprintf("maximum length %d", *rule.maxLength),
				fmt.Sprintf("length %d", length),
				fmt.Sprintf("field %s is too long", rule.Field))
		}

	case KindExactValue:
		if value != rule.expected {
			return e.discrepancy(rule, record, rule.expected, value,
				fmt.Sprintf("field %s does not match the expected value", rule.Field))
		}

	case KindDate:
		if _, err := time.Parse(rule.dateLayout, value); err != nil {
			return e.discrepancy(rule, record, fmt.Sprintf("date in layout %s", rule.dateLayout), value,
				fmt.Sprintf("field %s is not a valid date", rule.Field))
		}
	}

	return nil
}

func (e *Engine) evaluateExpressionRule(ctx context.Context, rule Rule, record models.Record) *models.Discrepancy {
	passed, err := evaluateExpression(ctx, rule.program, record)
	if err != nil {
		e.logger.WarnwCtx(ctx, "Expression rule evaluation error",
			"record_id", record.ID,
			"expression", rule.expression,
			"error", err,
		)
		return e.discrepancy(rule, record, rule.expression, "evaluation error",
			fmt.Sprintf("business rule could not be evaluated: %v", err))
	}
	if !passed {
		return e.discrepancy(rule, record, rule.expression, "false",
			"business rule evaluated to false")
	}
	return nil
}

func (e *Engine) rangeExpectation(rule Rule) string {
	switch {
	case rule.min != nil && rule.max != nil:
		return fmt.Sprintf("number within [%v, %v]", *rule.min, *rule.max)
	case rule.min != nil:
		return fmt.Sprintf("number >= %v", *rule.min)
	default:
		return fmt.Sprintf("number <= %v", *rule.max)
	}
}

func (e *Engine) discrepancy(rule Rule, record models.Record, expected, actual, description string) *models.Discrepancy {
	if rule.Message != "" {
		description = rule.Message
	}
	return &models.Discrepancy{
		RecordID:    record.ID,
		FieldName:   rule.Field,
		RuleKind:    string(rule.Kind),
		Expected:    expected,
		Actual:      actual,
		Description: description,
	}
}
