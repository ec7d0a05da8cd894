package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
)

// CompileRules turns raw rule configurations into a validated RuleSet.
// Regex patterns, date layouts and CEL expressions are compiled here so
// a broken rule fails vendor-profile load instead of message
// processing.
func CompileRules(configs []Config) (*RuleSet, error) {
	env, err := newExpressionEnv()
	if err != nil {
		return nil, err
	}

	ruleSet := &RuleSet{Rules: make([]Rule, 0, len(configs))}

	for i, cfg := range configs {
		rule, err := compileRule(env, cfg)
		if err != nil {
			return nil, fmt.Errorf("rule %d (field %q): %w", i, cfg.Field, err)
		}
		ruleSet.Rules = append(ruleSet.Rules, rule)
	}

	return ruleSet, nil
}

func compileRule(env *cel.Env, cfg Config) (Rule, error) {
	kind := Kind(strings.ToLower(cfg.Kind))

	rule := Rule{
		Field:   cfg.Field,
		Kind:    kind,
		Message: cfg.Message,
	}

	if cfg.Field == "" && kind != KindExpression {
		return Rule{}, fmt.Errorf("field name is required for kind %q", kind)
	}

	switch kind {
	case KindRequired:
		// No parameters.

	case KindRegex:
		if cfg.Pattern == "" {
			return Rule{}, fmt.Errorf("regex rule requires a pattern")
		}
		re, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid pattern: %w", err)
		}
		rule.pattern = re

	case KindRange:
		if cfg.Min == nil && cfg.Max == nil {
			return Rule{}, fmt.Errorf("range rule requires min or max")
		}
		if cfg.Min != nil && cfg.Max != nil && *cfg.Min > *cfg.Max {
			return Rule{}, fmt.Errorf("range min %v exceeds max %v", *cfg.Min, *cfg.Max)
		}
		rule.min = cfg.Min
		rule.max = cfg.Max

	case KindLength:
		if cfg.MinLength == nil && cfg.MaxLength == nil {
			return Rule{}, fmt.Errorf("length rule requires min_length or max_length")
		}
		if cfg.MinLength != nil && *cfg.MinLength < 0 {
			return Rule{}, fmt.Errorf("min_length must not be negative")
		}
		if cfg.MinLength != nil && cfg.MaxLength != nil && *cfg.MinLength > *cfg.MaxLength {
			return Rule{}, fmt.Errorf("length min %d exceeds max %d", *cfg.MinLength, *cfg.MaxLength)
		}
		rule.minLength = cfg.MinLength
		rule.maxLength = cfg.MaxLength

	case KindExactValue:
		if cfg.Expected == "" {
			return Rule{}, fmt.Errorf("exact_value rule requires an expected value")
		}
		rule.expected = cfg.Expected

	case KindDate:
		rule.dateLayout = TranslateDateLayout(cfg.DateFormat)

	case KindExpression:
		if cfg.Expression == "" {
			return Rule{}, fmt.Errorf("expression rule requires an expression")
		}
		program, err := compileExpression(env, cfg.Expression)
		if err != nil {
			return Rule{}, err
		}
		rule.program = program
		rule.expression = cfg.Expression

	default:
		return Rule{}, fmt.Errorf("unknown rule kind %q", cfg.Kind)
	}

	return rule, nil
}

var dateLayoutReplacer = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MM", "01",
	"dd", "02",
	"HH", "15",
	"mm", "04",
	"ss", "05",
)

// TranslateDateLayout accepts the format grammar used by existing
// vendor profiles (yyyy-MM-dd style) and converts it to a Go reference
// layout. Layouts already containing the reference year pass through.
func TranslateDateLayout(format string) string {
	if format == "" {
		return "2006-01-02"
	}
	if strings.Contains(format, "2006") {
		return format
	}
	return dateLayoutReplacer.Replace(format)
}
