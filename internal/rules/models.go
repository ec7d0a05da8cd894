package rules

import (
	"regexp"

	"github.com/google/cel-go/cel"
)

type Kind string

const (
	KindRequired   Kind = "required"
	KindRegex      Kind = "regex"
	KindRange      Kind = "range"
	KindLength     Kind = "length"
	KindExactValue Kind = "exact_value"
	KindDate       Kind = "date"
	KindExpression Kind = "expression"
)

// Config is the raw per-rule configuration as it appears in the vendor
// profile file. Which parameters are mandatory depends on Kind;
// CompileRules rejects incomplete configurations at load time.
type Config struct {
	Field      string   `mapstructure:"field" json:"field"`
	Kind       string   `mapstructure:"kind" json:"kind"`
	Pattern    string   `mapstructure:"pattern" json:"pattern,omitempty"`
	Min        *float64 `mapstructure:"min" json:"min,omitempty"`
	Max        *float64 `mapstructure:"max" json:"max,omitempty"`
	MinLength  *int     `mapstructure:"min_length" json:"min_length,omitempty"`
	MaxLength  *int     `mapstructure:"max_length" json:"max_length,omitempty"`
	Expected   string   `mapstructure:"expected" json:"expected,omitempty"`
	DateFormat string   `mapstructure:"date_format" json:"date_format,omitempty"`
	Expression string   `mapstructure:"expression" json:"expression,omitempty"`
	Message    string   `mapstructure:"message" json:"message,omitempty"`
}

// Rule is the compiled, closed variant of one validation rule. Only the
// fields relevant to Kind are populated.
type Rule struct {
	Field   string
	Kind    Kind
	Message string

	pattern    *regexp.Regexp
	min        *float64
	max        *float64
	minLength  *int
	maxLength  *int
	expected   string
	dateLayout string
	program    cel.Program
	expression string
}

type RuleSet struct {
	Rules []Rule
}

func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rules)
}
