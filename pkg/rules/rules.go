// pkg/rules/rules.go
package rules

import (
	"fmt"
	"regexp"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// namedPatterns are shorthand pattern names accepted in rule configuration
// in place of a raw regular expression.
var namedPatterns = map[string]string{
	"email": `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`,
}

// Params carries the per-rule configuration parameters. Which fields apply
// depends on the rule kind; unused fields are ignored.
type Params struct {
	// Pattern is the regular expression for regex_match rules. It may also
	// name a built-in pattern such as "email".
	Pattern string `json:"pattern,omitempty"`

	// Min and Max bound numeric_range rules, both inclusive. A nil bound
	// leaves that side open.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Config is one entry in the ordered rule battery supplied at run start.
type Config struct {
	Field  string         `json:"field"`
	Kind   model.RuleKind `json:"rule"`
	Params Params         `json:"params"`
}

// compiledRule is a Config with its pattern compiled. Compilation happens
// once when the validator is built so a bad pattern fails before the run
// starts rather than per record.
type compiledRule struct {
	cfg     Config
	pattern *regexp.Regexp
}

// compile validates and prepares a rule battery for evaluation.
func compile(configs []Config) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(configs))

	for i, cfg := range configs {
		if cfg.Field == "" {
			return nil, &model.ConfigurationError{
				Component: "rule",
				Reason:    fmt.Sprintf("rule %d has no field", i),
			}
		}
		if !cfg.Kind.Known() {
			return nil, &model.ConfigurationError{
				Component: "rule",
				Reason:    fmt.Sprintf("rule %d has unknown kind %q", i, cfg.Kind),
			}
		}

		rule := compiledRule{cfg: cfg}

		if cfg.Kind == model.RuleRegexMatch {
			expr := cfg.Params.Pattern
			if named, ok := namedPatterns[expr]; ok {
				expr = named
			}
			if expr == "" {
				return nil, &model.ConfigurationError{
					Component: "rule",
					Reason:    fmt.Sprintf("regex_match rule %d on field %q has no pattern", i, cfg.Field),
				}
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, &model.ConfigurationError{
					Component: "rule",
					Reason:    fmt.Sprintf("regex_match rule %d on field %q: %v", i, cfg.Field, err),
				}
			}
			rule.pattern = re
		}

		if cfg.Kind == model.RuleNumericRange && cfg.Params.Min != nil && cfg.Params.Max != nil &&
			*cfg.Params.Min > *cfg.Params.Max {
			return nil, &model.ConfigurationError{
				Component: "rule",
				Reason:    fmt.Sprintf("numeric_range rule %d on field %q has min > max", i, cfg.Field),
			}
		}

		compiled = append(compiled, rule)
	}

	return compiled, nil
}
