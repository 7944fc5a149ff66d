// pkg/rules/validator.go
package rules

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// Validator applies a configured rule battery to batches of records,
// partitioning each batch into valid and invalid sequences. Validation never
// fails a run: malformed values are rule failures, not execution errors.
type Validator struct {
	rules  []compiledRule
	logger *zap.Logger
}

// NewValidator builds a validator from an ordered rule battery. A broken
// rule configuration is a ConfigurationError and is fatal before any run.
func NewValidator(configs []Config, logger *zap.Logger) (*Validator, error) {
	compiled, err := compile(configs)
	if err != nil {
		return nil, err
	}

	return &Validator{
		rules:  compiled,
		logger: logger.Named("validator"),
	}, nil
}

// RuleCount returns the number of configured rules.
func (v *Validator) RuleCount() int {
	return len(v.rules)
}

// Validate evaluates every rule against every record in configuration order
// and partitions the batch. Both partitions preserve original batch order.
// now is the run's reference time for not_future_date, supplied by the
// runner so evaluation stays deterministic.
func (v *Validator) Validate(batch *model.Batch, now time.Time) (valid, invalid *model.Batch) {
	// unique_key rules track seen values per field across the batch in a
	// single pass, so the first occurrence is kept and later duplicates
	// are marked invalid.
	seen := make(map[string]map[string]string)
	for _, rule := range v.rules {
		if rule.cfg.Kind == model.RuleUniqueKey {
			seen[rule.cfg.Field] = make(map[string]string)
		}
	}

	validRecords := make([]*model.Record, 0, batch.Len())
	invalidRecords := make([]*model.Record, 0)

	for _, rec := range batch.Records {
		for _, rule := range v.rules {
			if issue := v.evaluate(rule, rec, now, seen); issue != nil {
				rec.AddIssue(*issue)
			}
		}

		if rec.IsValid() {
			validRecords = append(validRecords, rec)
		} else {
			invalidRecords = append(invalidRecords, rec)
		}
	}

	v.logger.Info("Batch validated",
		zap.String("window", batch.Window.String()),
		zap.Int("records", batch.Len()),
		zap.Int("valid", len(validRecords)),
		zap.Int("invalid", len(invalidRecords)))

	valid = &model.Batch{Window: batch.Window, Records: validRecords}
	invalid = &model.Batch{Window: batch.Window, Records: invalidRecords}
	return valid, invalid
}

// evaluate applies one rule to one record. A nil return means the rule
// passed. Rules are pure over the record except unique_key, which consults
// the batch-scoped seen set.
func (v *Validator) evaluate(
	rule compiledRule,
	rec *model.Record,
	now time.Time,
	seen map[string]map[string]string,
) *model.ValidationIssue {
	field := rule.cfg.Field
	value, present := rec.Field(field)

	switch rule.cfg.Kind {
	case model.RuleNotNull:
		if !present || model.IsNull(value) {
			return issue(field, model.RuleNotNull, "value is missing or null")
		}

	case model.RuleRegexMatch:
		str, ok := model.AsString(value)
		if !present || model.IsNull(value) || !ok {
			return issue(field, model.RuleRegexMatch, "value is not a string")
		}
		if !rule.pattern.MatchString(str) {
			return issue(field, model.RuleRegexMatch,
				fmt.Sprintf("value %q does not match pattern", str))
		}

	case model.RuleNumericRange:
		num, ok := model.AsNumber(value)
		if !present || model.IsNull(value) || !ok {
			return issue(field, model.RuleNumericRange, "value is not numeric")
		}
		if rule.cfg.Params.Min != nil && num < *rule.cfg.Params.Min {
			return issue(field, model.RuleNumericRange,
				fmt.Sprintf("value %v below minimum %v", num, *rule.cfg.Params.Min))
		}
		if rule.cfg.Params.Max != nil && num > *rule.cfg.Params.Max {
			return issue(field, model.RuleNumericRange,
				fmt.Sprintf("value %v above maximum %v", num, *rule.cfg.Params.Max))
		}

	case model.RuleNotFutureDate:
		ts, ok := model.AsTime(value)
		if !present || model.IsNull(value) || !ok {
			return issue(field, model.RuleNotFutureDate, "value is not a parsable date")
		}
		if ts.After(now) {
			return issue(field, model.RuleNotFutureDate,
				fmt.Sprintf("date %s is in the future", ts.Format(time.RFC3339)))
		}

	case model.RuleUniqueKey:
		// Null keys are not tracked for uniqueness: not_null is the rule
		// for missing values.
		if !present || model.IsNull(value) {
			return nil
		}
		key := model.FormatValue(value)
		if firstID, dup := seen[field][key]; dup {
			return issue(field, model.RuleUniqueKey,
				fmt.Sprintf("duplicate value %q first seen on record %s", key, firstID))
		}
		seen[field][key] = rec.ID()
	}

	return nil
}

func issue(field string, kind model.RuleKind, message string) *model.ValidationIssue {
	return &model.ValidationIssue{Field: field, Rule: kind, Message: message}
}
