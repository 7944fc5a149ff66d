// pkg/model/record.go
package model

import (
	"fmt"
	"time"
)

// Record is the canonical in-memory representation of one data row.
// Field values are restricted to string, numeric, bool, time.Time or nil.
// Identity is the record ID only: two records with the same ID are the same
// logical entity across pipeline stages even if field values differ.
type Record struct {
	id     string
	fields map[string]interface{}
	order  []string
	issues []ValidationIssue
}

// NewRecord constructs a record with a stable ID and its field mapping.
// Field iteration order follows the order slice, which preserves the order
// the fields appeared in at the source.
func NewRecord(id string, fields map[string]interface{}, order []string) (*Record, error) {
	if id == "" {
		return nil, &MalformedRecordError{Reason: "empty record ID"}
	}

	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	if order == nil {
		order = make([]string, 0, len(fields))
		for k := range fields {
			order = append(order, k)
		}
	} else {
		order = append([]string(nil), order...)
	}

	return &Record{
		id:     id,
		fields: copied,
		order:  order,
	}, nil
}

// ID returns the stable record identifier assigned at extraction time.
func (r *Record) ID() string {
	return r.id
}

// Field returns a field value and whether the field is present.
func (r *Record) Field(name string) (interface{}, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// FieldNames returns the field names in source order.
func (r *Record) FieldNames() []string {
	return append([]string(nil), r.order...)
}

// SetField sets a field value. New fields are appended to the field order.
// Only Transform stages mutate field values.
func (r *Record) SetField(name string, value interface{}) {
	if _, exists := r.fields[name]; !exists {
		r.order = append(r.order, name)
	}
	r.fields[name] = value
}

// DropField removes a field from the record.
func (r *Record) DropField(name string) {
	if _, exists := r.fields[name]; !exists {
		return
	}
	delete(r.fields, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// AddIssue appends a validation issue to the record. Issues are append-only.
func (r *Record) AddIssue(issue ValidationIssue) {
	r.issues = append(r.issues, issue)
}

// Issues returns the accumulated validation issues.
func (r *Record) Issues() []ValidationIssue {
	return r.issues
}

// IsValid reports whether the record has no validation issues.
func (r *Record) IsValid() bool {
	return len(r.issues) == 0
}

// Equal reports whether two records refer to the same logical entity.
func (r *Record) Equal(other *Record) bool {
	return other != nil && r.id == other.id
}

// ValidationIssue records a single rule failure on a record.
type ValidationIssue struct {
	Field   string
	Rule    RuleKind
	Message string
}

// String returns the issue formatted for reports and logs.
func (i ValidationIssue) String() string {
	return fmt.Sprintf("field %q failed rule %s: %s", i.Field, i.Rule, i.Message)
}

// RuleKind identifies one of the supported validation rules. The set is
// closed so the full battery is enumerable in configuration.
type RuleKind string

const (
	RuleNotNull       RuleKind = "not_null"
	RuleRegexMatch    RuleKind = "regex_match"
	RuleNumericRange  RuleKind = "numeric_range"
	RuleNotFutureDate RuleKind = "not_future_date"
	RuleUniqueKey     RuleKind = "unique_key"
)

// Known reports whether the rule kind is one of the supported rules.
func (k RuleKind) Known() bool {
	switch k {
	case RuleNotNull, RuleRegexMatch, RuleNumericRange, RuleNotFutureDate, RuleUniqueKey:
		return true
	default:
		return false
	}
}

// Window is one extraction window [Start, End). The end bound is exclusive
// to avoid double-processing records that land exactly on a boundary.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the window.
func (w Window) Contains(ts time.Time) bool {
	return !ts.Before(w.Start) && ts.Before(w.End)
}

// String returns the window in interval notation.
func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Batch is an ordered sequence of records sharing one extraction window.
type Batch struct {
	Window  Window
	Records []*Record
}

// NewBatch assembles a batch, rejecting duplicate record IDs. Duplicates at
// construction time indicate a broken extraction, not bad data.
func NewBatch(window Window, records []*Record) (*Batch, error) {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, dup := seen[rec.ID()]; dup {
			return nil, &MalformedRecordError{
				RecordID: rec.ID(),
				Reason:   "duplicate record ID within batch",
			}
		}
		seen[rec.ID()] = struct{}{}
	}

	return &Batch{Window: window, Records: records}, nil
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// IDs returns the record IDs in batch order.
func (b *Batch) IDs() []string {
	ids := make([]string, 0, b.Len())
	for _, rec := range b.Records {
		ids = append(ids, rec.ID())
	}
	return ids
}
