// pkg/pipeline/transform.go
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/meridian-data/etl-runner/pkg/model"
)

// OpKind identifies one of the supported field-level transform operations.
type OpKind string

const (
	// OpTrim strips surrounding whitespace from a string field.
	OpTrim OpKind = "trim"
	// OpLower lowercases a string field.
	OpLower OpKind = "lower"
	// OpRename moves a field to a new name.
	OpRename OpKind = "rename"
	// OpDrop removes a field.
	OpDrop OpKind = "drop"
	// OpDefault fills a missing or null field with a default value.
	OpDefault OpKind = "default"
	// OpDerive sets a target field by joining source fields with a separator.
	OpDerive OpKind = "derive"
)

// Op is one transform operation. Operations apply in configuration order and
// are deterministic; none of them can touch the record ID.
type Op struct {
	Kind      OpKind        `json:"op"`
	Field     string        `json:"field,omitempty"`
	Target    string        `json:"target,omitempty"`
	Default   interface{}   `json:"default,omitempty"`
	Sources   []string      `json:"sources,omitempty"`
	Separator string        `json:"separator,omitempty"`
}

// Transformer is the transform stage: an ordered sequence of field
// operations applied to every record in a batch.
type Transformer struct {
	ops    []Op
	logger *zap.Logger
}

// NewTransformer validates the operation list and builds the stage.
func NewTransformer(ops []Op, logger *zap.Logger) (*Transformer, error) {
	for i, op := range ops {
		switch op.Kind {
		case OpTrim, OpLower, OpDrop:
			if op.Field == "" {
				return nil, &model.ConfigurationError{
					Component: "transform",
					Reason:    fmt.Sprintf("op %d (%s) has no field", i, op.Kind),
				}
			}
		case OpRename:
			if op.Field == "" || op.Target == "" {
				return nil, &model.ConfigurationError{
					Component: "transform",
					Reason:    fmt.Sprintf("op %d (rename) needs field and target", i),
				}
			}
		case OpDefault:
			if op.Field == "" {
				return nil, &model.ConfigurationError{
					Component: "transform",
					Reason:    fmt.Sprintf("op %d (default) has no field", i),
				}
			}
		case OpDerive:
			if op.Target == "" || len(op.Sources) == 0 {
				return nil, &model.ConfigurationError{
					Component: "transform",
					Reason:    fmt.Sprintf("op %d (derive) needs target and sources", i),
				}
			}
		default:
			return nil, &model.ConfigurationError{
				Component: "transform",
				Reason:    fmt.Sprintf("op %d has unknown kind %q", i, op.Kind),
			}
		}
	}

	return &Transformer{
		ops:    ops,
		logger: logger.Named("transform"),
	}, nil
}

// Apply runs every operation over every record, in order. The batch is
// mutated in place; record identity and order are preserved.
func (t *Transformer) Apply(batch *model.Batch) *model.Batch {
	for _, rec := range batch.Records {
		for _, op := range t.ops {
			applyOp(rec, op)
		}
	}

	if len(t.ops) > 0 {
		t.logger.Debug("Applied transforms",
			zap.Int("ops", len(t.ops)),
			zap.Int("records", batch.Len()))
	}

	return batch
}

// applyOp applies a single operation to a single record.
func applyOp(rec *model.Record, op Op) {
	switch op.Kind {
	case OpTrim:
		if s, ok := stringField(rec, op.Field); ok {
			rec.SetField(op.Field, strings.TrimSpace(s))
		}

	case OpLower:
		if s, ok := stringField(rec, op.Field); ok {
			rec.SetField(op.Field, strings.ToLower(s))
		}

	case OpRename:
		if v, present := rec.Field(op.Field); present {
			rec.DropField(op.Field)
			rec.SetField(op.Target, v)
		}

	case OpDrop:
		rec.DropField(op.Field)

	case OpDefault:
		if v, present := rec.Field(op.Field); !present || model.IsNull(v) {
			rec.SetField(op.Field, op.Default)
		}

	case OpDerive:
		parts := make([]string, 0, len(op.Sources))
		for _, src := range op.Sources {
			if v, present := rec.Field(src); present && !model.IsNull(v) {
				parts = append(parts, model.FormatValue(v))
			}
		}
		rec.SetField(op.Target, strings.Join(parts, op.Separator))
	}
}

// LoadOps reads a JSON array of transform operations from a file. An empty
// path yields no operations.
func LoadOps(path string) ([]Op, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigurationError{
			Component: "transform",
			Reason:    fmt.Sprintf("failed to read transforms file %s: %v", path, err),
		}
	}

	var ops []Op
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, &model.ConfigurationError{
			Component: "transform",
			Reason:    fmt.Sprintf("failed to parse transforms file %s: %v", path, err),
		}
	}

	return ops, nil
}

// stringField returns a field's string value, or false for missing,
// null or non-string values.
func stringField(rec *model.Record, name string) (string, bool) {
	v, present := rec.Field(name)
	if !present || model.IsNull(v) {
		return "", false
	}
	return model.AsString(v)
}
