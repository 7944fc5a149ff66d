// pkg/model/value.go
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IsNull determines if a field value should be treated as NULL. Sources that
// deliver rows as text (CSV, some APIs) encode missing values as empty or
// literal null strings.
func IsNull(value interface{}) bool {
	if value == nil {
		return true
	}

	if strVal, ok := value.(string); ok {
		switch strVal {
		case "", "null", "NULL", "nil", "NIL":
			return true
		}
	}

	return false
}

// AsString converts a field value to its string form.
// Returns false for nulls and non-scalar values.
func AsString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

// AsNumber converts a field value to float64. Numeric strings are accepted
// because text-based sources deliver every field as a string.
func AsNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// timeLayouts are the accepted textual timestamp formats, most specific first.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// AsTime converts a field value to a timestamp. Unparsable values return
// false rather than an error so validation can treat them as rule failures.
func AsTime(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case int64:
		return time.Unix(v, 0).UTC(), true
	case float64:
		sec := int64(v)
		nsec := int64((v - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), true
	default:
		return time.Time{}, false
	}
}

// FormatValue renders a field value for issue messages and unique-key
// tracking. All supported scalar types have a stable textual form.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "<null>"
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}
