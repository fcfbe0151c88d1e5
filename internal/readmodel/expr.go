package readmodel

import (
	"fmt"
	"time"
)

// Expr computes a derived value from a document.
type Expr interface {
	Eval(doc Document) any
}

// Size counts the elements of an array field. Missing fields count as zero.
type Size struct {
	Field string
}

func (s Size) Eval(doc Document) any {
	switch t := doc[s.Field].(type) {
	case []Document:
		return len(t)
	case []any:
		return len(t)
	case []string:
		return len(t)
	default:
		return 0
	}
}

// First yields the first element of an array field, or nil when it is empty.
type First struct {
	Field string
}

func (f First) Eval(doc Document) any {
	switch t := doc[f.Field].(type) {
	case []Document:
		if len(t) > 0 {
			return t[0]
		}
	case []any:
		if len(t) > 0 {
			return t[0]
		}
	}
	return nil
}

// Contains reports whether any joined document in Field has Key equal to Value.
// An empty Value never matches.
type Contains struct {
	Field string
	Key   string
	Value string
}

func (c Contains) Eval(doc Document) any {
	if c.Value == "" {
		return false
	}
	joined, _ := doc[c.Field].([]Document)
	for _, d := range joined {
		if v, ok := stringValue(d[c.Key]); ok && v == c.Value {
			return true
		}
	}
	return false
}

func stringValue(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	default:
		return "", false
	}
}

// The accessors below decode loosely typed document values into Go types.
// Stores hand back different numeric widths, so numbers are normalized here.

func (d Document) Text(key string) string {
	s, _ := stringValue(d[key])
	return s
}

func (d Document) Int(key string) int64 {
	switch t := d[key].(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int64:
		return t
	case float32:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func (d Document) Float(key string) float64 {
	switch t := d[key].(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}

func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

func (d Document) Time(key string) time.Time {
	t, _ := d[key].(time.Time)
	return t.UTC()
}

func (d Document) Doc(key string) (Document, bool) {
	switch t := d[key].(type) {
	case Document:
		return t, true
	case map[string]any:
		return Document(t), true
	default:
		return nil, false
	}
}
