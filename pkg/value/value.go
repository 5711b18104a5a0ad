// Package value defines the typed cell values that flow from tabular data
// sources into accumulators, together with best-effort type inference for
// raw text cells.
package value

import (
	"strconv"
	"strings"
	"time"
)

// Kind identifies the scalar type of a cell value.
type Kind int

const (
	// KindNull is an explicitly null cell (a recognized null literal).
	KindNull Kind = iota
	// KindInteger is a 64-bit signed integer.
	KindInteger
	// KindFloat is a 64-bit float.
	KindFloat
	// KindString is an uninterpreted text cell.
	KindString
	// KindBool is a boolean.
	KindBool
	// KindDateTime is a timestamp.
	KindDateTime
	// KindMissing marks a cell absent from the source (empty cell).
	KindMissing
	// KindMalformed marks a cell the source could not parse into its
	// declared type. Accumulators treat it per their missing policy.
	KindMalformed
	// KindOther is a recognized but otherwise unclassified scalar.
	KindOther
)

// String returns the lowercase kind name used in type tallies and reports.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindDateTime:
		return "datetime"
	case KindMissing:
		return "missing"
	case KindMalformed:
		return "malformed"
	case KindOther:
		return "other"
	}

	return "unknown"
}

// Value is a typed tabular cell. The zero value is an explicit null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
	t    time.Time
}

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInteger, i: v} }

// Float returns a float value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// Str returns a string value.
func Str(v string) Value { return Value{kind: KindString, s: v} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Time returns a datetime value.
func Time(v time.Time) Value { return Value{kind: KindDateTime, t: v} }

// Null returns an explicit null value.
func Null() Value { return Value{kind: KindNull} }

// Missing returns the missing-cell sentinel.
func Missing() Value { return Value{kind: KindMissing} }

// Malformed returns the unparseable-cell sentinel carrying the raw text.
func Malformed(raw string) Value { return Value{kind: KindMalformed, s: raw} }

// Kind reports the value's scalar type.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether the value is the missing sentinel.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// IsMalformed reports whether the value is the unparseable sentinel.
func (v Value) IsMalformed() bool { return v.kind == KindMalformed }

// IsAbsent reports whether the value carries no usable payload
// (missing, malformed, or null).
func (v Value) IsAbsent() bool {
	return v.kind == KindMissing || v.kind == KindMalformed || v.kind == KindNull
}

// AsFloat converts numeric and boolean values to float64.
// The second return is false for every other kind.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInteger:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindBool:
		if v.b {
			return 1, true
		}

		return 0, true
	default:
		return 0, false
	}
}

// Key returns a canonical string key for grouping, distinct counting, and
// frequency tracking. Keys are prefixed by kind so that the integer 1 and
// the string "1" never collide.
func (v Value) Key() string {
	switch v.kind {
	case KindInteger:
		return "i:" + strconv.FormatInt(v.i, 10)
	case KindFloat:
		return "f:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return "s:" + v.s
	case KindBool:
		return "b:" + strconv.FormatBool(v.b)
	case KindDateTime:
		return "t:" + v.t.Format(time.RFC3339Nano)
	case KindNull:
		return "null"
	case KindMissing:
		return "missing"
	case KindMalformed:
		return "bad:" + v.s
	default:
		return "other"
	}
}

// Display returns a human-oriented rendering of the value for reports.
func (v Value) Display() string {
	switch v.kind {
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDateTime:
		return v.t.Format(time.RFC3339)
	case KindMalformed:
		return v.s
	default:
		return v.kind.String()
	}
}

// Recognized literal words, matched case-insensitively.
var (
	nullWords  = map[string]struct{}{"null": {}, "none": {}, "nil": {}, "na": {}, "n/a": {}}
	trueWords  = map[string]struct{}{"true": {}, "t": {}, "yes": {}, "y": {}}
	falseWords = map[string]struct{}{"false": {}, "f": {}, "no": {}, "n": {}}
)

// Timestamp layouts tried in order during inference.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Infer parses a raw text cell into the most specific value it matches:
// empty is missing, then null words, booleans, integers, floats, and
// timestamps, falling back to string. Surrounding whitespace is ignored
// for everything except the string fallback, which keeps the original.
func Infer(text string) Value {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Missing()
	}

	lower := strings.ToLower(trimmed)
	if _, ok := nullWords[lower]; ok {
		return Null()
	}

	if _, ok := trueWords[lower]; ok {
		return Bool(true)
	}

	if _, ok := falseWords[lower]; ok {
		return Bool(false)
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Int(i)
	}

	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Float(f)
	}

	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, trimmed); err == nil {
			return Time(ts)
		}
	}

	return Str(text)
}
