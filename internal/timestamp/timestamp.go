// Package timestamp normalizes the date shapes found in trip and user documents
// into a single time.Time.
package timestamp

import (
	"math"
	"reflect"
	"strings"
	"time"
)

// Kind tags which shape a Value was decoded from.
type Kind int

const (
	KindAbsent Kind = iota
	KindInstant
	KindText
	KindWrapped
)

func (k Kind) String() string {
	switch k {
	case KindInstant:
		return "instant"
	case KindText:
		return "text"
	case KindWrapped:
		return "wrapped"
	default:
		return "absent"
	}
}

// Converter is a backend wrapper that knows how to turn itself into an instant,
// e.g. *timestamppb.Timestamp.
type Converter interface {
	AsTime() time.Time
}

// Value is one of: absent, a native instant, a date string, or a backend wrapper.
// The zero Value is absent.
type Value struct {
	kind    Kind
	instant time.Time
	text    string
	wrapped Converter
}

func Absent() Value { return Value{} }

func Instant(t time.Time) Value {
	if t.IsZero() {
		return Value{}
	}
	return Value{kind: KindInstant, instant: t}
}

func Text(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Value{}
	}
	return Value{kind: KindText, text: s}
}

func Wrapped(c Converter) Value {
	if c == nil {
		return Value{}
	}
	if rv := reflect.ValueOf(c); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return Value{}
	}
	return Value{kind: KindWrapped, wrapped: c}
}

func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether no timestamp was present at all, as opposed to one
// that was present but unparseable.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// From sniffs a raw document field. Anything unrecognized becomes an
// unparseable text value so callers can still tell it apart from absent.
func From(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Absent()
	case Value:
		return x
	case time.Time:
		return Instant(x)
	case *time.Time:
		if x == nil {
			return Absent()
		}
		return Instant(*x)
	case string:
		return Text(x)
	case Converter:
		return Wrapped(x)
	case map[string]any:
		return fromSecondsMap(x)
	default:
		return Value{kind: KindText}
	}
}

// fromSecondsMap handles JSON-serialized timestamps such as
// {"seconds": 1710410000, "nanoseconds": 0} or {"_seconds": ..., "_nanoseconds": ...}.
func fromSecondsMap(m map[string]any) Value {
	secs, ok := number(m["seconds"])
	if !ok {
		secs, ok = number(m["_seconds"])
	}
	if !ok {
		return Value{kind: KindText}
	}
	nanos, ok := number(m["nanoseconds"])
	if !ok {
		nanos, _ = number(m["_nanoseconds"])
	}
	return Instant(time.Unix(int64(secs), int64(nanos)).UTC())
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Layouts accepted for text timestamps, tried in order. Layouts without a zone
// are read as UTC.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"January 2, 2006",
	"Jan 2, 2006",
	"1/2/2006 3:04:05 PM",
	"1/2/2006",
}

// Normalize converts v to a canonical UTC instant. ok is false for absent and
// unparseable values; it never panics.
func Normalize(v Value) (t time.Time, ok bool) {
	switch v.kind {
	case KindInstant:
		return v.instant.UTC(), true
	case KindText:
		return parseText(v.text)
	case KindWrapped:
		return convert(v.wrapped)
	default:
		return time.Time{}, false
	}
}

func parseText(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Trailing zone names like "(Coordinated Universal Time)" from Date.toString().
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i]
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func convert(c Converter) (t time.Time, ok bool) {
	// Typed nil pointers satisfy the interface but may panic on use.
	defer func() {
		if recover() != nil {
			t, ok = time.Time{}, false
		}
	}()
	t = c.AsTime()
	if t.IsZero() {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Display renders v for tables: "Never" when absent, "Unknown" when present but
// unparseable, otherwise a locale-style date and time in loc.
func Display(v Value, loc *time.Location) string {
	if v.IsAbsent() {
		return "Never"
	}
	t, ok := Normalize(v)
	if !ok {
		return "Unknown"
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("1/2/2006 3:04:05 PM")
}
