package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TypeMismatchError is returned when a value cannot be converted to the
// declared type of its key.
type TypeMismatchError struct {
	Path string
	Want ValueType
	Got  ValueType
	Text string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s %q", e.Path, e.Want, e.Got, e.Text)
}

// Coerce converts v to the declared type of key. Null passes through
// unchanged. Durations are truncated to the key's unit.
func Coerce(key ConfigKey, v Value) (Value, error) {
	if v.Type() == TypeNull {
		return v, nil
	}
	mismatch := func() (Value, error) {
		text := v.Text()
		if key.Secret {
			text = "<redacted>"
		}
		return v, &TypeMismatchError{Path: key.Path, Want: key.Type, Got: v.Type(), Text: text}
	}

	switch key.Type {
	case TypeBool:
		switch v.Type() {
		case TypeBool:
			return v, nil
		case TypeString:
			if b, err := strconv.ParseBool(strings.TrimSpace(v.AsString())); err == nil {
				return Bool(b), nil
			}
		}

	case TypeInt:
		switch v.Type() {
		case TypeInt:
			return v, nil
		case TypeString:
			if i, ok := parseInt(v.AsString()); ok {
				return Int(i), nil
			}
		}

	case TypeString:
		switch v.Type() {
		case TypeString:
			return v, nil
		case TypeInt:
			return String(strconv.FormatInt(v.AsInt(), 10)), nil
		case TypeOpaque:
			if f, ok := v.Raw().(float64); ok {
				return String(strconv.FormatFloat(f, 'f', -1, 64)), nil
			}
		}

	case TypeDuration:
		unit := key.DurationUnit()
		switch v.Type() {
		case TypeDuration:
			return Duration(v.AsDuration().Truncate(unit)), nil
		case TypeInt:
			return Duration(time.Duration(v.AsInt()) * unit), nil
		case TypeString:
			s := strings.TrimSpace(v.AsString())
			if i, ok := parseInt(s); ok {
				return Duration(time.Duration(i) * unit), nil
			}
			if d, err := time.ParseDuration(s); err == nil {
				return Duration(d.Truncate(unit)), nil
			}
		}

	case TypeList:
		switch v.Type() {
		case TypeList:
			return v, nil
		case TypeString:
			var items []string
			for _, part := range strings.Split(v.AsString(), ",") {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}
			return Strings(items...), nil
		}

	case TypeMap:
		if v.Type() == TypeMap {
			return v, nil
		}
	}
	return mismatch()
}

// CoerceAt coerces v when path is declared in s. Paths beneath a map-typed
// key and unknown paths are returned unchanged.
func (s *Schema) CoerceAt(path string, v Value) (Value, error) {
	key, ok := s.Lookup(path)
	if !ok {
		return v, nil
	}
	return Coerce(key, v)
}

// parseInt accepts Ruby-style digit separators ("15_000").
func parseInt(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	i, err := strconv.ParseInt(s, 10, 64)
	return i, err == nil
}
