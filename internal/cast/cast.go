// Package cast converts between the normalized string storage form of an
// attribute value and its logical representation.
//
// # Usage
//
//	logical := cast.Out(entities.DataTypeInteger, stored)
//	stored, err := cast.In(entities.DataTypeInteger, 42)
package cast

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mrlokans/attrpipe/internal/entities"
)

// Out converts a stored string into the logical value for the data type.
// A nil stored pointer always yields nil. Out never fails: unparseable
// integers come back as nil, unparseable JSON falls back to the raw string
// (lossy-fallback policy so that bad data stays visible instead of being
// silently dropped).
func Out(dataType entities.DataType, stored *string) any {
	if stored == nil {
		return nil
	}
	s := *stored

	switch dataType {
	case entities.DataTypeInteger:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil
		}
		return n

	case entities.DataTypeMultiSelect, entities.DataTypeReferenceMulti:
		return outMulti(s)

	case entities.DataTypeJSON:
		if s == "null" {
			return nil
		}
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return s
		}
		return v

	default:
		// text, rich_text, single_select, reference
		return s
	}
}

// outMulti accepts either a JSON-encoded array or a bare scalar (wrapped
// into a one-element slice) and always returns an ordered []string.
func outMulti(s string) []string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return []string{}
	}

	if strings.HasPrefix(trimmed, "[") {
		var raw []any
		if err := json.Unmarshal([]byte(trimmed), &raw); err == nil {
			out := make([]string, 0, len(raw))
			for _, item := range raw {
				out = append(out, scalarToString(item))
			}
			return out
		}
	}

	return []string{s}
}

// In converts a logical value into its stored string form. A nil logical
// value yields a nil pointer (clearing the slot is a write of nil, not a
// delete). Round-trip with Out is guaranteed for integer, text and
// single_select; JSON and multi-select values may re-serialize with a
// different byte layout.
func In(dataType entities.DataType, logical any) (*string, error) {
	if logical == nil {
		return nil, nil
	}

	switch dataType {
	case entities.DataTypeInteger:
		switch v := logical.(type) {
		case int:
			return ptr(strconv.Itoa(v)), nil
		case int64:
			return ptr(strconv.FormatInt(v, 10)), nil
		case float64:
			return ptr(strconv.FormatInt(int64(v), 10)), nil
		case string:
			if _, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err != nil {
				return nil, fmt.Errorf("cast in: %q is not an integer", v)
			}
			return ptr(strings.TrimSpace(v)), nil
		default:
			return nil, fmt.Errorf("cast in: unsupported integer value %T", logical)
		}

	case entities.DataTypeMultiSelect, entities.DataTypeReferenceMulti:
		items, err := toStringSlice(logical)
		if err != nil {
			return nil, fmt.Errorf("cast in: %w", err)
		}
		encoded, err := json.Marshal(items)
		if err != nil {
			return nil, fmt.Errorf("cast in: %w", err)
		}
		return ptr(string(encoded)), nil

	case entities.DataTypeJSON:
		encoded, err := json.Marshal(logical)
		if err != nil {
			return nil, fmt.Errorf("cast in: %w", err)
		}
		return ptr(string(encoded)), nil

	default:
		return ptr(scalarToString(logical)), nil
	}
}

func toStringSlice(logical any) ([]string, error) {
	switch v := logical.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, scalarToString(item))
		}
		return out, nil
	case string:
		return []string{v}, nil
	default:
		return nil, fmt.Errorf("unsupported multi-select value %T", logical)
	}
}

func scalarToString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// JSON numbers decode as float64; keep integral values clean
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func ptr(s string) *string {
	return &s
}
