package vectorstore

import (
	"fmt"
	"strconv"
)

// mergeFilters overlays b on top of a without mutating either. Keys in b win.
func mergeFilters(a, b map[string]any) map[string]any {
	merged := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

// toStringMap converts metadata to the string-valued form chromem stores.
// Numeric and bool values round-trip through their canonical string forms.
func toStringMap(meta map[string]any) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = stringifyValue(v)
	}
	return out
}

// numericMetaKeys are the metadata fields stored with integer values.
// Recovery from chromem's string-valued metadata is restricted to these:
// free-text fields like title or summary must come back as strings even
// when their content happens to look numeric.
var numericMetaKeys = map[string]bool{
	"chunk_index": true,
	"start_line":  true,
	"end_line":    true,
	"char_count":  true,
	"chunk_count": true,
}

// fromStringMap widens a chromem metadata map back to map[string]any,
// recovering integer values for the known numeric keys.
func fromStringMap(meta map[string]string) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if numericMetaKeys[k] {
			out[k] = parseValue(v)
		} else {
			out[k] = v
		}
	}
	return out
}

func stringifyValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func parseValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
