package aitable

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the UTC timestamp layout written into DateTime cells.
const ISOLayout = "2006-01-02T15:04:05.000Z"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
}

// CoerceValue converts a caller-supplied value into the cell value expected
// for f. A nil result means the value is dropped from the write.
func CoerceValue(f FieldSchema, raw any) any {
	if raw == nil {
		return nil
	}
	switch f.Type {
	case FieldTypeText, FieldTypeSingleText, FieldTypeEmail, FieldTypeURL, FieldTypePhone, FieldTypeSingleSelect:
		return stringify(raw)
	case FieldTypeCheckbox:
		return truthy(raw)
	case FieldTypeNumber, FieldTypeCurrency, FieldTypePercent, FieldTypeRating:
		n, ok := toNumber(raw)
		if !ok {
			return nil
		}
		return n
	case FieldTypeDateTime:
		return toISODate(raw)
	case FieldTypeMultiSelect:
		return toOptionIDs(f, raw)
	case FieldTypeAttachment, FieldTypeUnsupported:
		return nil
	}
	return nil
}

// MapFieldValuesToCells coerces values against fields, in field order. Fields
// missing from values are left out rather than cleared, and so are values
// that coerce to nil.
func MapFieldValuesToCells(fields []FieldSchema, values map[string]any) map[string]any {
	cells := make(map[string]any)
	for _, f := range fields {
		raw, ok := values[f.Name]
		if !ok {
			continue
		}
		if v := CoerceValue(f, raw); v != nil {
			cells[f.Name] = v
		}
	}
	return cells
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(buf)
}

func truthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	}
	return true
}

func toNumber(raw any) (float64, bool) {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case bool:
		if v {
			n = 1
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func toISODate(raw any) any {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(ISOLayout)
			}
		}
		return nil
	case float64:
		return time.UnixMilli(int64(v)).UTC().Format(ISOLayout)
	case int64:
		return time.UnixMilli(v).UTC().Format(ISOLayout)
	case int:
		return time.UnixMilli(int64(v)).UTC().Format(ISOLayout)
	}
	return nil
}

func toOptionIDs(f FieldSchema, raw any) any {
	switch v := raw.(type) {
	case string:
		if id, ok := f.optionID(v); ok {
			return []string{id}
		}
		return []string{}
	case []string:
		ids := make([]string, 0, len(v))
		for _, name := range v {
			if id, ok := f.optionID(name); ok {
				ids = append(ids, id)
			}
		}
		return ids
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			name, ok := item.(string)
			if !ok {
				continue
			}
			if id, ok := f.optionID(name); ok {
				ids = append(ids, id)
			}
		}
		return ids
	}
	return nil
}
