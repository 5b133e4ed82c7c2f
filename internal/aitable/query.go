package aitable

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Params is an insertion-ordered set of query parameters.
type Params = orderedmap.OrderedMap[string, any]

// NewParams returns an empty parameter set.
func NewParams() *Params { return orderedmap.New[string, any]() }

// BuildQueryString renders params as "?k1=v1&k2=v2" in insertion order, or ""
// when no parameter survives filtering. Nil values and empty strings are
// skipped, slices and maps are sent as one JSON-encoded value, and empty
// slices are dropped. Any name in required that is absent, nil or "" fails
// with a MissingParameterError.
func BuildQueryString(params *Params, required ...string) (string, error) {
	if params == nil {
		params = NewParams()
	}
	var missing []string
	for _, name := range required {
		v, ok := params.Get(name)
		if !ok || isBlank(v) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return "", &MissingParameterError{Names: missing}
	}

	parts := make([]string, 0, params.Len())
	for pair := params.Oldest(); pair != nil; pair = pair.Next() {
		encoded, ok, err := encodeParam(pair.Value)
		if err != nil {
			return "", errors.Wrapf(err, "encoding parameter %q", pair.Key)
		}
		if !ok {
			continue
		}
		parts = append(parts, url.QueryEscape(pair.Key)+"="+url.QueryEscape(encoded))
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "?" + strings.Join(parts, "&"), nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// encodeParam returns the string form of v and whether it should be sent at all.
func encodeParam(v any) (string, bool, error) {
	if v == nil {
		return "", false, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "", false, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return "", false, nil
		}
		return encodeJSON(rv.Interface())
	case reflect.Map:
		if rv.IsNil() {
			return "", false, nil
		}
		return encodeJSON(rv.Interface())
	case reflect.Struct:
		return encodeJSON(rv.Interface())
	case reflect.String:
		s := rv.String()
		return s, s != "", nil
	default:
		return fmt.Sprint(rv.Interface()), true, nil
	}
}

func encodeJSON(v any) (string, bool, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return "", false, err
	}
	return string(buf), true, nil
}
