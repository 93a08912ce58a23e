package record

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Separator joins key chains in flattened records.
const Separator = "_"

// ErrNotRecords is returned when a payload is not a list of JSON objects.
var ErrNotRecords = errors.New("payload is not a list of records")

// Record is one JSON object returned by the API. Values are the decoded JSON
// sum type: string, float64 or json.Number, bool, nil, []interface{} and
// map[string]interface{}.
type Record map[string]interface{}

// FromValue converts a decoded JSON document into records.
func FromValue(v interface{}) ([]Record, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrNotRecords, v)
	}
	out := make([]Record, 0, len(list))
	for i, item := range list {
		switch m := item.(type) {
		case map[string]interface{}:
			out = append(out, Record(m))
		case Record:
			out = append(out, m)
		default:
			return nil, fmt.Errorf("%w: element %d is %T", ErrNotRecords, i, item)
		}
	}
	return out, nil
}

// Join builds a flattened key from its parts.
func Join(parts ...string) string {
	return strings.Join(parts, Separator)
}

// Flatten projects a nested record onto a single level. Top-level values that
// are not mappings are copied as-is. Mapping values are walked depth first and
// every leaf is stored under the joined key chain; lists below the top level
// contribute their index as a key segment. Keys are visited in sorted order so
// a colliding synthesized key always resolves the same way (last write wins).
func Flatten(r Record) Record {
	out := make(Record, len(r))
	for _, key := range sortedKeys(r) {
		value := r[key]
		if m, ok := asMap(value); ok {
			flattenInto(out, key, m)
			continue
		}
		out[key] = value
	}
	return out
}

func flattenInto(out Record, prefix string, value interface{}) {
	if m, ok := asMap(value); ok {
		for _, key := range sortedKeys(m) {
			flattenInto(out, Join(prefix, key), m[key])
		}
		return
	}
	if list, ok := value.([]interface{}); ok {
		for i, item := range list {
			flattenInto(out, Join(prefix, strconv.Itoa(i)), item)
		}
		return
	}
	out[prefix] = value
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Record:
		return m, true
	}
	return nil, false
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	return sortedKeys(r)
}

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns a field rendered as a string, "" when absent or null.
func String(r Record, key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Strings returns a list-valued field as strings. A bare string becomes a
// single element list; absent, null and empty values give nil.
func Strings(r Record, key string) []string {
	switch v := r[key].(type) {
	case nil:
		return nil
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return []string{fmt.Sprint(v)}
	}
}

// Int returns a numeric field as int, 0 when absent or not numeric.
func Int(r Record, key string) int {
	switch v := r[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	case interface{ Int64() (int64, error) }:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}
