package inventory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// Project keeps the top-level scalar and list fields of r and overlays the
// extractions from its flattened form. Missing paths never fail.
func Project(r record.Record, table []Extraction) record.Record {
	out := record.Record{}
	for k, v := range r {
		if isMap(v) {
			continue
		}
		out[k] = v
	}
	flat := record.Flatten(r)
	for _, ex := range table {
		v, ok := flat[ex.Path]
		if !ok || v == nil {
			out[ex.Alias] = ex.Default
			continue
		}
		if ex.Split {
			parts := SplitMulti(v)
			if len(parts) == 0 {
				out[ex.Alias] = ex.Default
				continue
			}
			out[ex.Alias] = parts
			continue
		}
		out[ex.Alias] = v
	}
	return out
}

// ProjectAll applies Project to every record.
func ProjectAll(records []record.Record, table []Extraction) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		out = append(out, Project(r, table))
	}
	return out
}

func isMap(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, record.Record:
		return true
	}
	return false
}

// SplitMulti splits a tab separated multi value. Lists are returned as
// strings; blanks are dropped.
func SplitMulti(v interface{}) []string {
	var raw []string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(t, "\t")
	case []string:
		raw = t
	case []interface{}:
		for _, item := range t {
			if item != nil {
				raw = append(raw, fmt.Sprint(item))
			}
		}
	default:
		raw = []string{fmt.Sprint(t)}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeMAC lower-cases a MAC address and uses colon separators.
func NormalizeMAC(mac string) string {
	mac = strings.ToLower(strings.TrimSpace(mac))
	return strings.NewReplacer("-", ":", ".", ":").Replace(mac)
}

// BestOwner picks the longest user name among the LastUsers aliases of a
// projected record, skipping ignored system accounts. Ties keep the first
// name found. It returns "" when nobody qualifies.
func BestOwner(r record.Record, ignored []string) string {
	skip := make(map[string]struct{}, len(ignored))
	for _, name := range ignored {
		skip[strings.ToLower(name)] = struct{}{}
	}
	best := ""
	for _, ex := range LastUsers {
		for _, name := range SplitMulti(r[ex.Alias]) {
			if _, ok := skip[strings.ToLower(name)]; ok {
				continue
			}
			if len(name) > len(best) {
				best = name
			}
		}
	}
	return best
}

// SourceAttributes lists the distinct attribute names an integration source
// reports under foreign_attributes, sorted.
func SourceAttributes(records []record.Record, source string) ([]string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("integration source required")
	}
	ns := "@" + source + ".dev"
	seen := map[string]struct{}{}
	for _, r := range records {
		fa, ok := asMap(r["foreign_attributes"])
		if !ok {
			continue
		}
		entries, ok := fa[ns].([]interface{})
		if !ok {
			continue
		}
		for _, entry := range entries {
			m, ok := asMap(entry)
			if !ok {
				continue
			}
			for k := range m {
				seen[k] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch t := v.(type) {
	case map[string]interface{}:
		return t, true
	case record.Record:
		return t, true
	}
	return nil, false
}
