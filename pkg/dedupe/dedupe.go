package dedupe

import (
	"sort"

	"github.com/x1thexxx-lgtm/r0tools/pkg/inventory"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// NoMatches is the message of the single record Correlate returns when no
// asset shares an identifier with another.
const NoMatches = "No potential duplicate assets found."

// ExactByID keeps the first record seen for each id, in input order. Records
// without an id are all kept.
func ExactByID(records []record.Record) []record.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		id := record.String(r, "id")
		if id == "" {
			out = append(out, r)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, r)
	}
	return out
}

// Match is one unordered pair of assets sharing at least one identifier.
type Match struct {
	A         string   `json:"asset_a"`
	B         string   `json:"asset_b"`
	MACs      []string `json:"matched_MACs"`
	Addresses []string `json:"matched_Addresses"`
	Names     []string `json:"matched_Hostnames"`
}

type identity struct {
	rec   record.Record
	id    string
	macs  []string
	addrs []string
	names []string
}

func identities(records []record.Record) []identity {
	uniq := ExactByID(records)
	out := make([]identity, 0, len(uniq))
	for _, r := range uniq {
		id := record.String(r, "id")
		if id == "" {
			continue
		}
		out = append(out, identity{
			rec:   r,
			id:    id,
			macs:  normalizeMACs(record.Strings(r, "macs")),
			addrs: record.Strings(r, "addresses"),
			names: record.Strings(r, "names"),
		})
	}
	return out
}

// normalizeMACs puts MACs in one notation so "00-11-22-33-44-55" and
// "00:11:22:33:44:55" compare equal.
func normalizeMACs(macs []string) []string {
	out := make([]string, 0, len(macs))
	for _, m := range macs {
		if m = inventory.NormalizeMAC(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// shared returns the values of b also present in a, in b's order.
func shared(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return []string{}
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		if v != "" {
			set[v] = struct{}{}
		}
	}
	out := []string{}
	for _, v := range b {
		if _, ok := set[v]; ok {
			out = append(out, v)
			delete(set, v)
		}
	}
	return out
}

func compare(a, b identity) (macs, addrs, names []string, ok bool) {
	macs = shared(a.macs, b.macs)
	addrs = shared(a.addrs, b.addrs)
	names = shared(a.names, b.names)
	return macs, addrs, names, len(macs) > 0 || len(addrs) > 0 || len(names) > 0
}

// Correlate flags possible duplicates. For every ordered pair of distinct
// assets sharing a MAC, address or name it emits a copy of the first asset
// annotated with possible_dupe and shared_fields describing the second, so an
// asset appears once per partner. Duplicate ids are collapsed first.
func Correlate(records []record.Record) []record.Record {
	ids := identities(records)
	var out []record.Record
	for _, a := range ids {
		for _, b := range ids {
			if a.id == b.id {
				continue
			}
			macs, addrs, names, ok := compare(a, b)
			if !ok {
				continue
			}
			r := a.rec.Clone()
			r["possible_dupe"] = map[string]interface{}{
				"id": b.rec["id"],
				"os": b.rec["os"],
				"hw": b.rec["hw"],
			}
			r["shared_fields"] = map[string]interface{}{
				"MAC":               len(macs) > 0,
				"matched_MACs":      macs,
				"IP address":        len(addrs) > 0,
				"matched_Addresses": addrs,
				"Hostname":          len(names) > 0,
				"matched_Hostnames": names,
				"site":              b.rec["site_id"],
			}
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return []record.Record{{"Msg": NoMatches}}
	}
	return out
}

// Pairs returns each matching pair once, ordered by id.
func Pairs(records []record.Record) []Match {
	ids := identities(records)
	sort.SliceStable(ids, func(i, j int) bool { return ids[i].id < ids[j].id })
	var out []Match
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if ids[i].id == ids[j].id {
				continue
			}
			macs, addrs, names, ok := compare(ids[i], ids[j])
			if !ok {
				continue
			}
			out = append(out, Match{A: ids[i].id, B: ids[j].id, MACs: macs, Addresses: addrs, Names: names})
		}
	}
	return out
}

// Records renders matches for the output writers.
func Records(matches []Match) []record.Record {
	if len(matches) == 0 {
		return []record.Record{{"Msg": NoMatches}}
	}
	out := make([]record.Record, 0, len(matches))
	for _, m := range matches {
		out = append(out, record.Record{
			"asset_a":           m.A,
			"asset_b":           m.B,
			"matched_MACs":      m.MACs,
			"matched_Addresses": m.Addresses,
			"matched_Hostnames": m.Names,
		})
	}
	return out
}
