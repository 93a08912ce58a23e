package report

import (
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// limit returns the first n records; n <= 0 keeps them all.
func limit(records []record.Record, n int) []record.Record {
	if n <= 0 || n >= len(records) {
		return records
	}
	return records[:n]
}

// NewAssets reads the change.new counter of a task's stats, 0 when absent.
func NewAssets(task record.Record) int {
	stats, ok := task["stats"].(map[string]interface{})
	if !ok {
		return 0
	}
	return record.Int(stats, "change.new")
}

// Tally summarizes the new assets found by the n most recent tasks. The last
// record holds the totals.
func Tally(tasks []record.Record, n int) []record.Record {
	tasks = limit(tasks, n)
	out := make([]record.Record, 0, len(tasks)+1)
	total := 0
	for _, t := range tasks {
		fresh := NewAssets(t)
		total += fresh
		out = append(out, record.Record{
			"taskID":          t["id"],
			"siteID":          t["site_id"],
			"taskName":        t["name"],
			"taskDescription": t["description"],
			"newAssets":       fresh,
		})
	}
	return append(out, record.Record{"tasksAnalyzed": len(tasks), "totalNew": total})
}

// TaskIDs returns the ids of the n most recent tasks that have one.
func TaskIDs(tasks []record.Record, n int) []string {
	var ids []string
	for _, t := range limit(tasks, n) {
		if id := record.String(t, "id"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Orgs keeps the identifying fields of each organization.
func Orgs(orgs []record.Record) []record.Record {
	out := make([]record.Record, 0, len(orgs))
	for _, o := range orgs {
		out = append(out, record.Record{
			"name":        record.String(o, "name"),
			"oid":         o["id"],
			"is_project":  o["project"],
			"is_inactive": o["inactive"],
			"is_demo":     o["demo"],
		})
	}
	return out
}

// UniqueIDs counts the distinct id values.
func UniqueIDs(records []record.Record) int {
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if id := record.String(r, "id"); id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
