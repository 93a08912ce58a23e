package report

import (
	"net/url"
	"strings"

	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// NotApplicable fills task and agent ids of an address no asset holds.
const NotApplicable = "NA"

// MissingAsset stands in for an address the console has no asset for.
func MissingAsset(address string) record.Record {
	return record.Record{
		"addresses":      address,
		"id":             "not found",
		"first_task_id":  NotApplicable,
		"last_task_id":   NotApplicable,
		"first_agent_id": NotApplicable,
		"last_agent_id":  NotApplicable,
	}
}

// TaskURL links to a completed task in the console web UI.
func TaskURL(baseURL, taskID string) string {
	return strings.TrimRight(baseURL, "/") + "/tasks/search/completed?task=" + url.QueryEscape(taskID)
}

// TaskSummary keeps the fields of a task that tell where and how it ran.
func TaskSummary(baseURL string, task record.Record) record.Record {
	id := record.String(task, "id")
	var targets interface{}
	if params, ok := task["params"].(map[string]interface{}); ok {
		targets = params["targets"]
	}
	return record.Record{
		"task_id":              id,
		"task_url":             TaskURL(baseURL, id),
		"task_organization_id": task["organization_id"],
		"task_targets":         targets,
		"task_agent_id":        task["agent_id"],
		"task_agent_name":      task["agent_name"],
		"task_site_id":         task["site_id"],
		"task_site_name":       task["site_name"],
		"task_type":            task["type"],
	}
}

// Discovery is what the console knows about the tasks that saw one address.
type Discovery struct {
	Asset record.Record
	First record.Record
	Last  record.Record
	// Scoped are processed tasks whose targets cover the address range.
	Scoped []record.Record
}

// TaskDiscovery renders a Discovery as a report entry. The first and last
// discovering tasks are left out of tasks_with_discovery_potential.
func TaskDiscovery(baseURL string, d Discovery) record.Record {
	entry := record.Record{"address": d.Asset}
	skip := map[string]struct{}{}
	if d.First != nil {
		entry["first_discovery"] = TaskSummary(baseURL, d.First)
		skip[record.String(d.First, "id")] = struct{}{}
	}
	if d.Last != nil {
		entry["last_discovery"] = TaskSummary(baseURL, d.Last)
		skip[record.String(d.Last, "id")] = struct{}{}
	}
	potential := make([]record.Record, 0, len(d.Scoped))
	for _, t := range d.Scoped {
		if _, found := skip[record.String(t, "id")]; found {
			continue
		}
		potential = append(potential, TaskSummary(baseURL, t))
	}
	entry["tasks_with_discovery_potential"] = potential
	return entry
}
