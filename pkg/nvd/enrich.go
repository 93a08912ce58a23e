package nvd

import (
	"context"
	"strconv"
	"strings"

	"github.com/x1thexxx-lgtm/r0tools/pkg/inventory"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// Target is an asset with the CVEs Shodan reported for it.
type Target struct {
	ID      string
	Address string
	Ports   []string
	CVEs    []string
}

// Targets reads the Shodan address, ports and CVEs of each asset.
func Targets(assets []record.Record) []Target {
	out := make([]Target, 0, len(assets))
	for _, a := range assets {
		p := inventory.Project(a, inventory.Shodan)
		out = append(out, Target{
			ID:      record.String(p, "id"),
			Address: record.String(p, "address"),
			Ports:   inventory.SplitMulti(p["ports"]),
			CVEs:    inventory.SplitMulti(p["cves"]),
		})
	}
	return out
}

// Enrich looks up every CVE of every target, in order. The result holds one
// record per target with the raw NVD documents under cve_details.
func (c *Client) Enrich(ctx context.Context, targets []Target) ([]record.Record, error) {
	out := make([]record.Record, 0, len(targets))
	for _, t := range targets {
		details := make([]interface{}, 0, len(t.CVEs))
		for _, cve := range t.CVEs {
			doc, err := c.Lookup(ctx, cve)
			if err != nil {
				return out, err
			}
			details = append(details, map[string]interface{}(doc))
		}
		out = append(out, record.Record{
			"id":          t.ID,
			"address":     t.Address,
			"ports":       t.Ports,
			"cve_details": details,
		})
	}
	return out, nil
}

var severityRank = map[string]int{"NONE": 0, "LOW": 1, "MEDIUM": 2, "HIGH": 3, "CRITICAL": 4}

// maxText bounds descriptive fields copied into summaries.
const maxText = 1023

// Summarize reduces an NVD document to the vulnerability fields a report
// needs. CVSS 3.1 values are preferred over CVSS 2 ones.
func Summarize(doc record.Record) record.Record {
	flat := record.Flatten(doc)
	get := func(key string) string {
		return record.String(flat, "vulnerabilities_0_cve_"+key)
	}
	id := get("id")
	if id == "" {
		return record.Record{}
	}
	name := get("cisaVulnerabilityName")
	if name == "" {
		name = id
	}
	severity := get("metrics_cvssMetricV31_0_cvssData_baseSeverity")
	if severity == "" {
		severity = get("metrics_cvssMetricV2_0_baseSeverity")
	}
	if severity == "" {
		severity = get("metrics_cvssMetricV2_0_cvssData_baseSeverity")
	}
	exploitability := get("metrics_cvssMetricV31_0_exploitabilityScore")
	if exploitability == "" {
		exploitability = get("metrics_cvssMetricV2_0_exploitabilityScore")
	}
	score, _ := strconv.ParseFloat(exploitability, 64)
	out := record.Record{
		"cve":           id,
		"name":          name,
		"description":   truncate(get("descriptions_0_value")),
		"solution":      truncate(get("cisaRequiredAction")),
		"severity_rank": severityRank[strings.ToUpper(severity)],
		"exploitable":   score >= 5.0,
	}
	if v := get("metrics_cvssMetricV2_0_cvssData_baseScore"); v != "" {
		out["cvss2_base_score"], _ = strconv.ParseFloat(v, 64)
	}
	if v := get("metrics_cvssMetricV31_0_cvssData_baseScore"); v != "" {
		out["cvss3_base_score"], _ = strconv.ParseFloat(v, 64)
	}
	return out
}

func truncate(s string) string {
	if len(s) > maxText {
		return s[:maxText]
	}
	return s
}
