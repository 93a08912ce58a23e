package query

import "fmt"

// Kind names the endpoint a KPI query runs against.
type Kind string

const (
	KindAsset Kind = "asset"
	KindVuln  Kind = "vuln"
)

// Severity weights used by the KPI report.
const (
	SeverityDiscovered = "discovered"
	SeverityCritical   = "critical"
	SeverityHigh       = "high"
	SeverityMedium     = "medium"
)

// KPIQuery is one line of the KPI report.
type KPIQuery struct {
	Title    string
	Severity string
	Kind     Kind
	Search   string
}

// KPI returns the discovered/critical/high/medium queries for timeRange, in
// report order.
func KPI(timeRange string) ([]KPIQuery, error) {
	if err := Require("time range", timeRange); err != nil {
		return nil, err
	}
	vuln := func(sev, label string) KPIQuery {
		return KPIQuery{
			Title:    fmt.Sprintf("Systems within the Last %s with %s Vulnerabilities", timeRange, label),
			Severity: sev,
			Kind:     KindVuln,
			Search:   fmt.Sprintf(`severity:%s AND first_detected_at:<"%s"`, sev, timeRange),
		}
	}
	return []KPIQuery{
		{
			Title:    fmt.Sprintf("Systems Discovered within the Last %s", timeRange),
			Severity: SeverityDiscovered,
			Kind:     KindAsset,
			Search:   fmt.Sprintf(`first_seen:<"%s"`, timeRange),
		},
		vuln(SeverityCritical, "Critical"),
		vuln(SeverityHigh, "High"),
		vuln(SeverityMedium, "Medium"),
	}, nil
}
