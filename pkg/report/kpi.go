package report

import (
	"fmt"
	"math"

	"github.com/x1thexxx-lgtm/r0tools/pkg/query"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// NoAssets is reported when the discovery query matched nothing.
const NoAssets = "Zero assets were discovered that match the initial query; nothing to process"

var weights = map[string]int{
	query.SeverityCritical: 3,
	query.SeverityHigh:     2,
	query.SeverityMedium:   1,
}

// KPICount is the number of assets one KPI query matched.
type KPICount struct {
	Query query.KPIQuery
	Count int
}

// Compliance holds the computed KPI figures.
type Compliance struct {
	Discovered int
	Counts     map[string]int
	Weighted   float64
	Normal     float64
}

// Score computes the weighted compliance figures. ok is false when no assets
// were discovered.
func Score(counts []KPICount) (c Compliance, ok bool) {
	c.Counts = map[string]int{}
	weighted, normal := 0, 0
	for _, kc := range counts {
		if kc.Query.Severity == query.SeverityDiscovered {
			c.Discovered = kc.Count
			continue
		}
		w, known := weights[kc.Query.Severity]
		if !known {
			continue
		}
		c.Counts[kc.Query.Severity] = kc.Count
		weighted += kc.Count * w
		normal += kc.Count
	}
	if c.Discovered == 0 {
		return c, false
	}
	c.Weighted = round2(100 - float64(weighted)/float64(c.Discovered)*100)
	c.Normal = round2(100 - float64(normal)/float64(c.Discovered)*100)
	return c, true
}

// KPI renders the compliance report: the discovered total, one line per
// severity with its share and weighting, then the overall KPI and the
// unweighted average.
func KPI(counts []KPICount) []record.Record {
	var out []record.Record
	c, ok := Score(counts)
	for _, kc := range counts {
		if kc.Query.Severity == query.SeverityDiscovered {
			out = append(out, record.Record{kc.Query.Title: fmt.Sprint(kc.Count)})
		}
	}
	if !ok {
		return append(out, record.Record{"Info": NoAssets})
	}
	total := float64(c.Discovered)
	for _, kc := range counts {
		w, known := weights[kc.Query.Severity]
		if !known {
			continue
		}
		share := float64(kc.Count) / total * 100
		out = append(out, record.Record{
			kc.Query.Title:          kc.Count,
			"percent_of_total":      round2(share),
			"percent_in_compliance": round2(100 - share),
			"weight":                fmt.Sprint(w),
			"weighted_total":        round2(float64(kc.Count*w) / total * 100),
		})
	}
	return append(out,
		record.Record{"Total Compliance KPI": fmt.Sprint(c.Weighted)},
		record.Record{"vs normal average of all figures": fmt.Sprint(c.Normal)},
	)
}

// Metrics flattens the figures into one record of numeric fields.
func (c Compliance) Metrics() record.Record {
	r := record.Record{
		"discovered":     c.Discovered,
		"compliance_kpi": c.Weighted,
		"normal_average": c.Normal,
	}
	for sev, n := range c.Counts {
		r[sev] = n
	}
	return r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
