package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/metrics"
	"github.com/x1thexxx-lgtm/r0tools/pkg/nvd"
	"github.com/x1thexxx-lgtm/r0tools/pkg/query"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
	"github.com/x1thexxx-lgtm/r0tools/pkg/report"
	"github.com/x1thexxx-lgtm/r0tools/pkg/runzero"
)

// processedTasks lists finished tasks of a type, most recent first. An empty
// kind falls back to the configured default.
func (a *app) processedTasks(ctx context.Context, c *runzero.Client, kind string) ([]record.Record, error) {
	search, err := query.TaskType(firstNonEmpty(kind, a.cfg.Defaults.TaskType))
	if err != nil {
		return nil, err
	}
	return c.Tasks(ctx, runzero.TaskFilter{Search: search, Status: "processed"})
}

// publish sends records to InfluxDB. It is a no-op unless enabled is set.
func (a *app) publish(ctx context.Context, enabled bool, measurement string, tagKeys []string, records []record.Record) error {
	if !enabled {
		return nil
	}
	p, err := metrics.NewPublisher(a.cfg.Influx)
	if err != nil {
		return &usageError{err: err}
	}
	defer p.Close()
	n, err := p.PublishRecords(ctx, measurement, map[string]string{"console": a.cfg.Console.BaseURL}, tagKeys, records)
	if err != nil {
		return err
	}
	a.log.Infof("published %d point(s) to %s", n, measurement)
	return nil
}

func newOrgsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "orgs",
		Short: "List the organizations of the account",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(cmd.Context(), config.AccountToken)
			if err != nil {
				return err
			}
			orgs, err := c.Orgs(cmd.Context())
			if err != nil {
				return err
			}
			return a.emit(cmd, "orgs", report.Orgs(orgs))
		},
	}
}

func newTallyCommand(a *app) *cobra.Command {
	var (
		count  int
		kind   string
		influx bool
	)
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "Count the new assets found by recent tasks",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(cmd.Context(), config.OrgToken)
			if err != nil {
				return err
			}
			tasks, err := a.processedTasks(cmd.Context(), c, kind)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("count") {
				count = a.cfg.Defaults.TaskCount
			}
			rows := report.Tally(tasks, count)
			if err := a.publish(cmd.Context(), influx, "runzero_task_new_assets", []string{"taskID", "siteID", "taskName"}, rows); err != nil {
				return err
			}
			return a.emit(cmd, "tally", rows)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "t", 0, "number of most recent tasks to analyze")
	cmd.Flags().StringVar(&kind, "type", "", "task type: scan, sample or import")
	cmd.Flags().BoolVar(&influx, "influx", false, "also publish the tally to InfluxDB")
	return cmd
}

func newKPICommand(a *app) *cobra.Command {
	var (
		timeRange string
		influx    bool
	)
	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Score vulnerability compliance for assets discovered in a time range",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			queries, err := query.KPI(firstNonEmpty(timeRange, a.cfg.Defaults.TimeRange))
			if err != nil {
				return err
			}
			c, err := a.client(ctx, config.ExportToken)
			if err != nil {
				return err
			}
			counts := make([]report.KPICount, 0, len(queries))
			for _, kq := range queries {
				n, err := kpiCount(ctx, c, kq)
				if err != nil {
					return err
				}
				a.log.Debugf("%s: %d", kq.Title, n)
				counts = append(counts, report.KPICount{Query: kq, Count: n})
			}
			if score, ok := report.Score(counts); ok {
				if err := a.publish(ctx, influx, "runzero_compliance", nil, []record.Record{score.Metrics()}); err != nil {
					return err
				}
			}
			return a.emit(cmd, "kpi", report.KPI(counts))
		},
	}
	cmd.Flags().StringVar(&timeRange, "time", "", "time range such as 1week or 30days")
	cmd.Flags().BoolVar(&influx, "influx", false, "also publish the scores to InfluxDB")
	return cmd
}

// kpiCount counts assets for asset queries and distinct affected assets for
// vulnerability queries.
func kpiCount(ctx context.Context, c *runzero.Client, kq query.KPIQuery) (int, error) {
	q := query.New(kq.Search, "id")
	if kq.Kind == query.KindVuln {
		vulns, err := c.ExportVulnerabilities(ctx, q)
		if err != nil {
			return 0, err
		}
		return report.UniqueIDs(vulns), nil
	}
	assets, err := c.ExportAssets(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(assets), nil
}

func newShodanCVEsCommand(a *app) *cobra.Command {
	var summary bool
	cmd := &cobra.Command{
		Use:   "shodan-cves",
		Short: "Look up the CVEs Shodan reported for each asset in the NVD",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			lookup, err := nvd.NewClient(a.cfg.NVD, nvd.WithLogger(a.log), nvd.WithMetrics(a.metrics))
			if err != nil {
				return err
			}
			c, err := a.client(ctx, config.ExportToken)
			if err != nil {
				return err
			}
			assets, err := c.ExportAssets(ctx, query.ShodanCVEs())
			if err != nil {
				return err
			}
			targets := nvd.Targets(assets)
			a.log.Infof("looking up cves for %d asset(s)", len(targets))
			rows, err := lookup.Enrich(ctx, targets)
			if err != nil {
				return fmt.Errorf("nvd: %w", err)
			}
			if summary {
				for _, r := range rows {
					r["cve_details"] = summarize(r["cve_details"])
				}
			}
			return a.emit(cmd, "shodan_cves", rows)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "keep only name, scores and severity of each CVE")
	return cmd
}

func summarize(details interface{}) []interface{} {
	docs, _ := details.([]interface{})
	out := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		if m, ok := d.(map[string]interface{}); ok {
			out = append(out, map[string]interface{}(nvd.Summarize(m)))
		}
	}
	return out
}
