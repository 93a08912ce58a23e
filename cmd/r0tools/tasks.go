package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/importer"
	"github.com/x1thexxx-lgtm/r0tools/pkg/query"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
	"github.com/x1thexxx-lgtm/r0tools/pkg/report"
	"github.com/x1thexxx-lgtm/r0tools/pkg/runzero"
)

func newTasksCommand(a *app) *cobra.Command {
	tasks := &cobra.Command{
		Use:   "tasks",
		Short: "Work with organization tasks",
		Args:  subcommandArgs,
		RunE:  showHelp,
	}
	tasks.AddCommand(
		newTaskDownloadCommand(a),
		newTaskSyncCommand(a),
		newTaskSearchCommand(a),
	)
	return tasks
}

func newTaskDownloadCommand(a *app) *cobra.Command {
	var (
		count int
		kind  string
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the scan data of recent tasks as <id>.json.gz",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := a.client(ctx, config.OrgToken)
			if err != nil {
				return err
			}
			list, err := a.processedTasks(ctx, c, kind)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("count") {
				count = a.cfg.Defaults.TaskCount
			}
			dir, err := a.saveDir()
			if err != nil {
				return err
			}
			var rows []record.Record
			for _, id := range report.TaskIDs(list, count) {
				path := filepath.Join(dir, id+".json.gz")
				n, err := downloadTask(ctx, c, id, path)
				if err != nil {
					return err
				}
				a.log.Infof("task %s: %d bytes to %s", id, n, path)
				rows = append(rows, record.Record{"task_id": id, "file": path, "bytes": n})
			}
			return a.emit(cmd, "task_downloads", rows)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "t", 0, "number of most recent tasks to download")
	cmd.Flags().StringVar(&kind, "type", "", "task type: scan, sample or import")
	return cmd
}

type syncFlags struct {
	count   int
	kind    string
	fromURL string
	fromKey string
	site    string
}

func newTaskSyncCommand(a *app) *cobra.Command {
	var f syncFlags
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Copy the scan data of recent tasks from another console into a site",
		Long: `Copy the scan data of recent tasks from another console into a site.

Each task is downloaded from the source console as scan_<id>.json.gz under
--path and uploaded to the site on the console selected by --url and --key.
Files that upload are removed; failed ones are kept for a later import scan.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSync(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.IntVarP(&f.count, "count", "t", 0, "number of most recent tasks to copy")
	fl.StringVar(&f.kind, "type", "", "task type: scan, sample or import")
	fl.StringVar(&f.fromURL, "from-url", "", "source console URL")
	fl.StringVar(&f.fromKey, "from-key", "", "source organization API key; pass --from-key alone to be prompted")
	fl.Lookup("from-key").NoOptDefVal = promptKey
	fl.StringVar(&f.site, "site", "", "site id to import into")
	return cmd
}

func (a *app) runSync(cmd *cobra.Command, f syncFlags) error {
	ctx := cmd.Context()
	srcURL := firstNonEmpty(f.fromURL, a.cfg.Sync.SourceURL)
	if err := config.Require("sync.source_url", srcURL); err != nil {
		return err
	}
	srcKey := f.fromKey
	if srcKey == promptKey {
		var err error
		if srcKey, err = a.prompt("source console API key"); err != nil {
			return err
		}
	}
	srcKey = firstNonEmpty(srcKey, a.cfg.Sync.SourceToken)
	if err := config.Require("sync.source_token", srcKey); err != nil {
		return err
	}
	site := firstNonEmpty(f.site, a.cfg.Console.SiteID)
	if err := config.Require("console.site_id", site); err != nil {
		return err
	}
	if !cmd.Flags().Changed("count") {
		f.count = a.cfg.Defaults.TaskCount
	}

	src := runzero.NewClient(srcURL, srcKey, a.clientOptions()...)
	dst, err := a.client(ctx, config.OrgToken)
	if err != nil {
		return err
	}
	list, err := a.processedTasks(ctx, src, f.kind)
	if err != nil {
		return err
	}
	dir, err := a.saveDir()
	if err != nil {
		return err
	}

	up := &importer.Uploader{Client: dst, Log: a.log, Metrics: a.metrics}
	ids := report.TaskIDs(list, f.count)
	a.log.Infof("copying %d task(s) from %s", len(ids), src.BaseURL())
	entries := make([]importer.LogEntry, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, "scan_"+id+".json.gz")
		if _, err := downloadTask(ctx, src, id, path); err != nil {
			return err
		}
		entry := up.Upload(ctx, path, importer.Scan, site, runzero.ImportOptions{})
		a.log.WithFields(logrus.Fields{"task": id, "site": site, "status": entry.Status}).Debug("task copied")
		if entry.Status == importer.StatusSuccess {
			if err := os.Remove(path); err != nil {
				a.log.Warnf("clean up: %v", err)
			}
		}
		entries = append(entries, entry)
	}
	return a.emit(cmd, "task_sync", importer.Records(entries))
}

func newTaskSearchCommand(a *app) *cobra.Command {
	var (
		targets   []string
		inputList string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the tasks that discovered an address and those that could have",
		Long: `Find the tasks that discovered an address and those that could have.

For each address the runZero asset holding it is looked up, with the first
and last tasks that saw it. Processed tasks whose targets cover the same
private range are listed under tasks_with_discovery_potential. Addresses
outside 10/8, 172.16/12 and 192.168/16 get no such list.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addrs := targets
			if len(addrs) == 0 {
				file := firstNonEmpty(inputList, a.cfg.Defaults.TargetsFile)
				if file == "" {
					return &query.MissingArgumentError{Name: "targets"}
				}
				var err error
				if addrs, err = readLines(file); err != nil {
					return err
				}
			}
			scopes := make([]string, len(addrs))
			for i, addr := range addrs {
				scope, err := query.TaskScope(addr)
				if err != nil {
					return &usageError{err: err}
				}
				scopes[i] = scope
			}
			ctx := cmd.Context()
			c, err := a.client(ctx, config.OrgToken)
			if err != nil {
				return err
			}
			rows := make([]record.Record, 0, len(addrs))
			for i, addr := range addrs {
				d, err := a.discover(ctx, c, strings.TrimSpace(addr), scopes[i])
				if err != nil {
					return err
				}
				rows = append(rows, report.TaskDiscovery(c.BaseURL(), d))
			}
			return a.emit(cmd, "task_discovery", rows)
		},
	}
	cmd.Flags().StringSliceVar(&targets, "targets", nil, "comma separated addresses to look up")
	cmd.Flags().StringVarP(&inputList, "input-list", "i", "", "file with one address per line")
	return cmd
}

// discover collects the tasks related to one address.
func (a *app) discover(ctx context.Context, c *runzero.Client, addr, scope string) (report.Discovery, error) {
	q, err := query.AddressAssets(addr)
	if err != nil {
		return report.Discovery{}, err
	}
	assets, err := c.ExportAssets(ctx, q)
	if err != nil {
		return report.Discovery{}, err
	}
	d := report.Discovery{Asset: report.MissingAsset(addr)}
	if len(assets) > 0 {
		d.Asset = assets[0]
	} else {
		a.log.Infof("%s: no runZero asset", addr)
	}

	first, last := record.String(d.Asset, "first_task_id"), record.String(d.Asset, "last_task_id")
	if first != "" && first != report.NotApplicable {
		if d.First, err = c.Task(ctx, first); err != nil {
			return d, err
		}
	}
	switch {
	case last == first:
		d.Last = d.First
	case last != "" && last != report.NotApplicable:
		if d.Last, err = c.Task(ctx, last); err != nil {
			return d, err
		}
	}

	if scope == "" {
		a.log.Warnf("%s is outside the private ranges; skipping task scope search", addr)
		return d, nil
	}
	d.Scoped, err = c.Tasks(ctx, runzero.TaskFilter{Search: scope, Status: "processed"})
	return d, err
}

// saveDir returns the report directory, created if needed.
func (a *app) saveDir() (string, error) {
	dir := a.cfg.Output.Path
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func downloadTask(ctx context.Context, c *runzero.Client, id, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := c.DownloadTaskData(ctx, id, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return n, err
	}
	return n, nil
}

// readLines returns the non-blank, trimmed lines of a file.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}
