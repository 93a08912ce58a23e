package main

import (
	"github.com/spf13/cobra"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/importer"
	"github.com/x1thexxx-lgtm/r0tools/pkg/runzero"
)

type importFlags struct {
	dir         string
	site        string
	clean       bool
	name        string
	description string
}

func newImportCommand(a *app) *cobra.Command {
	var f importFlags
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upload every scan file in a directory to a site",
		Long: `Upload every scan file in a directory to a site, one file at a time.

A file that fails to upload is marked fail in the upload log and the
remaining files are still sent. --clean deletes the files that uploaded.
Without a subcommand the kind comes from import.kind in the config file.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := importer.ParseKind(a.cfg.Import.Kind)
			if err != nil {
				return &usageError{err: err}
			}
			return a.runImport(cmd, kind, f)
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.dir, "dir", "d", "", "directory holding the files")
	pf.StringVar(&f.site, "site", "", "site id to import into")
	pf.BoolVar(&f.clean, "clean", false, "delete files that uploaded successfully")
	pf.StringVar(&f.name, "name", "", "task name")
	pf.StringVar(&f.description, "description", "", "task description")

	for _, kind := range []importer.Kind{importer.Nessus, importer.Pcap, importer.Scan} {
		kind := kind
		cmd.AddCommand(&cobra.Command{
			Use:   string(kind),
			Short: "Upload " + string(kind) + " files",
			Args:  noArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.runImport(cmd, kind, f)
			},
		})
	}
	return cmd
}

func (a *app) runImport(cmd *cobra.Command, kind importer.Kind, f importFlags) error {
	dir := firstNonEmpty(f.dir, a.cfg.Import.Dir)
	site := firstNonEmpty(f.site, a.cfg.Console.SiteID)
	if err := config.Require("import.dir", dir); err != nil {
		return err
	}
	if err := config.Require("console.site_id", site); err != nil {
		return err
	}
	c, err := a.client(cmd.Context(), config.OrgToken)
	if err != nil {
		return err
	}
	up := &importer.Uploader{Client: c, Log: a.log, Metrics: a.metrics}
	entries, err := up.Run(cmd.Context(), dir, kind, site, runzero.ImportOptions{Name: f.name, Description: f.description})
	if err != nil {
		return err
	}
	if f.clean || a.cfg.Import.Clean {
		for _, cerr := range importer.CleanUp(dir, entries) {
			a.log.Warnf("clean up: %v", cerr)
		}
	}
	return a.emit(cmd, "import_log", importer.Records(entries))
}
