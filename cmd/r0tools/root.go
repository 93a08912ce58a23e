package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/logging"
	"github.com/x1thexxx-lgtm/r0tools/pkg/metrics"
	"github.com/x1thexxx-lgtm/r0tools/pkg/output"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
	"github.com/x1thexxx-lgtm/r0tools/pkg/runzero"
)

// promptKey is the --key value used when the flag is given without one.
const promptKey = "-"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	url         string
	key         string
	path        string
	format      string
	debug       bool
	metricsFile string
}

// app carries what a command needs once the configuration is resolved.
type app struct {
	flags   globalFlags
	cfg     *config.Config
	log     *logging.Logger
	metrics *metrics.Collector
	out     output.Writer
	format  output.Format
	key     string
	now     func() time.Time
	prompt  func(label string) (string, error)
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "r0tools",
		Short: "Query, correlate and report on a runZero inventory",
		Long: `r0tools wraps the runZero REST API. Each command runs one query,
flattens the returned assets and writes the result to stdout or to a
timestamped report file.

Settings come from --config (YAML or JSON), then a .env file and the
environment, then flags.

Examples:
  r0tools new-assets --time 2weeks -o excel -p ./reports
  r0tools dupes --pairs -o csv
  r0tools import nessus --dir ./scans --site <site-id> --clean`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              subcommandArgs,
		RunE:              showHelp,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "path to a YAML or JSON config file")
	pf.StringVarP(&a.flags.url, "url", "u", "", "console URL (default "+config.DefaultBaseURL+")")
	pf.StringVarP(&a.flags.key, "key", "k", "", "API key; pass -k alone to be prompted (use -k=KEY to set it inline)")
	pf.Lookup("key").NoOptDefVal = promptKey
	pf.StringVarP(&a.flags.path, "path", "p", "", "directory for report files")
	pf.StringVarP(&a.flags.format, "output", "o", "", "output format: "+output.FormatList()+" (default stdout)")
	pf.BoolVar(&a.flags.debug, "debug", false, "enable debug logging")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "write run metrics in Prometheus textfile format")

	root.AddCommand(
		newAssetsCommand(a),
		newNewAssetsCommand(a),
		newDupesCommand(a),
		newSerialsCommand(a),
		newHWProfileCommand(a),
		newAttributesCommand(a),
		newLastUsersCommand(a),
		newShodanCVEsCommand(a),
		newDedupeFileCommand(a),
		newOrgsCommand(a),
		newTallyCommand(a),
		newKPICommand(a),
		newTasksCommand(a),
		newImportCommand(a),
		newSnowCommand(a),
	)
	return root
}

// setup loads configuration in order: file, .env and environment, flags.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return &usageError{err: err}
	}
	cfg.ApplyEnv(os.LookupEnv)
	a.applyFlags(cfg)
	a.cfg = cfg

	if cfg.Logging.Path != "" {
		if a.log, err = logging.New(cfg.Logging.Path, logging.ParseLevel(cfg.Logging.Level)); err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
	} else {
		a.log = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Logging.Level))
	}
	a.log.SetFormat(cfg.Logging.Format)
	a.metrics = metrics.NewCollector(version)

	if a.format, err = output.ParseFormat(cfg.Output.Format); err != nil {
		return &usageError{err: err}
	}
	a.out = output.Writer{Stdout: cmd.OutOrStdout()}
	if a.now == nil {
		a.now = time.Now
	}
	if a.prompt == nil {
		a.prompt = promptSecret(cmd.ErrOrStderr())
	}

	a.key = a.flags.key
	if a.key == promptKey {
		if a.key, err = a.prompt("runZero API key"); err != nil {
			return err
		}
	}
	a.log.Debugf("console %s, output %q, path %q", cfg.Console.BaseURL, cfg.Output.Format, cfg.Output.Path)
	return nil
}

func (a *app) applyFlags(cfg *config.Config) {
	if a.flags.url != "" {
		cfg.Console.BaseURL = a.flags.url
	}
	if a.flags.path != "" {
		cfg.Output.Path = a.flags.path
	}
	if a.flags.format != "" {
		cfg.Output.Format = a.flags.format
	}
	if a.flags.debug {
		cfg.Logging.Level = "debug"
	}
	if a.flags.metricsFile != "" {
		cfg.Metrics.TextfilePath = a.flags.metricsFile
	}
}

// promptSecret reads a value from the terminal without echo.
func promptSecret(w io.Writer) func(string) (string, error) {
	return func(label string) (string, error) {
		fmt.Fprintf(w, "Enter %s: ", label)
		b, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(w)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", label, err)
		}
		return strings.TrimSpace(string(b)), nil
	}
}

// client returns a console client for an endpoint needing the kind of key.
// An explicit --key wins, then the configured key, then OAuth client
// credentials.
func (a *app) client(ctx context.Context, kind config.TokenKind) (*runzero.Client, error) {
	opts := a.clientOptions()
	token := a.key
	if token == "" {
		token = a.cfg.Console.Token(kind)
	}
	if token == "" && a.cfg.Console.UseOAuth() {
		c := runzero.NewClient(a.cfg.Console.BaseURL, "", opts...)
		if err := c.Authenticate(ctx, a.cfg.Console.ClientID, a.cfg.Console.ClientSecret); err != nil {
			return nil, err
		}
		a.log.Debugf("authenticated with oauth client %s", a.cfg.Console.ClientID)
		return c, nil
	}
	if err := config.Require("console."+string(kind)+"_token", token); err != nil {
		return nil, err
	}
	return runzero.NewClient(a.cfg.Console.BaseURL, token, opts...), nil
}

func (a *app) clientOptions() []runzero.Option {
	return []runzero.Option{
		runzero.WithLogger(a.log),
		runzero.WithMetrics(a.metrics),
		runzero.WithUserAgent("r0tools/" + version),
	}
}

// emit writes records for cmd, to stdout or to a report named after prefix.
func (a *app) emit(cmd *cobra.Command, prefix string, records []record.Record) error {
	base := ""
	if a.format != output.Stdout {
		base = output.ReportName(a.cfg.Output.Path, prefix, a.now())
	}
	path, err := a.out.Write(a.format, base, records)
	if err != nil {
		return err
	}
	a.metrics.AddRecords(cmd.Name(), len(records))
	if path != "" {
		a.log.Infof("%d record(s) written to %s", len(records), path)
	}
	return nil
}

// subcommandArgs rejects anything left over once a command with
// subcommands has been resolved, which is always a misspelt command name.
func subcommandArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	msg := fmt.Sprintf("unknown command %q for %q", args[0], cmd.CommandPath())
	if cmd.SuggestionsMinimumDistance <= 0 {
		cmd.SuggestionsMinimumDistance = 2
	}
	if s := cmd.SuggestionsFor(args[0]); len(s) > 0 {
		msg += "; did you mean " + s[0] + "?"
	}
	return &usageError{err: errors.New(msg)}
}

func showHelp(cmd *cobra.Command, _ []string) error {
	return cmd.Help()
}

func flattenAll(records []record.Record) []record.Record {
	out := make([]record.Record, 0, len(records))
	for _, r := range records {
		out = append(out, record.Flatten(r))
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
