package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/dedupe"
	"github.com/x1thexxx-lgtm/r0tools/pkg/fingerprint"
	"github.com/x1thexxx-lgtm/r0tools/pkg/inventory"
	"github.com/x1thexxx-lgtm/r0tools/pkg/output"
	"github.com/x1thexxx-lgtm/r0tools/pkg/query"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

func newAssetsCommand(a *app) *cobra.Command {
	var search string
	var fields []string
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "Export assets matching a search",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := query.Require("search", search); err != nil {
				return err
			}
			c, err := a.client(cmd.Context(), config.ExportToken)
			if err != nil {
				return err
			}
			assets, err := c.ExportAssets(cmd.Context(), query.New(search, fields...))
			if err != nil {
				return err
			}
			return a.emit(cmd, "assets", flattenAll(assets))
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "alive:t", "asset search query")
	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "fields to return (default all)")
	return cmd
}

func newNewAssetsCommand(a *app) *cobra.Command {
	var timeRange string
	cmd := &cobra.Command{
		Use:   "new-assets",
		Short: "Report assets first seen within a time range",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := query.NewAssets(firstNonEmpty(timeRange, a.cfg.Defaults.TimeRange))
			if err != nil {
				return err
			}
			c, err := a.client(cmd.Context(), config.ExportToken)
			if err != nil {
				return err
			}
			assets, err := c.ExportAssets(cmd.Context(), q)
			if err != nil {
				return err
			}
			a.log.Infof("%d new asset(s)", len(assets))
			return a.emit(cmd, "new_assets", flattenAll(assets))
		},
	}
	cmd.Flags().StringVar(&timeRange, "time", "", "time range such as 1week or 3days")
	return cmd
}

func newDupesCommand(a *app) *cobra.Command {
	var timeRange string
	var pairs bool
	cmd := &cobra.Command{
		Use:   "dupes",
		Short: "Find assets that share a MAC, address or hostname",
		Long: `Find assets that share a MAC, address or hostname.

By default every asset is reported once per partner with possible_dupe and
shared_fields describing the other asset. --pairs reports each matching
pair once instead.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := query.Duplicates(firstNonEmpty(timeRange, a.cfg.Defaults.TimeRange))
			if err != nil {
				return err
			}
			c, err := a.client(cmd.Context(), config.ExportToken)
			if err != nil {
				return err
			}
			assets, err := c.ExportAssets(cmd.Context(), q)
			if err != nil {
				return err
			}
			assets = dedupe.ExactByID(flattenAll(assets))
			if pairs {
				return a.emit(cmd, "dupe_pairs", dedupe.Records(dedupe.Pairs(assets)))
			}
			return a.emit(cmd, "dupes", dedupe.Correlate(assets))
		},
	}
	cmd.Flags().StringVar(&timeRange, "time", "", "time range such as 1week or 3days")
	cmd.Flags().BoolVar(&pairs, "pairs", false, "report each matching pair once")
	return cmd
}

func newSerialsCommand(a *app) *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "serials",
		Short: "Report serial numbers by source",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(cmd.Context(), config.ExportToken)
			if err != nil {
				return err
			}
			assets, err := c.ExportAssets(cmd.Context(), query.SerialNumbers())
			if err != nil {
				return err
			}
			rows := inventory.ProjectAll(assets, inventory.SerialNumbers)
			if probe {
				engine := fingerprint.NewEngine(
					fingerprint.WithCommunity(a.cfg.SNMP.Community),
					fingerprint.WithPort(a.cfg.SNMP.Port),
					fingerprint.WithTimeout(time.Duration(a.cfg.SNMP.TimeoutMS)*time.Millisecond),
					fingerprint.WithLogger(a.log),
				)
				a.log.Infof("probing %d asset(s) over snmp", len(rows))
				rows = engine.AnnotateAll(cmd.Context(), rows)
			}
			return a.emit(cmd, "serials", flattenAll(rows))
		},
	}
	cmd.Flags().BoolVar(&probe, "snmp-probe", false, "query assets without a serial number over SNMP")
	return cmd
}

func newHWProfileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hwprofile",
		Short: "Report the hardware profile of physical assets",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(cmd.Context(), config.ExportToken)
			if err != nil {
				return err
			}
			assets, err := c.ExportAssets(cmd.Context(), query.HardwareProfile())
			if err != nil {
				return err
			}
			return a.emit(cmd, "hwprofile", flattenAll(inventory.ProjectAll(assets, inventory.HardwareProfile)))
		},
	}
}

func newAttributesCommand(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "attributes",
		Short: "List the attributes an integration source reports",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := query.IntegrationSource(source)
			if err != nil {
				return err
			}
			c, err := a.client(cmd.Context(), config.ExportToken)
			if err != nil {
				return err
			}
			assets, err := c.ExportAssets(cmd.Context(), q)
			if err != nil {
				return err
			}
			names, err := inventory.SourceAttributes(assets, source)
			if err != nil {
				return err
			}
			return a.emit(cmd, "attributes_"+source, output.Strings("attribute", names))
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "integration source, e.g. crowdstrike")
	return cmd
}

func newLastUsersCommand(a *app) *cobra.Command {
	var assign bool
	var ownerType string
	cmd := &cobra.Command{
		Use:   "last-users",
		Short: "Report the last logged in user per asset and optionally assign it as owner",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if assign {
				if err := query.Require("ownership type", ownerType); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			c, err := a.client(ctx, config.ExportToken)
			if err != nil {
				return err
			}
			assets, err := c.ExportAssets(ctx, query.LastUsers())
			if err != nil {
				return err
			}
			projected := inventory.ProjectAll(assets, inventory.LastUsers)
			rows := make([]record.Record, 0, len(projected))
			for _, p := range projected {
				p["owner"] = inventory.BestOwner(p, inventory.IgnoredUsers)
				rows = append(rows, p)
			}
			if assign {
				org, err := a.client(ctx, config.OrgToken)
				if err != nil {
					return err
				}
				assigned := 0
				for _, r := range rows {
					owner, id := record.String(r, "owner"), record.String(r, "id")
					r["assigned"] = false
					if owner == "" || id == "" {
						continue
					}
					if _, err := org.SetOwner(ctx, id, ownerType, owner); err != nil {
						a.log.Errorf("assign %s to %s: %v", owner, id, err)
						continue
					}
					r["assigned"] = true
					assigned++
				}
				a.log.Infof("assigned owners on %d of %d asset(s)", assigned, len(rows))
			}
			return a.emit(cmd, "last_users", flattenAll(rows))
		},
	}
	cmd.Flags().BoolVar(&assign, "assign", false, "set the chosen user as asset owner")
	cmd.Flags().StringVar(&ownerType, "type", "", "ownership type id used with --assign")
	return cmd
}

func newDedupeFileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe-file FILE",
		Short: "Drop repeated ids from a saved JSON report",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			records, err := record.Decode(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			out := dedupe.ExactByID(records)
			a.log.Infof("%d of %d record(s) kept", len(out), len(records))
			return a.emit(cmd, "deduped", out)
		},
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return &usageError{err: err}
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}
