package main

import (
	"github.com/spf13/cobra"

	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
	"github.com/x1thexxx-lgtm/r0tools/pkg/snow"
)

func newSnowCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snow",
		Short: "Read inventory from Snow License Manager",
		Args:  subcommandArgs,
		RunE:  showHelp,
	}
	var apps bool
	computers := &cobra.Command{
		Use:   "computers",
		Short: "List Snow computers, optionally with their applications",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.Snow.Password == "" && a.cfg.Snow.Username != "" {
				pw, err := a.prompt("Snow password for " + a.cfg.Snow.Username)
				if err != nil {
					return err
				}
				a.cfg.Snow.Password = pw
			}
			c, err := snow.NewClient(a.cfg.Snow, snow.WithLogger(a.log), snow.WithMetrics(a.metrics))
			if err != nil {
				return err
			}
			rows, err := c.Computers(ctx)
			if err != nil {
				return err
			}
			a.log.Infof("%d snow computer(s)", len(rows))
			if apps {
				for _, r := range rows {
					id := record.String(r, "Id")
					if id == "" {
						continue
					}
					list, err := c.Applications(ctx, id)
					if err != nil {
						return err
					}
					names := make([]interface{}, 0, len(list))
					for _, entry := range list {
						names = append(names, record.String(entry, "Name"))
					}
					r["Applications"] = names
				}
			}
			return a.emit(cmd, "snow_computers", flattenAll(rows))
		},
	}
	computers.Flags().BoolVar(&apps, "apps", false, "fetch the applications of each computer")
	cmd.AddCommand(computers)
	return cmd
}
