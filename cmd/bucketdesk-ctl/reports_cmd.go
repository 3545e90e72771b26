package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bucketdesk/bucketdesk/internal/config"
	"github.com/bucketdesk/bucketdesk/internal/report"
)

func newReportsCmd(flags *rootFlags) *cobra.Command {
	var dbPath string
	var limit int

	reportsCmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect recorded error reports",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent error reports from the SQLite sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dbPath
			if path == "" {
				cfg, err := config.Load(flags.configPath)
				if err != nil {
					cfg = config.Default()
				}
				path = cfg.Reporting.SQLite.Path
			}

			sink, err := report.NewSQLiteSink(path)
			if err != nil {
				return err
			}
			defer sink.Close()

			records, err := sink.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No error reports.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tOPERATION\tBUCKET\tOBJECT\tMESSAGE")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					r.Time.Format("2006-01-02 15:04:05"), r.Operation, r.Bucket, r.Object, r.Message)
			}
			return tw.Flush()
		},
	}
	listCmd.Flags().StringVar(&dbPath, "db", "", "SQLite report database (overrides config)")
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of reports to show")

	reportsCmd.AddCommand(listCmd)
	return reportsCmd
}
