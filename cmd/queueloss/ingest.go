package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"queueloss/internal/ingestion"
)

func (a *app) ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load flow measurements into the measurement store",
	}
	cmd.AddCommand(a.ingestCSVCmd())
	cmd.AddCommand(a.ingestSampleCmd())
	return cmd
}

func (a *app) ingestCSVCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "csv <file>",
		Short: "Validate and store measurements from a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var start, end time.Time
			var err error
			if from != "" {
				if start, err = parseDay(from); err != nil {
					return err
				}
			}
			if to != "" {
				if end, err = parseDay(to); err != nil {
					return err
				}
				end = end.AddDate(0, 0, 1)
			}

			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			res, err := svc.ingester.IngestFrom(ctx, ingestion.NewCSVSource(args[0]), start, end)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "skip rows before this UTC day")
	cmd.Flags().StringVar(&to, "to", "", "skip rows after this UTC day")
	return cmd
}

func (a *app) ingestSampleCmd() *cobra.Command {
	var from, to, out string
	var seed uint64

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Generate seeded hotel traffic (front desk, restaurant, lobby)",
		Long: `Generates one record per location every 5 minutes with daily peaks.
With --out the data is written as CSV instead of being stored, which is how
the memory backend is fed across commands (see --csv).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end, err := parseRange("", from, to, time.Now())
			if err != nil {
				return err
			}
			src := ingestion.NewSampleSource(seed, nil)
			ctx := cmd.Context()

			if out != "" {
				ms, err := src.Fetch(ctx, start, end.AddDate(0, 0, 1))
				if err != nil {
					return err
				}
				w, closeOut, err := output(out)
				if err != nil {
					return err
				}
				if err := ingestion.WriteCSV(w, ms); err != nil {
					closeOut()
					return err
				}
				a.logger.Info("wrote sample", "file", out, "records", len(ms))
				return closeOut()
			}

			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			res, err := svc.ingester.IngestFrom(ctx, src, start, end.AddDate(0, 0, 1))
			if err != nil {
				return fmt.Errorf("ingest sample: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first UTC day (default: yesterday)")
	cmd.Flags().StringVar(&to, "to", "", "last UTC day, inclusive")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write CSV here instead of storing")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "generator seed")
	return cmd
}
