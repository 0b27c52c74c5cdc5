package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"queueloss/internal/reporting"
)

func (a *app) ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Track recommended actions and the hash-chained ROI log",
	}
	cmd.AddCommand(a.ledgerActionsCmd())
	cmd.AddCommand(a.ledgerImplementCmd())
	cmd.AddCommand(a.ledgerVerifyCmd())
	cmd.AddCommand(a.ledgerRecordCmd())
	cmd.AddCommand(a.ledgerEntriesCmd())
	cmd.AddCommand(a.ledgerChainCmd())
	cmd.AddCommand(a.ledgerROICmd())
	return cmd
}

func (a *app) ledgerActionsCmd() *cobra.Command {
	var day string

	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List the recommendations made for a day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := parseDay(day)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			actions, err := svc.stores.actions.GetByDate(ctx, d)
			if err != nil {
				return err
			}
			views := make([]reporting.RecommendationView, 0, len(actions))
			for _, act := range actions {
				views = append(views, reporting.NewRecommendationView(*act))
			}
			return writeJSON(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().StringVar(&day, "day", "", "UTC day (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("day")
	return cmd
}

func (a *app) ledgerImplementCmd() *cobra.Command {
	var cost float64

	cmd := &cobra.Command{
		Use:   "implement <action-id>",
		Short: "Mark a pending action implemented, optionally with its real cost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			var costPtr *float64
			if cmd.Flags().Changed("cost") {
				costPtr = &cost
			}
			act, err := svc.ledger.Implement(ctx, args[0], costPtr)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), reporting.NewRecommendationView(*act))
		},
	}
	cmd.Flags().Float64Var(&cost, "cost", 0, "actual implementation cost (default: estimated cost)")
	return cmd
}

func (a *app) ledgerVerifyCmd() *cobra.Command {
	var before, after string

	cmd := &cobra.Command{
		Use:   "verify <action-id>",
		Short: "Compare average daily loss before and after an action without recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := parsePeriod(before)
			if err != nil {
				return fmt.Errorf("--before: %w", err)
			}
			ap, err := parsePeriod(after)
			if err != nil {
				return fmt.Errorf("--after: %w", err)
			}

			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			v, err := svc.ledger.VerifyImprovement(ctx, args[0], bp, ap)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), v)
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "before period YYYY-MM-DD:YYYY-MM-DD")
	cmd.Flags().StringVar(&after, "after", "", "after period YYYY-MM-DD:YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("before")
	_ = cmd.MarkFlagRequired("after")
	return cmd
}

func (a *app) ledgerRecordCmd() *cobra.Command {
	var before, after string

	cmd := &cobra.Command{
		Use:   "record <action-id>",
		Short: "Verify an implemented action and append its result to the ROI log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := parsePeriod(before)
			if err != nil {
				return fmt.Errorf("--before: %w", err)
			}
			ap, err := parsePeriod(after)
			if err != nil {
				return fmt.Errorf("--after: %w", err)
			}

			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			entry, v, err := svc.ledger.VerifyAndRecord(ctx, args[0], bp, ap)
			if err != nil {
				if !v.Valid && v.Notes != "" {
					return fmt.Errorf("%w: %s", err, v.Notes)
				}
				return err
			}
			return writeJSON(cmd.OutOrStdout(), entry)
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "before period YYYY-MM-DD:YYYY-MM-DD")
	cmd.Flags().StringVar(&after, "after", "", "after period YYYY-MM-DD:YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("before")
	_ = cmd.MarkFlagRequired("after")
	return cmd
}

func (a *app) ledgerEntriesCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Page through ROI log entries, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			page, err := svc.ledger.Entries(ctx, limit, offset)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), page)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "entries per page (0 = all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "entries to skip")
	return cmd
}

func (a *app) ledgerChainCmd() *cobra.Command {
	var entryID string

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Recompute every entry hash and check the chain links",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			if entryID != "" {
				check, err := svc.ledger.VerifySingleEntry(ctx, entryID)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), check); err != nil {
					return err
				}
				if !check.Valid {
					return fmt.Errorf("entry %s hash mismatch", entryID)
				}
				return nil
			}

			report, err := svc.ledger.VerifyChainIntegrity(ctx)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("chain broken at sequence %d: %s", report.BreakSequence, report.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entryID, "entry", "", "check a single entry instead of the whole chain")
	return cmd
}

func (a *app) ledgerROICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roi",
		Short: "Cumulative savings, cost and ROI by action type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer svc.close()

			roi, err := svc.ledger.CumulativeROI(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), roi)
		},
	}
}
