package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"spese-report/internal/period"
	"spese-report/internal/report"
)

func newReportService(a *app) *report.Service {
	return report.NewService(a.store, report.Config{
		Resolver: period.NewResolver(a.cfg.WeekStart),
		Logger:   a.logger,
	})
}

func newGenerateCommand(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "generate <weekly|monthly|quarterly|yearly> [period]",
		Short: "Print the report of one period",
		Long: "Print the report of one period. The period may be a date (2024-03-15),\n" +
			"a month (2024-03), a quarter (2024-Q1) or a year (2024); it defaults to today.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := period.ParseGranularity(args[0])
			if err != nil {
				return err
			}
			if userID == "" {
				return errors.New("--user is required")
			}
			token := time.Now().Format("2006-01-02")
			if len(args) == 2 {
				token = args[1]
			}

			a, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rep, err := newReportService(a).Generate(cmd.Context(), userID, g, token)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), rep)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID to report on")
	return cmd
}

func newAvailableCommand(opts *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "available <weekly|monthly|quarterly|yearly>",
		Short: "List the periods that have entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := period.ParseGranularity(args[0])
			if err != nil {
				return err
			}
			if userID == "" {
				return errors.New("--user is required")
			}

			a, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			periods, err := newReportService(a).Available(cmd.Context(), userID, g)
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), periods)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID to list periods for")
	return cmd
}
