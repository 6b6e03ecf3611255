package cmd

import (
	"context"

	"github.com/spigell/job-seeker/internal/report"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show statistics of the stored postings, matches and recent runs",
	Run: func(cmd *cobra.Command, _ []string) {
		logger, config := bootstrap()
		ctx := context.Background()

		format, err := report.ParseFormat(cmd.Flag("format").Value.String())
		if err != nil {
			logger.Fatal("parsing output format", zap.Error(err))
		}
		runs, _ := cmd.Flags().GetInt("runs")

		st, err := openState(ctx, config, logger)
		if err != nil {
			fatalStore(logger, err)
		}
		defer st.Close(logger)

		summary, err := report.Build(ctx, st.store, runs)
		if err != nil {
			logger.Fatal("building the report", zap.Error(err))
		}

		if err := report.Write(cmd.OutOrStdout(), summary, format); err != nil {
			logger.Fatal("writing the report", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringP("format", "f", string(report.FormatTable), "output format: table, json or yaml")
	reportCmd.Flags().IntP("runs", "n", 10, "how many recent runs to show")
}
