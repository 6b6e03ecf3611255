package cmd

import (
	"context"
	"fmt"

	"github.com/spigell/job-seeker/internal/report"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or reset the resumable positions of the searches",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checkpoints",
	Run: func(cmd *cobra.Command, _ []string) {
		logger, config := bootstrap()
		ctx := context.Background()

		format, err := report.ParseFormat(cmd.Flag("format").Value.String())
		if err != nil {
			logger.Fatal("parsing output format", zap.Error(err))
		}

		st, err := openState(ctx, config, logger)
		if err != nil {
			fatalStore(logger, err)
		}
		defer st.Close(logger)

		cps, err := st.store.ListCheckpoints(ctx)
		if err != nil {
			logger.Fatal("listing checkpoints", zap.Error(err))
		}

		if err := report.WriteCheckpoints(cmd.OutOrStdout(), cps, format); err != nil {
			logger.Fatal("writing checkpoints", zap.Error(err))
		}
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset [query-key...]",
	Short: "Make the next run scan the given searches from the first page",
	Run: func(cmd *cobra.Command, args []string) {
		logger, config := bootstrap()
		ctx := context.Background()

		st, err := openState(ctx, config, logger)
		if err != nil {
			fatalStore(logger, err)
		}
		defer st.Close(logger)

		keys := args
		if all, _ := cmd.Flags().GetBool("all"); all {
			cps, err := st.store.ListCheckpoints(ctx)
			if err != nil {
				logger.Fatal("listing checkpoints", zap.Error(err))
			}
			keys = nil
			for _, cp := range cps {
				keys = append(keys, cp.QueryKey)
			}
		}

		if len(keys) == 0 {
			logger.Info("nothing to reset", zap.Strings("configured_searches", config.QueryKeys()))
			return
		}

		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			prompt := promptui.Prompt{
				Label:     fmt.Sprintf("Reset %d checkpoints", len(keys)),
				IsConfirm: true,
			}
			if _, err := prompt.Run(); err != nil {
				logger.Info("exiting", zap.String("reason", "reset was not confirmed"))
				return
			}
		}

		for _, key := range keys {
			if err := st.store.ResetCheckpoint(ctx, key); err != nil {
				logger.Fatal("resetting checkpoint", zap.String("query", key), zap.Error(err))
			}
			logger.Info("checkpoint reset", zap.String("query", key))
		}
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointListCmd, checkpointResetCmd)

	checkpointListCmd.Flags().StringP("format", "f", string(report.FormatTable), "output format: table, json or yaml")
	checkpointResetCmd.Flags().Bool("all", false, "reset every stored checkpoint")
	checkpointResetCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}
