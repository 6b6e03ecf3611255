package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/lock"
	"github.com/spigell/job-seeker/internal/pipeline"
	"github.com/spigell/job-seeker/internal/report"
	"github.com/spigell/job-seeker/internal/resume"
	"github.com/spigell/job-seeker/internal/source"
	"github.com/spigell/job-seeker/internal/store"
	"github.com/spigell/job-seeker/internal/store/boltstore"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	PromptYes         = "Yes"
	PromptNo          = "No, keep them pending"
	PromptShowPending = "Show pending matches"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest postings, score them against résumés and notify about new matches",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("mode", "m", string(domain.ModeFull), "what to run: scrape, match or full")
	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before notifying")
	runCmd.Flags().StringP("format", "f", string(report.FormatTable), "run summary format: table, json or yaml")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := bootstrap()

	mode, ok := domain.ParseMode(cmd.Flag("mode").Value.String())
	if !ok {
		logger.Fatal("unknown mode", zap.String("mode", cmd.Flag("mode").Value.String()),
			zap.String("hint", "use one of scrape, match, full"),
		)
	}

	format, err := report.ParseFormat(cmd.Flag("format").Value.String())
	if err != nil {
		logger.Fatal("parsing output format", zap.Error(err))
	}

	if mode.Ingests() && len(config.Searches) == 0 {
		logger.Fatal("no searches configured", zap.String("hint", "add at least one entry under searches"))
	}

	logger.Info("starting the job-seeker", zap.String("version", resolveVersion()), zap.String("mode", string(mode)))

	st, err := openState(ctx, config, logger)
	if err != nil {
		fatalStore(logger, err)
	}
	defer st.Close(logger)

	deps, err := pipelineDeps(ctx, config, st, mode, logger)
	if err != nil {
		logger.Fatal("preparing the run", zap.Error(err))
	}

	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	if !autoApprove {
		deps.Confirm = confirmPending(logger)
	}

	p, err := pipeline.New(pipeline.Config{
		Searches:   config.Queries(),
		ResumesDir: config.ResumesDir,
		Workers:    config.Workers,
		RunTimeout: config.RunTimeout,
	}, deps)
	if err != nil {
		logger.Fatal("creating the pipeline", zap.Error(err))
	}

	result, runErr := p.Run(ctx, mode)
	if result != nil {
		if err := report.WriteRun(cmd.OutOrStdout(), result, format); err != nil {
			logger.Warn("writing run summary", zap.Error(err))
		}
	}

	if runErr != nil {
		st.Close(logger)
		logger.Fatal("run failed", zap.Error(runErr), zap.String("hint", runHint(runErr)))
	}
}

func pipelineDeps(ctx context.Context, config *Config, st *state, mode domain.Mode, logger *zap.Logger) (pipeline.Deps, error) {
	lexicon, err := newLexicon(config)
	if err != nil {
		return pipeline.Deps{}, err
	}

	locker, err := newLocker(config, st, logger)
	if err != nil {
		return pipeline.Deps{}, err
	}

	deps := pipeline.Deps{
		Store:   st.store,
		Parser:  resume.NewParser(lexicon, config.Workers, logger),
		Engine:  newEngine(config, lexicon),
		Locker:  locker,
		Filters: newFilters(config, logger),
		Logger:  logger,
	}

	if mode.Ingests() {
		if deps.Source, err = newSource(config, logger); err != nil {
			return pipeline.Deps{}, err
		}
	}
	if mode.Matches() {
		if deps.Notifier, err = newNotifier(ctx, config, st.store, logger); err != nil {
			return pipeline.Deps{}, err
		}
	}

	return deps, nil
}

// confirmPending asks before the pending matches are handed to the notifier.
func confirmPending(logger *zap.Logger) pipeline.ConfirmFunc {
	return func(_ context.Context, pending []*domain.MatchRecord) (bool, error) {
		prompt := promptui.Select{
			Label: fmt.Sprintf("Notify about %d pending matches?", len(pending)),
			Items: []string{PromptYes, PromptNo, PromptShowPending},
		}

		for {
			_, action, err := prompt.Run()
			if err != nil {
				return false, err
			}

			switch action {
			case PromptYes:
				return true, nil
			case PromptNo:
				logger.Info("keeping matches pending", zap.String("reason", "got no from prompt"))
				return false, nil
			case PromptShowPending:
				for _, rec := range pending {
					logger.Info("pending match",
						zap.String("job_id", rec.JobID),
						zap.String("resume_id", rec.ResumeID),
						zap.Int("score", rec.Score),
						zap.Strings("matched_skills", rec.Breakdown.MatchedSkills),
					)
				}
			default:
				return false, fmt.Errorf("invalid action: %s", action)
			}
		}
	}
}

func runHint(err error) string {
	var limited *source.RateLimitedError
	var persistence *store.PersistenceError

	switch {
	case errors.Is(err, source.ErrAuthRequired):
		return "check source.token-file or JOB_SEEKER_TOKEN_FILE"
	case errors.As(err, &limited):
		return "upstream keeps rate limiting, lower source.rate or raise source.retry.attempts"
	case errors.Is(err, lock.ErrLocked):
		return "another run holds the lock, wait for it to finish"
	case errors.Is(err, lock.ErrLost):
		return "the run lock expired or was taken over, check lock.redis and re-run"
	case errors.Is(err, context.DeadlineExceeded):
		return "run-timeout reached, committed work is kept and the next run continues from it"
	case errors.As(err, &persistence):
		return "the store failed, nothing of the failed step was committed"
	default:
		return "re-run to continue from the last committed checkpoint"
	}
}

func fatalStore(logger *zap.Logger, err error) {
	hint := "check the store section of the config"
	if errors.Is(err, boltstore.ErrInUse) {
		hint = "another process keeps the state file open"
	}
	logger.Fatal("opening the store", zap.Error(err), zap.String("hint", hint))
}
