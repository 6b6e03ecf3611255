package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spigell/job-seeker/internal/domain"
	"github.com/spigell/job-seeker/internal/filtering"
	"github.com/spigell/job-seeker/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var excludeCmd = &cobra.Command{
	Use:   "exclude [job-id...]",
	Short: "Append postings to the exclude file so they are never scored again",
	Run: func(cmd *cobra.Command, args []string) {
		logger, config := bootstrap()
		ctx := context.Background()

		path := config.Filters.ExcludeFile
		if path == "" {
			logger.Fatal("exclude file is not configured", zap.String("hint", "set filters.exclude-file"))
		}

		st, err := openState(ctx, config, logger)
		if err != nil {
			fatalStore(logger, err)
		}
		defer st.Close(logger)

		ids := args
		if notified, _ := cmd.Flags().GetBool("notified"); notified {
			more, err := notifiedJobs(ctx, st.store)
			if err != nil {
				logger.Fatal("listing notified matches", zap.Error(err))
			}
			ids = append(ids, more...)
		}

		postings := make([]*domain.Posting, 0, len(ids))
		for _, id := range ids {
			p, err := st.store.GetPosting(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				logger.Warn("skipping unknown posting", zap.String("job_id", id))
				continue
			}
			if err != nil {
				logger.Fatal("getting posting", zap.String("job_id", id), zap.Error(err))
			}
			postings = append(postings, p)
		}

		excluded, err := filtering.ReadExcludeFile(path)
		if err != nil {
			logger.Fatal("reading exclude file", zap.Error(err))
		}

		added := excluded.Append(postings, time.Now().UTC())
		if err := excluded.WriteFile(path); err != nil {
			logger.Fatal("writing exclude file", zap.Error(err))
		}

		logger.Info("appended to exclude file", zap.String("filename", path), zap.Int("added", added))
	},
}

func init() {
	rootCmd.AddCommand(excludeCmd)

	excludeCmd.Flags().Bool("notified", false, "also exclude every posting that was already notified")
}

// notifiedJobs returns the ids of postings with at least one delivered match.
func notifiedJobs(ctx context.Context, st *store.Store) ([]string, error) {
	records, err := st.ListMatches(ctx)
	if err != nil {
		return nil, err
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, rec := range records {
		if !rec.Notified {
			continue
		}
		if _, ok := seen[rec.JobID]; ok {
			continue
		}
		seen[rec.JobID] = struct{}{}
		ids = append(ids, rec.JobID)
	}
	return ids, nil
}
