package main

import (
	"fmt"
	"time"

	"codeberg.org/touchpath/server/internal/config"
	"codeberg.org/touchpath/server/internal/database"
	"codeberg.org/touchpath/server/internal/logger"
	"codeberg.org/touchpath/server/touchpath/handoffs"
	"codeberg.org/touchpath/server/touchpath/touches"
	"codeberg.org/touchpath/server/touchpath/visitors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// state shared by every subcommand
type sweeper struct {
	db    *pgxpool.Pool
	flags config.SweepFlags
}

func newRootCmd() *cobra.Command {
	s := &sweeper{flags: config.DefaultSweepFlags()}

	root := &cobra.Command{
		Use:           "sweeper",
		Short:         "Maintenance jobs for the touchpath tracking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			databaseURL, err := config.LoadDatabaseURL()
			if err != nil {
				return err
			}

			s.db, err = database.NewPool(cmd.Context(), databaseURL)
			return err
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if s.db != nil {
				s.db.Close()
			}
		},
	}

	root.AddCommand(
		s.migrateCmd(),
		s.expireHandoffsCmd(),
		s.retryCompletionsCmd(),
		s.cleanupTouchesCmd(),
	)

	return root
}

func (s *sweeper) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return database.Migrate(cmd.Context(), s.db)
		},
	}
}

func (s *sweeper) expireHandoffsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire-handoffs",
		Short: "Mark redirected handoffs older than --hours as expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.flags.HandoffMaxAgeHours <= 0 {
				return fmt.Errorf("--hours must be positive")
			}

			tracker := handoffs.NewTracker(handoffs.NewRepository(s.db), nil, nil, config.Site{}, nil)

			expired, err := tracker.ExpireOldHandoffs(cmd.Context(), s.flags.HandoffMaxAgeHours)
			if err != nil {
				return fmt.Errorf("failed to expire handoffs: %w", err)
			}

			logger.Info("handoffs expired", "count", expired, "older_than_hours", s.flags.HandoffMaxAgeHours)
			return nil
		},
	}

	cmd.Flags().IntVar(&s.flags.HandoffMaxAgeHours, "hours", s.flags.HandoffMaxAgeHours, "expire handoffs created more than this many hours ago")

	return cmd
}

func (s *sweeper) retryCompletionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry-completions",
		Short: "Re-run matching for completions that arrived before their handoff was known",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.flags.RetryLimit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			visitorRepo := visitors.NewRepository(s.db)
			visitorService := visitors.NewService(visitorRepo, visitors.Options{})
			recorder := touches.NewRecorder(touches.NewRepository(s.db), visitorService, config.Site{}, nil)
			tracker := handoffs.NewTracker(handoffs.NewRepository(s.db), visitorService, recorder, config.Site{}, nil)
			matcher := handoffs.NewMatcher(
				tracker,
				handoffs.NewCompletionRepository(s.db),
				visitorRepo,
				recorder,
				nil,
			)

			result, err := matcher.RetryUnmatched(cmd.Context(), s.flags.RetryLimit)
			if err != nil {
				return fmt.Errorf("failed to retry completions: %w", err)
			}

			logger.Info("completion retry finished",
				"attempted", result.Attempted,
				"matched", result.Matched,
				"failed", result.Failed,
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&s.flags.RetryLimit, "limit", s.flags.RetryLimit, "maximum number of unmatched completions to retry")

	return cmd
}

func (s *sweeper) cleanupTouchesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup-touches",
		Short: "Delete touches older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if s.flags.TouchRetentionDays <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			recorder := touches.NewRecorder(touches.NewRepository(s.db), nil, config.Site{}, nil)

			deleted, err := recorder.Cleanup(cmd.Context(), time.Duration(s.flags.TouchRetentionDays)*24*time.Hour)
			if err != nil {
				return fmt.Errorf("failed to clean up touches: %w", err)
			}

			logger.Info("touches deleted", "count", deleted, "older_than_days", s.flags.TouchRetentionDays)
			return nil
		},
	}

	cmd.Flags().IntVar(&s.flags.TouchRetentionDays, "days", s.flags.TouchRetentionDays, "delete touches recorded more than this many days ago")

	return cmd
}
