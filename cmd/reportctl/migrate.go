package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"spese-report/internal/cache"
	"spese-report/internal/cli"
	"spese-report/internal/core"
	"spese-report/internal/log"
	"spese-report/internal/storage"
	"spese-report/internal/storage/postgres"
)

type migrationStatus struct {
	Backend string `json:"backend"`
	Action  string `json:"action"`
	Version uint   `json:"version,omitempty"`
	Dirty   bool   `json:"dirty,omitempty"`
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate <up|down|version>",
		Short:     "Apply, roll back or inspect the SQL schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cli.LoadAndValidateConfig(opts.configFile)
			if err != nil {
				return err
			}
			status := migrationStatus{Backend: cfg.DataBackend, Action: args[0]}

			switch cfg.DataBackend {
			case "sqlite":
				switch args[0] {
				case "up":
					err = storage.RunMigrations(cfg.SQLiteDBPath)
				case "down":
					err = storage.RollbackMigrations(cfg.SQLiteDBPath)
				case "version":
					status.Version, status.Dirty, err = storage.MigrationVersion(cfg.SQLiteDBPath)
				default:
					err = fmt.Errorf("unknown migrate action %q", args[0])
				}
			case "postgres":
				switch args[0] {
				case "up":
					err = postgres.RunMigrations(cfg.DatabaseURL)
				case "down":
					err = postgres.RollbackMigrations(cfg.DatabaseURL)
				default:
					err = fmt.Errorf("migrate %s is not supported for postgres", args[0])
				}
			default:
				err = errors.New("the memory backend has no schema to migrate")
			}
			if err != nil {
				return err
			}
			return opts.print(cmd.OutOrStdout(), status)
		},
	}
	return cmd
}

type seedResult struct {
	Users   int `json:"users"`
	Bills   int `json:"bills"`
	Entries int `json:"entries"`
	// CacheCleared is set when cached reports of the seeded users were dropped.
	CacheCleared bool `json:"cacheCleared,omitempty"`
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <dataset.json|dataset.yaml>",
		Short: "Load users, bills and entries into the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := core.LoadDataset(args[0])
			if err != nil {
				return err
			}
			a, err := opts.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.Load(cmd.Context(), ds); err != nil {
				return fmt.Errorf("load dataset: %w", err)
			}
			res := seedResult{
				Users:   len(ds.Users),
				Bills:   len(ds.Bills),
				Entries: len(ds.Entries),
			}
			if a.cfg.RedisURL != "" {
				res.CacheCleared = a.clearReportCache(cmd.Context(), seededUserIDs(ds))
			}
			return opts.print(cmd.OutOrStdout(), res)
		},
	}
}

// clearReportCache drops the shared Redis report cache of the given users.
// The seed itself already succeeded, so failures are only logged.
func (a *app) clearReportCache(ctx context.Context, userIDs []string) bool {
	rs, err := cache.NewRedisStore(ctx, a.cfg.RedisURL, a.cfg.ReportCacheTTL)
	if err != nil {
		a.logger.Warn("Redis unavailable, cached reports not cleared", log.FieldError, err)
		return false
	}
	defer rs.Close()
	if err := cache.InvalidateUsers(ctx, rs, userIDs); err != nil {
		a.logger.Warn("Clearing cached reports failed", log.FieldError, err)
		return false
	}
	a.logger.Info("Cached reports cleared", "users", len(userIDs))
	return true
}

// seededUserIDs lists every user a dataset touches, in first-seen order.
func seededUserIDs(ds core.Dataset) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, u := range ds.Users {
		add(u.ID)
	}
	for _, b := range ds.Bills {
		add(b.UserID)
	}
	for _, e := range ds.Entries {
		add(e.UserID)
	}
	return ids
}
