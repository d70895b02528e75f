package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	jobstate "github.com/vflow/jobstate"
)

// openedStore bundles the handles a subcommand needs and the teardown it
// must run before exiting.
type openedStore struct {
	store *jobstate.Store
	core  *jobstate.JobStateCore
	close func() error
}

func openStoreFromFlags(configFile, dir string) (*openedStore, error) {
	var cfg *jobstate.Config
	var err error
	switch {
	case configFile != "":
		cfg, err = jobstate.LoadConfigFile(configFile)
	case dir != "":
		cfg = &jobstate.Config{Dir: dir, Tuning: jobstate.DefaultEngineTuning()}
	default:
		cfg, err = jobstate.LoadConfigEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	engine, err := jobstate.OpenBadgerEngine(cfg.Dir, cfg.Tuning, logger)
	if err != nil {
		return nil, fmt.Errorf("open engine at %q: %w", cfg.Dir, err)
	}

	store, err := jobstate.Open(engine)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier := jobstate.NewNotifier(logger)
	core := jobstate.NewJobStateCore(store, notifier, nil, logger)

	return &openedStore{store: store, core: core, close: store.Close}, nil
}

func buildOpenCommand(configFile, dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open the store, confirm every column family registers cleanly, and close it",
		RunE: func(cmd *cobra.Command, args []string) error {
			opened, err := openStoreFromFlags(*configFile, *dir)
			if err != nil {
				return err
			}
			if err := opened.close(); err != nil {
				return fmt.Errorf("close store: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store opened and closed successfully")
			return nil
		},
	}
	return cmd
}

func buildInspectCommand(configFile, dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <jobKey>",
		Short: "Print a job's record and lifecycle state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseJobKey(args[0])
			if err != nil {
				return err
			}

			opened, err := openStoreFromFlags(*configFile, *dir)
			if err != nil {
				return err
			}
			defer opened.close()

			reader := jobstate.NewSnapshotReader(opened.store, opened.core)
			ctx := context.Background()

			rec, err := reader.GetJob(ctx, key)
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			state, err := reader.GetState(ctx, key)
			if err != nil {
				return fmt.Errorf("get state: %w", err)
			}

			out := struct {
				Key    uint64            `json:"key"`
				State  jobstate.JobState `json:"state"`
				Record *jobstate.JobRecord `json:"record,omitempty"`
			}{Key: key, State: state, Record: rec}

			return printJSON(cmd, out)
		},
	}
	return cmd
}

func buildActivatableCommand(configFile, dir *string) *cobra.Command {
	var jobType string
	var limit int

	cmd := &cobra.Command{
		Use:   "activatable",
		Short: "List activatable job keys for a job type",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jobType == "" {
				return fmt.Errorf("--type is required")
			}

			opened, err := openStoreFromFlags(*configFile, *dir)
			if err != nil {
				return err
			}
			defer opened.close()

			reader := jobstate.NewSnapshotReader(opened.store, opened.core)
			keys, err := reader.ListActivatable(context.Background(), []byte(jobType), limit)
			if err != nil {
				return fmt.Errorf("list activatable: %w", err)
			}
			return printJSON(cmd, keys)
		},
	}
	cmd.Flags().StringVar(&jobType, "type", "", "job type to list (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max keys to return (0 = unlimited)")
	return cmd
}

func buildTimedOutCommand(configFile, dir *string) *cobra.Command {
	var limit int
	var asOf int64

	cmd := &cobra.Command{
		Use:   "timedout",
		Short: "List job keys whose activation deadline has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			opened, err := openStoreFromFlags(*configFile, *dir)
			if err != nil {
				return err
			}
			defer opened.close()

			upperBound := uint64(asOf)
			if upperBound == 0 {
				upperBound = uint64(time.Now().UnixMilli())
			}

			reader := jobstate.NewSnapshotReader(opened.store, opened.core)
			keys, err := reader.ListTimedOut(context.Background(), upperBound, limit)
			if err != nil {
				return fmt.Errorf("list timed out: %w", err)
			}
			return printJSON(cmd, keys)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max keys to return (0 = unlimited)")
	cmd.Flags().Int64Var(&asOf, "as-of", 0, "epoch millis to evaluate deadlines against (default: now)")
	return cmd
}

func buildBackoffCommand(configFile, dir *string) *cobra.Command {
	var limit int
	var asOf int64

	cmd := &cobra.Command{
		Use:   "backoff",
		Short: "List backed-off job keys due at or before a time, and the next due time",
		RunE: func(cmd *cobra.Command, args []string) error {
			opened, err := openStoreFromFlags(*configFile, *dir)
			if err != nil {
				return err
			}
			defer opened.close()

			now := uint64(asOf)
			if now == 0 {
				now = uint64(time.Now().UnixMilli())
			}

			reader := jobstate.NewSnapshotReader(opened.store, opened.core)
			keys, nextDue, err := reader.ListBackedOff(context.Background(), now, limit)
			if err != nil {
				return fmt.Errorf("list backed off: %w", err)
			}

			out := struct {
				Keys    []uint64 `json:"keys"`
				NextDue int64    `json:"nextDue"`
			}{Keys: keys, NextDue: nextDue}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max keys to return (0 = unlimited)")
	cmd.Flags().Int64Var(&asOf, "as-of", 0, "epoch millis to evaluate due times against (default: now)")
	return cmd
}

func buildStatsCommand(configFile, dir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print a rough summary of index sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			opened, err := openStoreFromFlags(*configFile, *dir)
			if err != nil {
				return err
			}
			defer opened.close()

			ctx := context.Background()
			reader := jobstate.NewSnapshotReader(opened.store, opened.core)
			now := uint64(time.Now().UnixMilli())

			timedOut, err := reader.ListTimedOut(ctx, now, 0)
			if err != nil {
				return fmt.Errorf("count timed out: %w", err)
			}
			backedOff, _, err := reader.ListBackedOff(ctx, now, 0)
			if err != nil {
				return fmt.Errorf("count backed off: %w", err)
			}

			out := struct {
				TimedOutAsOfNow  int `json:"timedOutAsOfNow"`
				BackedOffAsOfNow int `json:"backedOffAsOfNow"`
			}{TimedOutAsOfNow: len(timedOut), BackedOffAsOfNow: len(backedOff)}
			return printJSON(cmd, out)
		},
	}
	return cmd
}

func parseJobKey(s string) (uint64, error) {
	var key uint64
	if _, err := fmt.Sscanf(s, "%d", &key); err != nil {
		return 0, fmt.Errorf("invalid job key %q: %w", s, err)
	}
	return key, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
