package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"animate3d/internal/mockservice"
)

const mockLockName = "mock.lock"

func newMockCommand(ctx *commandContext) *cobra.Command {
	mockCmd := &cobra.Command{
		Use:   "mock",
		Short: "Local stand-in for the processing service",
	}
	mockCmd.AddCommand(newMockServeCommand(ctx))
	return mockCmd
}

func newMockServeCommand(ctx *commandContext) *cobra.Command {
	var bind string
	var dataDir string
	var steps int
	var credits float64

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the mock processing API until interrupted",
		Long: `Serve a local implementation of the processing API backed by SQLite.
Jobs advance one step per status query and media named like "fail" fails,
which makes the full job lifecycle reproducible without an account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.API.ClientID) == "" || strings.TrimSpace(cfg.API.ClientSecret) == "" {
				return fmt.Errorf("mock serve needs api.client_id and api.client_secret to issue tokens")
			}
			flags := cmd.Flags()
			if !flags.Changed("bind") {
				bind = cfg.Mock.Bind
			}
			if !flags.Changed("data-dir") {
				dataDir = cfg.Mock.DataDir
			}
			if !flags.Changed("steps") {
				steps = cfg.Mock.StepsPerJob
			}

			if err := os.MkdirAll(dataDir, 0o755); err != nil {
				return fmt.Errorf("create mock data directory: %w", err)
			}
			lock := flock.New(filepath.Join(dataDir, mockLockName))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("lock mock data directory: %w", err)
			}
			if !locked {
				return fmt.Errorf("another mock service is using %s", dataDir)
			}
			defer func() { _ = lock.Unlock() }()

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			store, err := mockservice.Open(cmd.Context(), filepath.Join(dataDir, mockservice.DatabaseName))
			if err != nil {
				return err
			}
			defer store.Close()

			srv, err := mockservice.New(cmd.Context(), store, mockservice.Options{
				ClientID:     cfg.API.ClientID,
				ClientSecret: cfg.API.ClientSecret,
				StepsPerJob:  steps,
				Credits:      credits,
				Logger:       logger,
			})
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context(), bind, func(addr string) {
				fmt.Fprintf(cmd.OutOrStdout(), "Mock service listening on http://%s (data in %s)\n", addr, store.Path())
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (default mock.bind)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for the mock database (default mock.data_dir)")
	cmd.Flags().IntVar(&steps, "steps", 0, "Progress steps per job (default mock.steps_per_job)")
	cmd.Flags().Float64Var(&credits, "credits", 0, "Starting credit balance for a new database")
	return cmd
}
