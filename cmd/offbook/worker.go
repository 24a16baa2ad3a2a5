package main

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"offbook/internal/pipeline"
	"offbook/internal/worker"
)

var workerCount int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run standalone workers against the queue",
	Long: `Run one or more workers without the HTTP API.

Workers poll the shared queue, claim jobs under a lease, and parse
them chunk by chunk. Multiple worker processes can run against the
same home directory; the database lease keeps each job exclusive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := newLogger()

		h, store, lib, err := openStores(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		registry, err := cfg.BuildRegistry(logger)
		if err != nil {
			return err
		}

		pl := &pipeline.Pipeline{
			Queue:    store,
			Registry: registry,
			Library:  lib,
			Logger:   logger,
		}

		count := workerCount
		if count <= 0 {
			count = cfg.Queue.Workers
		}

		group, ctx := errgroup.WithContext(ctx)
		for i := 0; i < count; i++ {
			w := worker.New(store, pl, logger)
			if cfg.Queue.PollIntervalSeconds > 0 {
				w.PollInterval = time.Duration(cfg.Queue.PollIntervalSeconds) * time.Second
			}
			group.Go(func() error {
				defer w.Stop()
				return w.Run(ctx)
			})
		}
		return group.Wait()
	},
}

func init() {
	workerCmd.Flags().IntVar(&workerCount, "count", 0, "Number of workers (default from config)")

	rootCmd.AddCommand(workerCmd)
}
