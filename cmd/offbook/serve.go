package main

import (
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"offbook/internal/pipeline"
	"offbook/internal/server"
	"offbook/internal/worker"
)

var (
	serveListen  string
	serveWorkers int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the offbook server",
	Long: `Start the offbook HTTP API server with embedded workers.

The server exposes job and playbook endpoints under /api/v1 and runs
the configured number of workers against the local queue. Additional
workers can be attached from other processes with "offbook worker".

Examples:
  offbook serve                      # API plus workers from config
  offbook serve --workers 4          # Override worker count
  offbook serve --listen 0.0.0.0:80  # Bind to all interfaces`,
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
		cm.WatchConfig()

		registry, err := cfg.BuildRegistry(logger)
		if err != nil {
			return err
		}

		listen := serveListen
		if listen == "" {
			listen = cfg.Server.Listen
		}
		workerCount := serveWorkers
		if workerCount <= 0 {
			workerCount = cfg.Queue.Workers
		}

		srv := server.New(server.Config{
			Listen:           listen,
			Store:            store,
			Library:          lib,
			DefaultChunkSize: cfg.Parser.ChunkSize,
			DefaultProvider:  cfg.Parser.DefaultProvider,
			Logger:           logger,
		})

		pl := &pipeline.Pipeline{
			Queue:    store,
			Registry: registry,
			Library:  lib,
			Logger:   logger,
		}

		group, ctx := errgroup.WithContext(ctx)
		group.Go(func() error { return srv.Start(ctx) })

		for i := 0; i < workerCount; i++ {
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
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to bind to (default from config)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Embedded worker count (default from config)")

	rootCmd.AddCommand(serveCmd)
}
