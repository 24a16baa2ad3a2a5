package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"offbook/internal/config"
	"offbook/internal/home"
	"offbook/internal/library"
	"offbook/internal/queue"
	"offbook/version"
)

var (
	cfgFile string
	homeDir string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "offbook",
	Short: "Play script parser with LLM-powered structure extraction",
	Long: `Offbook turns raw play scripts (.txt, .docx, .pdf) into structured
playbooks: acts, scenes, lines, and character attributions.

Parsing runs as resumable background jobs:
  - Scripts are split into chunks and parsed one model call at a time
  - Progress is checkpointed after every chunk, so crashed or paused
    jobs resume where they left off
  - Any number of workers can share one queue; a database lease keeps
    each job exclusive`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.offbook/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "offbook home directory (default: ~/.offbook)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// openHome resolves and creates the home directory.
func openHome() (*home.Dir, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}
	return h, nil
}

// openStores opens the queue database and the playbook library on it.
func openStores(logger *slog.Logger) (*home.Dir, *queue.Store, *library.Library, error) {
	h, err := openHome()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := queue.Open(h.DBPath())
	if err != nil {
		return nil, nil, nil, err
	}
	lib, err := library.New(store.DB(), logger)
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return h, store, lib, nil
}

// loadConfig loads the config manager, preferring the --config flag and
// falling back to the home directory's config file.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat(h.ConfigPath()); err == nil {
			path = h.ConfigPath()
		}
	}
	return config.NewManager(path)
}
