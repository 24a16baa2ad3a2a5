package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"offbook/internal/queue"
)

var jobsStatusFilter []string

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and control parse jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		_, store, _, err := openStores(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		var statuses []queue.Status
		for _, value := range jobsStatusFilter {
			status, ok := queue.ParseStatus(value)
			if !ok {
				return fmt.Errorf("unknown status: %s", value)
			}
			statuses = append(statuses, status)
		}

		jobs, err := store.List(cmd.Context(), statuses...)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPROGRESS\tCHUNKS\tFILE\tCREATED")
		for _, job := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%d%%\t%d/%d\t%s\t%s\n",
				job.ID, job.Status, job.Progress,
				job.CompletedChunks, job.TotalChunks,
				job.Filename, job.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var jobsGetCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Show one job in detail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		_, store, _, err := openStores(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		job, err := store.GetByID(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("id:        %s\n", job.ID)
		fmt.Printf("status:    %s\n", job.Status)
		fmt.Printf("file:      %s\n", job.Filename)
		fmt.Printf("progress:  %d%% (%d/%d chunks)\n", job.Progress, job.CompletedChunks, job.TotalChunks)
		fmt.Printf("retries:   %d/%d\n", job.RetryCount, job.MaxRetries)
		fmt.Printf("provider:  %s\n", job.Config.Provider)
		if job.Config.Model != "" {
			fmt.Printf("model:     %s\n", job.Config.Model)
		}
		if job.WorkerID != "" {
			fmt.Printf("worker:    %s (lease until %s)\n", job.WorkerID, job.LockExpiry.Local().Format("15:04:05"))
		}
		if job.LastError != "" {
			fmt.Printf("last err:  %s\n", job.LastError)
		}
		if job.FailureReason != "" {
			fmt.Printf("failure:   %s\n", job.FailureReason)
		}
		if job.PlaybookID != "" {
			fmt.Printf("playbook:  %s\n", job.PlaybookID)
		}
		return nil
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		_, store, _, err := openStores(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		stats, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		for _, status := range queue.AllStatuses() {
			if count := stats[status]; count > 0 {
				fmt.Printf("%-10s %d\n", status, count)
			}
		}
		return nil
	},
}

func statusChangeCommand(use, short string, change func(store *queue.Store) func(ctx context.Context, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			_, store, _, err := openStores(logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := change(store)(cmd.Context(), args[0]); err != nil {
				return err
			}
			job, err := store.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("job %s is now %s\n", job.ID, job.Status)
			return nil
		},
	}
}

func init() {
	jobsListCmd.Flags().StringSliceVar(&jobsStatusFilter, "status", nil, "Filter by status (repeatable)")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsStatsCmd)
	jobsCmd.AddCommand(statusChangeCommand("cancel <job-id>", "Cancel a job", func(s *queue.Store) func(context.Context, string) error { return s.Cancel }))
	jobsCmd.AddCommand(statusChangeCommand("pause <job-id>", "Pause a running job", func(s *queue.Store) func(context.Context, string) error { return s.Pause }))
	jobsCmd.AddCommand(statusChangeCommand("resume <job-id>", "Resume a paused job", func(s *queue.Store) func(context.Context, string) error { return s.Resume }))

	rootCmd.AddCommand(jobsCmd)
}
