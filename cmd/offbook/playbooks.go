package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var playbooksOutFile string

var playbooksCmd = &cobra.Command{
	Use:   "playbooks",
	Short: "Browse and export parsed playbooks",
}

var playbooksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List playbooks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		_, store, lib, err := openStores(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		summaries, err := lib.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tACTS\tLINES\tCREATED")
		for _, s := range summaries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				s.ID, s.Title, s.Author, s.Acts, s.Lines,
				s.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var playbooksGetCmd = &cobra.Command{
	Use:   "get <playbook-id>",
	Short: "Print a playbook as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		_, store, lib, err := openStores(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		p, err := lib.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		if playbooksOutFile != "" {
			return os.WriteFile(playbooksOutFile, data, 0o644)
		}
		fmt.Println(string(data))
		return nil
	},
}

var playbooksDeleteCmd = &cobra.Command{
	Use:   "delete <playbook-id>",
	Short: "Delete a playbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		_, store, lib, err := openStores(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := lib.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted playbook %s\n", args[0])
		return nil
	},
}

func init() {
	playbooksGetCmd.Flags().StringVarP(&playbooksOutFile, "out", "o", "", "Write JSON to file instead of stdout")

	playbooksCmd.AddCommand(playbooksListCmd)
	playbooksCmd.AddCommand(playbooksGetCmd)
	playbooksCmd.AddCommand(playbooksDeleteCmd)

	rootCmd.AddCommand(playbooksCmd)
}
