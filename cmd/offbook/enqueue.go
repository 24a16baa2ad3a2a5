package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"offbook/internal/extract"
	"offbook/internal/queue"
)

var (
	enqueuePriority  int
	enqueueChunkSize int
	enqueueProvider  string
	enqueueModel     string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <script-file>",
	Short: "Enqueue a script file for parsing",
	Long: `Enqueue a play script for parsing.

Supported formats: .txt, .docx, .pdf. The extracted text is stored
with the job; the original file is not needed afterwards.

Examples:
  offbook enqueue hamlet.txt
  offbook enqueue --priority 10 opening-night.pdf
  offbook enqueue --provider openai --model gpt-4o romeo.docx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		filename := filepath.Base(args[0])

		rawText, err := extract.ExtractText(data, filename)
		if err != nil {
			return err
		}

		h, store, _, err := openStores(logger)
		if err != nil {
			return err
		}
		defer store.Close()

		cm, err := loadConfig(h)
		if err != nil {
			return err
		}
		cfg := cm.Get()

		chunkSize := enqueueChunkSize
		if chunkSize == 0 {
			chunkSize = cfg.Parser.ChunkSize
		}
		provider := enqueueProvider
		if provider == "" {
			provider = cfg.Parser.DefaultProvider
		}

		id, err := store.Enqueue(cmd.Context(), queue.EnqueueInput{
			RawText:  rawText,
			Filename: filename,
			Priority: enqueuePriority,
			Config: queue.ParseConfig{
				ChunkSize: chunkSize,
				Provider:  provider,
				Model:     enqueueModel,
			},
		})
		if err != nil {
			return err
		}

		fmt.Printf("enqueued job %s (%d characters, provider %s)\n", id, len(rawText), provider)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", 0, "Job priority (higher runs first)")
	enqueueCmd.Flags().IntVar(&enqueueChunkSize, "chunk-size", 0, "Chunk size in characters (default from config)")
	enqueueCmd.Flags().StringVar(&enqueueProvider, "provider", "", "LLM provider name (default from config)")
	enqueueCmd.Flags().StringVar(&enqueueModel, "model", "", "Model override for the provider")

	rootCmd.AddCommand(enqueueCmd)
}
