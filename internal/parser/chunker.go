package parser

import "strings"

// DefaultChunkSize is the advisory cap on chunk length in characters.
const DefaultChunkSize = 4000

// SplitIntoChunks splits text into chunks of roughly chunkSize characters,
// greedily accumulating whole lines. A line is never split across chunks: a
// single line longer than chunkSize gets its own chunk intact. Concatenating
// the returned chunks reproduces the input, modulo trailing-newline
// normalization.
func SplitIntoChunks(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var chunks []string
	var current strings.Builder

	for _, line := range lines {
		// +1 for the newline that joins it to the current chunk.
		addition := len(line)
		if current.Len() > 0 {
			addition++
		}

		if current.Len() > 0 && current.Len()+addition > chunkSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}

		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
