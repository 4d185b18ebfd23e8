// Package chunker splits document text into overlapping fixed-size
// segments, the unit of embedding and retrieval.
//
// Splitting is a pure windowing function: each window holds at most
// ChunkSize bytes and starts ChunkSize-Overlap bytes after the previous
// one, so consecutive chunks share Overlap bytes of context. The final
// chunk may be shorter.
package chunker

import (
	"errors"
	"fmt"
)

// Default window parameters, matching the ingestion contract.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// ErrInvalidConfig indicates the chunk size / overlap combination is
// unusable (the window would never advance).
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Config holds the windowing parameters.
// The zero value selects the defaults. An explicit ChunkSize with
// Overlap zero means no overlap; the overlap default applies only when
// ChunkSize is unset too.
type Config struct {
	ChunkSize int
	Overlap   int
}

// normalize applies defaults and validates the configuration.
func (c Config) normalize() (Config, error) {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
		if c.Overlap == 0 {
			c.Overlap = DefaultOverlap
		}
	}
	if c.ChunkSize < 0 || c.Overlap < 0 {
		return c, fmt.Errorf("%w: chunk size and overlap must be non-negative", ErrInvalidConfig)
	}
	if c.Overlap >= c.ChunkSize {
		return c, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidConfig, c.Overlap, c.ChunkSize)
	}
	return c, nil
}

// Split cuts text into ordered overlapping windows.
// An empty text yields no chunks and no error.
func Split(text string, cfg Config) ([]string, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	var chunks []string
	for start := 0; start < len(text); start += cfg.ChunkSize - cfg.Overlap {
		end := start + cfg.ChunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks, nil
}

// Count returns the number of chunks Split produces for a text of
// textLen bytes: ceil((L-O)/(C-O)) for L > O, 1 for 0 < L <= O, 0 for
// empty text.
func Count(textLen, chunkSize, overlap int) int {
	if textLen <= 0 {
		return 0
	}
	step := chunkSize - overlap
	if textLen <= overlap {
		return 1
	}
	return (textLen - overlap + step - 1) / step
}
