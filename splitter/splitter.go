// Package splitter cuts extracted document text into overlapping pieces
// sized for embedding.
package splitter

import (
	"strings"
)

const (
	// DefaultChunkSize is the default number of words per piece.
	DefaultChunkSize = 250
	// DefaultChunkOverlap is the default number of words shared between
	// neighboring pieces.
	DefaultChunkOverlap = 50
)

// Piece is one splitter output. Section carries the nearest markdown
// heading when the input was markdown, otherwise it is empty.
type Piece struct {
	Section string
	Content string
}

type Splitter struct {
	chunkSize int
	overlap   int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithChunkSize sets the piece size in words.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between pieces in words.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Overlap must stay below the chunk size or the window never advances.
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	return s
}

// Split cuts text into word windows of chunkSize words, each sharing
// overlap words with its predecessor.
func (s *Splitter) Split(text string) []Piece {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	estimated := len(words)/(s.chunkSize-s.overlap) + 1
	pieces := make([]Piece, 0, estimated)

	for i := 0; i < len(words); i += s.chunkSize - s.overlap {
		end := i + s.chunkSize
		if end > len(words) {
			end = len(words)
		}

		content := strings.Join(words[i:end], " ")
		if strings.TrimSpace(content) == "" {
			continue
		}
		pieces = append(pieces, Piece{Content: content})

		if end == len(words) {
			break
		}
	}
	return pieces
}
