package types

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Chunk struct {
	ID        uuid.UUID
	DocID     uuid.UUID
	Title     string
	Index     int
	Section   string
	Content   string
	Embedding []float32
	Distance  float64
}

type Document struct {
	ID         uuid.UUID
	Title      string
	Chunks     []Chunk
	ChunkCount int
	Source     string
	SourcePath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Version    int
}

// CacheEntry is a stored answer keyed by the embedding of the prompt that
// produced it. Distance is only set on entries returned from a lookup.
type CacheEntry struct {
	Key       string
	Prompt    string
	Answer    string
	Model     string
	Embedding []float32
	Distance  float64
	Hits      int64
	CreatedAt time.Time
}

type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type CacheStats struct {
	Entries int64   `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}
