package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"redisrag/types"
)

// HistoryStorer is the per-session conversation log.
type HistoryStorer interface {
	Append(ctx context.Context, session string, msgs ...types.ChatMessage) error
	Messages(ctx context.Context, session string) ([]types.ChatMessage, error)
	Clear(ctx context.Context, session string) error
	Sessions(ctx context.Context) ([]string, error)
}

// ChatHistory keeps each session as a Redis list of JSON-encoded messages at
// {prefix}:{session}. Appends trim the list to the last window turns (a turn
// is a user message plus the assistant reply) and refresh the session TTL,
// so idle sessions expire on their own.
type ChatHistory struct {
	client *redis.Client
	prefix string
	window int
	ttl    time.Duration
}

func NewChatHistory(client *redis.Client, prefix string, window int, ttl time.Duration) *ChatHistory {
	return &ChatHistory{
		client: client,
		prefix: prefix,
		window: window,
		ttl:    ttl,
	}
}

func (h *ChatHistory) Append(ctx context.Context, session string, msgs ...types.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now()
		}
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}

	key := h.sessionKey(session)
	pipe := h.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	if h.window > 0 {
		pipe.LTrim(ctx, key, int64(-2*h.window), -1)
	}
	if h.ttl > 0 {
		pipe.Expire(ctx, key, h.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append to session %s: %w", session, err)
	}
	return nil
}

// Messages returns the session transcript oldest first. A session that does
// not exist yields an empty slice, not an error.
func (h *ChatHistory) Messages(ctx context.Context, session string) ([]types.ChatMessage, error) {
	raw, err := h.client.LRange(ctx, h.sessionKey(session), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", session, err)
	}

	msgs := make([]types.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m types.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("corrupt message in session %s: %w", session, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Clear drops the session. Clearing a session that does not exist returns
// ErrNotFound.
func (h *ChatHistory) Clear(ctx context.Context, session string) error {
	n, err := h.client.Del(ctx, h.sessionKey(session)).Result()
	if err != nil {
		return fmt.Errorf("failed to clear session %s: %w", session, err)
	}
	if n == 0 {
		return fmt.Errorf("session %s: %w", session, ErrNotFound)
	}
	return nil
}

// Sessions lists the ids of sessions that still hold messages.
func (h *ChatHistory) Sessions(ctx context.Context) ([]string, error) {
	var sessions []string
	var cursor uint64
	for {
		keys, next, err := h.client.Scan(ctx, cursor, h.prefix+":*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan sessions: %w", err)
		}
		for _, key := range keys {
			sessions = append(sessions, strings.TrimPrefix(key, h.prefix+":"))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (h *ChatHistory) sessionKey(session string) string {
	return h.prefix + ":" + session
}
