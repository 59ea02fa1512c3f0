// Package agent orchestrates the retrieval-augmented answer flow: embed the
// question, pull the nearest chunks, assemble a context block and have the
// chat model answer from it.
package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"redisrag/model"
	"redisrag/splitter"
	"redisrag/types"
)

// Retriever is the slice of the vector store the agent needs.
type Retriever interface {
	Search(ctx context.Context, vec []float32, k int) ([]types.Chunk, error)
}

// Options tune retrieval and context assembly.
type Options struct {
	// TopK is the default number of chunks requested per question.
	TopK int
	// MaxDistance drops retrieved chunks whose cosine distance exceeds it.
	MaxDistance float64
	// ContextMaxChars caps the assembled context block.
	ContextMaxChars int
	// ChunkOverlap is the word overlap neighboring chunks share; it is
	// trimmed when consecutive chunks of one document are concatenated.
	ChunkOverlap int
}

type Agent struct {
	store    Retriever
	embedder model.Embedder
	chat     model.ChatClient
	opts     Options
	logger   *zap.Logger
}

func New(store Retriever, embedder model.Embedder, chat model.ChatClient, opts Options, logger *zap.Logger) *Agent {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxDistance <= 0 {
		opts.MaxDistance = 0.55
	}
	if opts.ContextMaxChars <= 0 {
		opts.ContextMaxChars = 20000
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		store:    store,
		embedder: embedder,
		chat:     chat,
		opts:     opts,
		logger:   logger,
	}
}

// Request is one question for the agent. Vector, History and TopK are
// optional: a nil Vector is embedded here, History carries prior turns of a
// chat session, TopK zero falls back to the configured default.
type Request struct {
	Question string
	Vector   []float32
	History  []types.ChatMessage
	TopK     int
}

// Result is the generated answer with its provenance. Confidence is the
// cosine distance of the best retrieved chunk, zero when nothing relevant
// was found.
type Result struct {
	Answer     string
	Model      string
	Sources    []types.Source
	Confidence float64
}

const systemPrompt = `You are a retrieval assistant. Answer clearly and to the point, ` +
	`using only the supplied context and the conversation so far. ` +
	`Do not add introductions or information that is not in the context.`

const answerTemplate = `Answer the question using only the given context. If the context is empty or does not contain the answer, reply "I don't have information on that." and nothing else.

Context:
%s

Question:
%s

Answer:`

const emptyContext = "(no relevant passages found)"

// Answer runs the retrieve, assemble, generate chain for req.
func (a *Agent) Answer(ctx context.Context, req Request) (*Result, error) {
	vec := req.Vector
	if len(vec) == 0 {
		var err error
		vec, err = a.embedder.Embed(ctx, req.Question)
		if err != nil {
			return nil, fmt.Errorf("failed to embed question: %w", err)
		}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = a.opts.TopK
	}
	chunks, err := a.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	kept := filterChunks(chunks, a.opts.MaxDistance)
	contextBlock, used := buildContext(kept, a.opts.ContextMaxChars, a.opts.ChunkOverlap)
	messages := renderMessages(req.Question, contextBlock, req.History)

	if tokens, err := splitter.CountTokens(messagesText(messages)); err == nil {
		a.logger.Debug("prompt assembled",
			zap.Int("tokens", tokens),
			zap.Int("context_chars", len(contextBlock)),
			zap.Int("chunks_retrieved", len(chunks)),
			zap.Int("chunks_used", len(used)),
		)
	}

	answer, err := a.chat.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	res := &Result{
		Answer:  strings.TrimSpace(answer),
		Model:   a.chat.ModelName(),
		Sources: formatSources(used),
	}
	if len(kept) > 0 {
		res.Confidence = kept[0].Distance
	}
	return res, nil
}

// filterChunks keeps chunks within the distance cutoff. Search results
// arrive sorted by distance, so the survivors stay sorted too.
func filterChunks(chunks []types.Chunk, maxDistance float64) []types.Chunk {
	kept := make([]types.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if ch.Distance <= maxDistance {
			kept = append(kept, ch)
		}
	}
	return kept
}

// buildContext assembles the retrieved chunks into one context block:
// chunks are grouped per document, reordered by their position so the text
// reads coherently, stripped of the window overlap between neighbors and
// cut off at the character budget. It returns the block and the chunks that
// made it in.
func buildContext(chunks []types.Chunk, maxChars, overlap int) (string, []types.Chunk) {
	if len(chunks) == 0 {
		return "", nil
	}

	grouped := make(map[uuid.UUID][]types.Chunk)
	for _, ch := range chunks {
		grouped[ch.DocID] = append(grouped[ch.DocID], ch)
	}

	// Documents appear in order of their best-matching chunk.
	order := make([]uuid.UUID, 0, len(grouped))
	for docID := range grouped {
		order = append(order, docID)
	}
	sort.Slice(order, func(i, j int) bool {
		di, dj := bestDistance(grouped[order[i]]), bestDistance(grouped[order[j]])
		if di != dj {
			return di < dj
		}
		return order[i].String() < order[j].String()
	})

	var sb strings.Builder
	var used []types.Chunk
	for _, docID := range order {
		docChunks := grouped[docID]
		sort.SliceStable(docChunks, func(i, j int) bool {
			return docChunks[i].Index < docChunks[j].Index
		})
		docChunks = trimOverlaps(docChunks, overlap)

		wroteHeader := false
		for _, ch := range docChunks {
			var piece strings.Builder
			if !wroteHeader {
				if sb.Len() > 0 {
					piece.WriteString("\n")
				}
				piece.WriteString("Document: " + ch.Title + "\n")
			}
			if ch.Section != "" {
				piece.WriteString("## " + ch.Section + "\n")
			}
			piece.WriteString(ch.Content + "\n")

			if sb.Len() > 0 && sb.Len()+piece.Len() > maxChars {
				return sb.String(), used
			}
			sb.WriteString(piece.String())
			used = append(used, ch)
			wroteHeader = true
		}
	}
	return sb.String(), used
}

func bestDistance(chunks []types.Chunk) float64 {
	best := chunks[0].Distance
	for _, ch := range chunks[1:] {
		if ch.Distance < best {
			best = ch.Distance
		}
	}
	return best
}

// trimOverlaps removes the shared window from the second of two adjacent
// chunks so the concatenated text does not repeat itself. Chunks shorter
// than the overlap are dropped entirely, their words are already present.
func trimOverlaps(chunks []types.Chunk, overlap int) []types.Chunk {
	if overlap <= 0 || len(chunks) <= 1 {
		return chunks
	}

	result := make([]types.Chunk, 0, len(chunks))
	result = append(result, chunks[0])
	for i := 1; i < len(chunks); i++ {
		ch := chunks[i]
		prev := chunks[i-1]
		if ch.Index != prev.Index+1 {
			result = append(result, ch)
			continue
		}
		words := strings.Fields(ch.Content)
		if len(words) <= overlap {
			continue
		}
		ch.Content = strings.Join(words[overlap:], " ")
		result = append(result, ch)
	}
	return result
}

func renderMessages(question, contextBlock string, history []types.ChatMessage) []types.ChatMessage {
	if contextBlock == "" {
		contextBlock = emptyContext
	}

	msgs := make([]types.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, types.ChatMessage{Role: types.RoleSystem, Content: systemPrompt})
	msgs = append(msgs, history...)
	msgs = append(msgs, types.ChatMessage{
		Role:    types.RoleUser,
		Content: fmt.Sprintf(answerTemplate, contextBlock, question),
	})
	return msgs
}

func messagesText(msgs []types.ChatMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func formatSources(chunks []types.Chunk) []types.Source {
	sources := make([]types.Source, len(chunks))
	for i, ch := range chunks {
		sources[i] = types.Source{
			DocID:     ch.DocID.String(),
			Title:     ch.Title,
			ChunkText: ch.Content,
			Index:     ch.Index,
		}
	}
	return sources
}
