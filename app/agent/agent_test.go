package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisrag/types"
)

type fakeRetriever struct {
	chunks []types.Chunk
	err    error
	gotVec []float32
	gotK   int
}

func (f *fakeRetriever) Search(_ context.Context, vec []float32, k int) ([]types.Chunk, error) {
	f.gotVec = vec
	f.gotK = k
	return f.chunks, f.err
}

type fakeEmbedder struct {
	vec   []float32
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

type fakeChat struct {
	answer string
	err    error
	got    []types.ChatMessage
}

func (f *fakeChat) Generate(_ context.Context, msgs []types.ChatMessage) (string, error) {
	f.got = msgs
	return f.answer, f.err
}

func (f *fakeChat) ModelName() string { return "fake-chat" }

func testChunk(docID uuid.UUID, title string, index int, content string, distance float64) types.Chunk {
	return types.Chunk{
		ID:       uuid.New(),
		DocID:    docID,
		Title:    title,
		Index:    index,
		Content:  content,
		Distance: distance,
	}
}

func TestAnswer(t *testing.T) {
	docID := uuid.New()
	retriever := &fakeRetriever{chunks: []types.Chunk{
		testChunk(docID, "Redis Guide", 0, "Redis keeps data in memory.", 0.12),
		testChunk(docID, "Redis Guide", 1, "It persists snapshots to disk.", 0.31),
	}}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	chat := &fakeChat{answer: "  Redis is an in-memory store.  "}

	a := New(retriever, embedder, chat, Options{TopK: 3, MaxDistance: 0.5}, nil)
	res, err := a.Answer(context.Background(), Request{Question: "What is Redis?"})
	require.NoError(t, err)

	assert.Equal(t, "Redis is an in-memory store.", res.Answer)
	assert.Equal(t, "fake-chat", res.Model)
	assert.InDelta(t, 0.12, res.Confidence, 1e-9)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "Redis Guide", res.Sources[0].Title)
	assert.Equal(t, docID.String(), res.Sources[0].DocID)

	assert.Equal(t, 1, embedder.calls)
	assert.Equal(t, 3, retriever.gotK)

	require.NotEmpty(t, chat.got)
	assert.Equal(t, types.RoleSystem, chat.got[0].Role)
	last := chat.got[len(chat.got)-1]
	assert.Equal(t, types.RoleUser, last.Role)
	assert.Contains(t, last.Content, "Redis keeps data in memory.")
	assert.Contains(t, last.Content, "What is Redis?")
}

func TestAnswerUsesProvidedVector(t *testing.T) {
	retriever := &fakeRetriever{}
	embedder := &fakeEmbedder{vec: []float32{1, 0}}
	chat := &fakeChat{answer: "ok"}

	a := New(retriever, embedder, chat, Options{}, nil)
	vec := []float32{0.5, 0.5}
	_, err := a.Answer(context.Background(), Request{Question: "q", Vector: vec})
	require.NoError(t, err)

	assert.Zero(t, embedder.calls)
	assert.Equal(t, vec, retriever.gotVec)
	assert.Equal(t, 5, retriever.gotK, "default TopK")
}

func TestAnswerRequestTopKOverride(t *testing.T) {
	retriever := &fakeRetriever{}
	a := New(retriever, &fakeEmbedder{vec: []float32{1}}, &fakeChat{answer: "ok"}, Options{TopK: 5}, nil)

	_, err := a.Answer(context.Background(), Request{Question: "q", TopK: 9})
	require.NoError(t, err)
	assert.Equal(t, 9, retriever.gotK)
}

func TestAnswerFiltersDistantChunks(t *testing.T) {
	docID := uuid.New()
	retriever := &fakeRetriever{chunks: []types.Chunk{
		testChunk(docID, "Doc", 0, "far away content", 0.9),
	}}
	chat := &fakeChat{answer: "I don't have information on that."}

	a := New(retriever, &fakeEmbedder{vec: []float32{1}}, chat, Options{MaxDistance: 0.5}, nil)
	res, err := a.Answer(context.Background(), Request{Question: "q"})
	require.NoError(t, err)

	assert.Empty(t, res.Sources)
	assert.Zero(t, res.Confidence)
	last := chat.got[len(chat.got)-1]
	assert.Contains(t, last.Content, emptyContext)
	assert.NotContains(t, last.Content, "far away content")
}

func TestAnswerIncludesHistory(t *testing.T) {
	history := []types.ChatMessage{
		{Role: types.RoleUser, Content: "earlier question"},
		{Role: types.RoleAssistant, Content: "earlier answer"},
	}
	chat := &fakeChat{answer: "ok"}

	a := New(&fakeRetriever{}, &fakeEmbedder{vec: []float32{1}}, chat, Options{}, nil)
	_, err := a.Answer(context.Background(), Request{Question: "follow-up", History: history})
	require.NoError(t, err)

	require.Len(t, chat.got, 4)
	assert.Equal(t, types.RoleSystem, chat.got[0].Role)
	assert.Equal(t, "earlier question", chat.got[1].Content)
	assert.Equal(t, "earlier answer", chat.got[2].Content)
	assert.Contains(t, chat.got[3].Content, "follow-up")
}

func TestAnswerRetrievalError(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("index gone")}
	a := New(retriever, &fakeEmbedder{vec: []float32{1}}, &fakeChat{}, Options{}, nil)

	_, err := a.Answer(context.Background(), Request{Question: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval failed")
}

func TestAnswerGenerationError(t *testing.T) {
	chat := &fakeChat{err: errors.New("model offline")}
	a := New(&fakeRetriever{}, &fakeEmbedder{vec: []float32{1}}, chat, Options{}, nil)

	_, err := a.Answer(context.Background(), Request{Question: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation failed")
}

func TestBuildContextGroupsAndOrders(t *testing.T) {
	docA := uuid.New()
	docB := uuid.New()
	chunks := []types.Chunk{
		testChunk(docB, "Doc B", 0, "best match", 0.1),
		testChunk(docA, "Doc A", 2, "second part", 0.2),
		testChunk(docA, "Doc A", 1, "first part", 0.4),
	}

	block, used := buildContext(chunks, 20000, 0)

	// Doc B holds the best match, so it leads; Doc A chunks follow in
	// document order regardless of retrieval order.
	require.Len(t, used, 3)
	assert.Equal(t, "best match", used[0].Content)
	assert.Equal(t, "first part", used[1].Content)
	assert.Equal(t, "second part", used[2].Content)

	assert.Less(t, strings.Index(block, "Doc B"), strings.Index(block, "Doc A"))
	assert.Less(t, strings.Index(block, "first part"), strings.Index(block, "second part"))
	assert.Equal(t, 1, strings.Count(block, "Document: Doc A"))
}

func TestBuildContextSectionHeading(t *testing.T) {
	docID := uuid.New()
	ch := testChunk(docID, "Doc", 0, "body text", 0.1)
	ch.Section = "Persistence"

	block, _ := buildContext([]types.Chunk{ch}, 20000, 0)
	assert.Contains(t, block, "## Persistence\n")
}

func TestBuildContextBudget(t *testing.T) {
	docID := uuid.New()
	chunks := []types.Chunk{
		testChunk(docID, "Doc", 0, strings.Repeat("a", 50), 0.1),
		testChunk(docID, "Doc", 1, strings.Repeat("b", 50), 0.2),
	}

	block, used := buildContext(chunks, 60, 0)
	require.Len(t, used, 1)
	assert.Contains(t, block, "aaa")
	assert.NotContains(t, block, "bbb")

	// The first chunk always fits, even over budget.
	block, used = buildContext(chunks[:1], 10, 0)
	require.Len(t, used, 1)
	assert.Contains(t, block, "aaa")
}

func TestBuildContextEmpty(t *testing.T) {
	block, used := buildContext(nil, 100, 0)
	assert.Empty(t, block)
	assert.Empty(t, used)
}

func TestTrimOverlaps(t *testing.T) {
	docID := uuid.New()
	chunks := []types.Chunk{
		testChunk(docID, "Doc", 0, "one two three four", 0.1),
		testChunk(docID, "Doc", 1, "three four five six", 0.2),
	}

	trimmed := trimOverlaps(chunks, 2)
	require.Len(t, trimmed, 2)
	assert.Equal(t, "one two three four", trimmed[0].Content)
	assert.Equal(t, "five six", trimmed[1].Content)
}

func TestTrimOverlapsNonConsecutive(t *testing.T) {
	docID := uuid.New()
	chunks := []types.Chunk{
		testChunk(docID, "Doc", 0, "one two three", 0.1),
		testChunk(docID, "Doc", 5, "four five six", 0.2),
	}

	trimmed := trimOverlaps(chunks, 2)
	require.Len(t, trimmed, 2)
	assert.Equal(t, "four five six", trimmed[1].Content)
}

func TestTrimOverlapsDropsContainedChunk(t *testing.T) {
	docID := uuid.New()
	chunks := []types.Chunk{
		testChunk(docID, "Doc", 0, "one two three four", 0.1),
		testChunk(docID, "Doc", 1, "three four", 0.2),
	}

	trimmed := trimOverlaps(chunks, 2)
	require.Len(t, trimmed, 1)
	assert.Equal(t, "one two three four", trimmed[0].Content)
}

func TestFilterChunks(t *testing.T) {
	docID := uuid.New()
	chunks := []types.Chunk{
		testChunk(docID, "Doc", 0, "near", 0.2),
		testChunk(docID, "Doc", 1, "edge", 0.55),
		testChunk(docID, "Doc", 2, "far", 0.56),
	}

	kept := filterChunks(chunks, 0.55)
	require.Len(t, kept, 2)
	assert.Equal(t, "near", kept[0].Content)
	assert.Equal(t, "edge", kept[1].Content)
}

func TestRenderMessagesEmptyContext(t *testing.T) {
	msgs := renderMessages("q", "", nil)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, emptyContext)
}

func TestMessagesText(t *testing.T) {
	msgs := []types.ChatMessage{
		{Role: types.RoleSystem, Content: "sys"},
		{Role: types.RoleUser, Content: "hello"},
	}
	text := messagesText(msgs)
	assert.Equal(t, fmt.Sprintf("%s: sys\n%s: hello\n", types.RoleSystem, types.RoleUser), text)
}
