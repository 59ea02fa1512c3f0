package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redisrag/config"
)

type fakeEmbedder struct {
	dim     int
	batches [][]string
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return make([]float32, f.dim), nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dim }

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

func testLoader(t *testing.T, embedder *fakeEmbedder) *Loader {
	t.Helper()
	base := t.TempDir()
	cfg := config.LoaderConfig{
		SourceDir:    filepath.Join(base, "in"),
		ArchiveDir:   filepath.Join(base, "archive"),
		BadDir:       filepath.Join(base, "bad"),
		SettleTime:   2 * time.Second,
		ChunkSize:    10,
		ChunkOverlap: 2,
	}
	l, err := NewLoader(cfg, embedder, 4, nil)
	require.NoError(t, err)
	return l
}

func writeSourceFile(t *testing.T, l *Loader, name, content string) string {
	t.Helper()
	path := filepath.Join(l.cfg.SourceDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewLoaderCreatesDirectories(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	assert.DirExists(t, l.cfg.SourceDir)
	assert.DirExists(t, l.cfg.ArchiveDir)
	assert.DirExists(t, l.cfg.BadDir)
}

func TestTitleFromPath(t *testing.T) {
	assert.Equal(t, "redis guide", TitleFromPath("/data/in/redis_guide.pdf"))
	assert.Equal(t, "getting started", TitleFromPath("getting-started.md"))
	assert.Equal(t, "notes", TitleFromPath("notes.txt"))
}

func TestDocumentID(t *testing.T) {
	a := DocumentID("/data/in/redis_guide.pdf")
	b := DocumentID("/data/in/redis_guide.pdf")
	c := DocumentID("/data/in/other.pdf")

	assert.Equal(t, a, b, "same path, same id")
	assert.NotEqual(t, a, c)
}

func TestLoadText(t *testing.T) {
	embedder := &fakeEmbedder{dim: 4}
	l := testLoader(t, embedder)
	path := writeSourceFile(t, l, "redis_notes.txt",
		"one two three four five six seven eight nine ten eleven twelve thirteen fourteen")

	doc, err := l.Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, DocumentID(path), doc.ID)
	assert.Equal(t, "redis notes", doc.Title)
	assert.Equal(t, "text", doc.Source)
	assert.Equal(t, path, doc.SourcePath)
	assert.Equal(t, 1, doc.Version)
	require.NotEmpty(t, doc.Chunks)
	assert.Equal(t, len(doc.Chunks), doc.ChunkCount)

	// 14 words, window 10, overlap 2 -> two chunks.
	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, 0, doc.Chunks[0].Index)
	assert.Equal(t, 1, doc.Chunks[1].Index)
	assert.Equal(t, "redis notes", doc.Chunks[0].Title)
	assert.Len(t, doc.Chunks[0].Embedding, 4)
}

func TestLoadMarkdownSections(t *testing.T) {
	embedder := &fakeEmbedder{dim: 4}
	l := testLoader(t, embedder)
	path := writeSourceFile(t, l, "guide.md",
		"# Guide\n\nintro text here\n\n## Persistence\n\nsnapshots and aof\n")

	doc, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "markdown", doc.Source)

	sections := make(map[string]bool)
	for _, ch := range doc.Chunks {
		sections[ch.Section] = true
	}
	assert.True(t, sections["Persistence"], "markdown headings carried into chunks")
}

func TestLoadUnsupportedFile(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	path := writeSourceFile(t, l, "image.png", "not text")

	_, err := l.Load(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestLoadMissingFile(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	_, err := l.Load(context.Background(), filepath.Join(l.cfg.SourceDir, "gone.txt"))
	assert.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	path := writeSourceFile(t, l, "empty.txt", "   \n  ")

	_, err := l.Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text extracted")
}

func TestLoadEmbedderFailure(t *testing.T) {
	embedder := &fakeEmbedder{dim: 4, err: errors.New("model offline")}
	l := testLoader(t, embedder)
	path := writeSourceFile(t, l, "notes.txt", "some words to embed")

	_, err := l.Load(context.Background(), path)
	assert.Error(t, err)
}

func TestBuildChunksBatching(t *testing.T) {
	embedder := &fakeEmbedder{dim: 4}
	l := testLoader(t, embedder)

	// 54 words with a 10-word window and 2-word overlap give 7 pieces,
	// so batch size 4 splits the embed calls.
	words := make([]string, 0, 54)
	for i := 0; i < 54; i++ {
		words = append(words, "word")
	}
	path := writeSourceFile(t, l, "long.txt", joinWords(words))

	doc, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	require.NotEmpty(t, doc.Chunks)

	for _, batch := range embedder.batches {
		assert.LessOrEqual(t, len(batch), 4)
	}
	total := 0
	for _, batch := range embedder.batches {
		total += len(batch)
	}
	assert.Equal(t, len(doc.Chunks), total)
}

func joinWords(words []string) string {
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}

func TestMoveToArchive(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	path := writeSourceFile(t, l, "done.txt", "content")

	dest, err := l.MoveToArchive(path)
	require.NoError(t, err)

	assert.NoFileExists(t, path)
	assert.FileExists(t, dest)
	assert.Contains(t, dest, time.Now().Format("2006-01-02"))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestMoveToArchiveNameCollision(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})

	first := writeSourceFile(t, l, "report.txt", "v1")
	dest1, err := l.MoveToArchive(first)
	require.NoError(t, err)

	second := writeSourceFile(t, l, "report.txt", "v2")
	dest2, err := l.MoveToArchive(second)
	require.NoError(t, err)

	assert.NotEqual(t, dest1, dest2)
	assert.Contains(t, filepath.Base(dest2), "report_1")

	data, err := os.ReadFile(dest2)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestMoveToBad(t *testing.T) {
	l := testLoader(t, &fakeEmbedder{dim: 4})
	path := writeSourceFile(t, l, "broken.pdf", "not a pdf")

	dest, err := l.MoveToBad(path)
	require.NoError(t, err)
	assert.NoFileExists(t, path)
	assert.Contains(t, dest, l.cfg.BadDir)
}
