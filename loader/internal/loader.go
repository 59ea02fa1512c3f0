// Package internal implements the ingestion side of the index: watching the
// source directory, extracting text from dropped files, splitting and
// embedding it into chunks.
package internal

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"redisrag/config"
	"redisrag/model"
	"redisrag/splitter"
	"redisrag/types"
)

var ErrUnsupportedFile = errors.New("unsupported file type")

// Loader turns files from the source directory into embedded documents.
// pending tracks files waiting out the settle time, processing files already
// handed to the pipeline.
type Loader struct {
	cfg       config.LoaderConfig
	embedder  model.Embedder
	split     *splitter.Splitter
	batchSize int
	logger    *zap.Logger

	mu         sync.Mutex
	pending    map[string]time.Time
	processing map[string]bool
}

func NewLoader(cfg config.LoaderConfig, embedder model.Embedder, batchSize int, logger *zap.Logger) (*Loader, error) {
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		cfg:       cfg,
		embedder:  embedder,
		split:     splitter.New(splitter.WithChunkSize(cfg.ChunkSize), splitter.WithOverlap(cfg.ChunkOverlap)),
		batchSize: batchSize,
		logger:    logger,

		pending:    make(map[string]time.Time),
		processing: make(map[string]bool),
	}, nil
}

// Process consumes settled files, loads each into a document and forwards it
// to docChan. Files that fail to load move to the bad directory.
func (l *Loader) Process(ctx context.Context, fileChan <-chan string, docChan chan<- *types.Document) {
	for {
		select {
		case <-ctx.Done():
			return
		case path, ok := <-fileChan:
			if !ok {
				return
			}

			l.logger.Info("processing file", zap.String("path", path))
			doc, err := l.Load(ctx, path)
			if err != nil {
				l.logger.Error("failed to load file", zap.String("path", path), zap.Error(err))
				if _, moveErr := l.MoveToBad(path); moveErr != nil {
					l.logger.Error("failed to move file away", zap.Error(moveErr))
				}
				l.Release(path)
				continue
			}

			select {
			case docChan <- doc:
			case <-ctx.Done():
				l.Release(path)
				return
			}
		}
	}
}

// Load extracts, splits and embeds one file into a document. The document ID
// derives from the source path, so loading the same file again produces the
// same ID.
func (l *Loader) Load(ctx context.Context, path string) (*types.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	text, source, err := l.extractText(path)
	if err != nil {
		return nil, err
	}

	docID := DocumentID(path)
	title := TitleFromPath(path)
	chunks, err := l.buildChunks(ctx, docID, title, text, source)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text extracted from %s", filepath.Base(path))
	}

	return &types.Document{
		ID:         docID,
		Title:      title,
		Chunks:     chunks,
		ChunkCount: len(chunks),
		Source:     source,
		SourcePath: path,
		CreatedAt:  info.ModTime(),
		UpdatedAt:  info.ModTime(),
		Version:    1,
	}, nil
}

func (l *Loader) extractText(path string) (string, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err := l.extractPDF(path)
		return text, "pdf", err
	case ".md":
		raw, err := os.ReadFile(path)
		return string(raw), "markdown", err
	case ".txt":
		raw, err := os.ReadFile(path)
		return string(raw), "text", err
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(path))
	}
}

// extractPDF validates the file and pulls its plain text. With crop bands
// configured the header and footer are cut on a temporary copy first; the
// original stays untouched for archiving.
func (l *Loader) extractPDF(path string) (string, error) {
	if err := ValidatePDF(path); err != nil {
		return "", err
	}

	src := path
	if l.cfg.PDFCropTop > 0 || l.cfg.PDFCropBottom > 0 {
		tmp, err := os.CreateTemp("", "cropped-*.pdf")
		if err != nil {
			return "", err
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := CropHeaderFooter(path, tmp.Name(), l.cfg.PDFCropTop, l.cfg.PDFCropBottom); err != nil {
			return "", err
		}
		src = tmp.Name()
	}
	return ExtractPDFText(src)
}

func (l *Loader) buildChunks(ctx context.Context, docID uuid.UUID, title, text, source string) ([]types.Chunk, error) {
	var pieces []splitter.Piece
	if source == "markdown" {
		pieces = l.split.SplitMarkdown(text)
	} else {
		pieces = l.split.Split(text)
	}
	if len(pieces) == 0 {
		return nil, nil
	}

	contents := make([]string, len(pieces))
	for i, p := range pieces {
		contents[i] = p.Content
	}

	chunks := make([]types.Chunk, 0, len(pieces))
	for start := 0; start < len(contents); start += l.batchSize {
		end := start + l.batchSize
		if end > len(contents) {
			end = len(contents)
		}

		vecs, err := l.embedder.EmbedBatch(ctx, contents[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		for i, vec := range vecs {
			idx := start + i
			chunks = append(chunks, types.Chunk{
				ID:        uuid.New(),
				DocID:     docID,
				Title:     title,
				Index:     idx,
				Section:   pieces[idx].Section,
				Content:   pieces[idx].Content,
				Embedding: vec,
			})
		}
	}
	return chunks, nil
}

// MoveToArchive moves a processed file into a dated archive subdirectory and
// returns the destination path.
func (l *Loader) MoveToArchive(path string) (string, error) {
	return l.moveTo(l.cfg.ArchiveDir, path)
}

// MoveToBad moves a rejected file into a dated bad subdirectory and returns
// the destination path.
func (l *Loader) MoveToBad(path string) (string, error) {
	return l.moveTo(l.cfg.BadDir, path)
}

func (l *Loader) moveTo(baseDir, path string) (string, error) {
	destDir := filepath.Join(baseDir, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	destPath := filepath.Join(destDir, filepath.Base(path))
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		ext := filepath.Ext(path)
		base := strings.TrimSuffix(filepath.Base(path), ext)
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}

	if err := moveFile(path, destPath); err != nil {
		return "", err
	}
	l.logger.Info("file moved", zap.String("from", path), zap.String("to", destPath))
	return destPath, nil
}

// moveFile copies then removes, so moves work across filesystems.
func moveFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	in.Close()
	return os.Remove(src)
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// TitleFromPath derives a readable title from the file name.
func TitleFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// DocumentID derives a stable ID from the source path, so reingesting the
// same file updates the existing document instead of duplicating it.
func DocumentID(path string) uuid.UUID {
	return uuid.UUID(md5.Sum([]byte(path)))
}
