package api

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"redisrag/store"
	"redisrag/types"
)

// DocumentStore is the slice of the vector store the document endpoints use.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]types.Document, error)
	GetDocumentByID(ctx context.Context, id uuid.UUID) (*types.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	DeleteChunksByDocID(ctx context.Context, id uuid.UUID) error
}

type DocumentHandler struct {
	store     DocumentStore
	uploadDir string
	logger    *zap.Logger
}

func NewDocumentHandler(store DocumentStore, uploadDir string, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{
		store:     store,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// HandleUpload drops an uploaded file into the loader's source directory.
// The loader daemon picks it up from there, so the response is 202, not a
// completed ingestion.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}

	name := filepath.Base(file.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".pdf", ".md", ".txt":
	default:
		return ErrUnsupportedFile(ext)
	}

	path := filepath.Join(h.uploadDir, name)
	if err := c.SaveFile(file, path); err != nil {
		return err
	}
	h.logger.Info("file queued for ingestion",
		zap.String("file", name),
		zap.String("path", path),
	)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "accepted",
		"file":   name,
	})
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.store.ListDocuments(c.Context())
	if err != nil {
		return err
	}

	infos := make([]types.DocumentInfo, len(docs))
	for i, doc := range docs {
		infos[i] = documentInfo(doc)
	}
	return c.JSON(fiber.Map{
		"documents": infos,
		"total":     len(infos),
	})
}

func (h *DocumentHandler) HandleGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	doc, err := h.store.GetDocumentByID(c.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "document")
	}
	if err != nil {
		return err
	}
	return c.JSON(documentInfo(*doc))
}

// HandleDelete removes a document and all of its chunks from the index.
func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	ctx := c.Context()
	if err := h.store.DeleteChunksByDocID(ctx, id); err != nil {
		return err
	}
	err = h.store.DeleteDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound(id, "document")
	}
	if err != nil {
		return err
	}

	h.logger.Info("document deleted", zap.String("doc_id", id.String()))
	return c.JSON(fiber.Map{"deleted": id.String()})
}

func documentInfo(doc types.Document) types.DocumentInfo {
	return types.DocumentInfo{
		ID:         doc.ID.String(),
		Title:      doc.Title,
		Source:     doc.Source,
		SourcePath: doc.SourcePath,
		Chunks:     doc.ChunkCount,
		Version:    doc.Version,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}
}
