package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"redisrag/types"
)

// VectorStorer is the document index the API service and the loader share.
type VectorStorer interface {
	Init(context.Context) error
	Drop(context.Context) error
	SaveDocument(context.Context, types.Document) error
	GetDocumentByID(context.Context, uuid.UUID) (*types.Document, error)
	ListDocuments(context.Context) ([]types.Document, error)
	DeleteDocument(context.Context, uuid.UUID) error
	SaveChunks(context.Context, []types.Chunk) error
	GetChunksByDocID(context.Context, uuid.UUID) ([]types.Chunk, error)
	DeleteChunksByDocID(context.Context, uuid.UUID) error
	Search(context.Context, []float32, int) ([]types.Chunk, error)
	Len(context.Context) (int64, error)
}

// RedisVectorStore keeps documents as hashes and chunks as hashes covered
// by a RediSearch HNSW index over the embedding field.
//
// Keys:
//
//	{prefix}:doc:{id}        document metadata hash
//	{prefix}:docs            set of known document ids
//	{prefix}:chunk:{id}      chunk hash, indexed by {index}
//	{prefix}:docchunks:{id}  set of chunk keys belonging to a document
type RedisVectorStore struct {
	client *redis.Client
	index  string
	prefix string
	dim    int
}

func NewRedisVectorStore(client *redis.Client, index, prefix string, dim int) *RedisVectorStore {
	return &RedisVectorStore{
		client: client,
		index:  index,
		prefix: prefix,
		dim:    dim,
	}
}

// Init creates the chunk index. An index that already exists is left as is.
func (s *RedisVectorStore) Init(ctx context.Context) error {
	err := s.client.FTCreate(ctx, s.index,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{s.chunkKey("")},
		},
		&redis.FieldSchema{FieldName: "doc_id", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "title", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "section", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "content", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "index", FieldType: redis.SearchFieldTypeNumeric, Sortable: true},
		&redis.FieldSchema{
			FieldName: "embedding",
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				HNSWOptions: &redis.FTHNSWOptions{
					Type:           "FLOAT32",
					Dim:            s.dim,
					DistanceMetric: "COSINE",
				},
			},
		},
	).Err()
	if indexExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", s.index, err)
	}
	return nil
}

// Drop removes the index together with every indexed chunk hash.
func (s *RedisVectorStore) Drop(ctx context.Context) error {
	err := s.client.FTDropIndexWithArgs(ctx, s.index, &redis.FTDropIndexOptions{DeleteDocs: true}).Err()
	if err != nil && !strings.Contains(err.Error(), "Unknown Index") &&
		!strings.Contains(err.Error(), "no such index") {
		return err
	}
	return nil
}

func (s *RedisVectorStore) SaveDocument(ctx context.Context, doc types.Document) error {
	chunkCount := doc.ChunkCount
	if chunkCount == 0 {
		chunkCount = len(doc.Chunks)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.docKey(doc.ID), map[string]interface{}{
		"title":       doc.Title,
		"source":      doc.Source,
		"source_path": doc.SourcePath,
		"created_at":  doc.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"version":     doc.Version,
		"chunks":      chunkCount,
	})
	pipe.SAdd(ctx, s.docsKey(), doc.ID.String())
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisVectorStore) GetDocumentByID(ctx context.Context, docID uuid.UUID) (*types.Document, error) {
	fields, err := s.client.HGetAll(ctx, s.docKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	doc := docFromFields(docID, fields)
	return &doc, nil
}

func (s *RedisVectorStore) ListDocuments(ctx context.Context) ([]types.Document, error) {
	ids, err := s.client.SMembers(ctx, s.docsKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, 0, len(ids))
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		docID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		parsed = append(parsed, docID)
		cmds = append(cmds, pipe.HGetAll(ctx, s.docKey(docID)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	docs := make([]types.Document, 0, len(cmds))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		docs = append(docs, docFromFields(parsed[i], fields))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Title < docs[j].Title })
	return docs, nil
}

func (s *RedisVectorStore) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	if _, err := s.GetDocumentByID(ctx, docID); err != nil {
		return err
	}
	if err := s.DeleteChunksByDocID(ctx, docID); err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.docKey(docID))
	pipe.SRem(ctx, s.docsKey(), docID.String())
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisVectorStore) SaveChunks(ctx context.Context, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, c := range chunks {
		if len(c.Embedding) != s.dim {
			return fmt.Errorf("chunk %s: %w: got %d, index expects %d",
				c.ID, ErrDimensionMismatch, len(c.Embedding), s.dim)
		}
		key := s.chunkKey(c.ID.String())
		pipe.HSet(ctx, key, map[string]interface{}{
			"doc_id":    c.DocID.String(),
			"title":     c.Title,
			"section":   c.Section,
			"content":   c.Content,
			"index":     c.Index,
			"embedding": encodeVector(c.Embedding),
		})
		pipe.SAdd(ctx, s.docChunksKey(c.DocID), key)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisVectorStore) GetChunksByDocID(ctx context.Context, docID uuid.UUID) ([]types.Chunk, error) {
	keys, err := s.client.SMembers(ctx, s.docChunksKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	chunks := make([]types.Chunk, 0, len(keys))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		chunks = append(chunks, s.chunkFromFields(keys[i], fields))
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

func (s *RedisVectorStore) DeleteChunksByDocID(ctx context.Context, docID uuid.UUID) error {
	setKey := s.docChunksKey(docID)
	keys, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, setKey)
	_, err = pipe.Exec(ctx)
	return err
}

// Search runs a KNN query over the chunk index and returns the limit
// nearest chunks ordered by cosine distance, closest first.
func (s *RedisVectorStore) Search(ctx context.Context, queryVec []float32, limit int) ([]types.Chunk, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if len(queryVec) != s.dim {
		return nil, fmt.Errorf("%w: got %d, index expects %d", ErrDimensionMismatch, len(queryVec), s.dim)
	}
	if limit <= 0 {
		limit = 5
	}

	query := fmt.Sprintf("*=>[KNN %d @embedding $vec AS vector_distance]", limit)
	res, err := s.client.FTSearchWithArgs(ctx, s.index, query, &redis.FTSearchOptions{
		Return: []redis.FTSearchReturn{
			{FieldName: "doc_id"},
			{FieldName: "title"},
			{FieldName: "section"},
			{FieldName: "content"},
			{FieldName: "index"},
			{FieldName: "vector_distance"},
		},
		SortBy:         []redis.FTSearchSortBy{{FieldName: "vector_distance", Asc: true}},
		LimitOffset:    0,
		Limit:          limit,
		Params:         map[string]interface{}{"vec": encodeVector(queryVec)},
		DialectVersion: 2,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	chunks := make([]types.Chunk, 0, len(res.Docs))
	for _, doc := range res.Docs {
		chunks = append(chunks, s.chunkFromFields(doc.ID, doc.Fields))
	}
	return chunks, nil
}

// Len returns the number of indexed chunks.
func (s *RedisVectorStore) Len(ctx context.Context) (int64, error) {
	res, err := s.client.FTSearchWithArgs(ctx, s.index, "*", &redis.FTSearchOptions{
		CountOnly: true,
	}).Result()
	if err != nil {
		return 0, err
	}
	return int64(res.Total), nil
}

func (s *RedisVectorStore) docKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:doc:%s", s.prefix, id)
}

func (s *RedisVectorStore) docsKey() string {
	return s.prefix + ":docs"
}

func (s *RedisVectorStore) chunkKey(id string) string {
	return fmt.Sprintf("%s:chunk:%s", s.prefix, id)
}

func (s *RedisVectorStore) docChunksKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:docchunks:%s", s.prefix, id)
}

func (s *RedisVectorStore) chunkFromFields(key string, fields map[string]string) types.Chunk {
	var chunk types.Chunk
	if id := strings.TrimPrefix(key, s.chunkKey("")); id != key {
		chunk.ID, _ = uuid.Parse(id)
	}
	chunk.DocID, _ = uuid.Parse(fields["doc_id"])
	chunk.Title = fields["title"]
	chunk.Index, _ = strconv.Atoi(fields["index"])
	chunk.Section = fields["section"]
	chunk.Content = fields["content"]
	if raw, ok := fields["vector_distance"]; ok {
		chunk.Distance, _ = strconv.ParseFloat(raw, 64)
	}
	if raw, ok := fields["embedding"]; ok {
		chunk.Embedding = decodeVector(raw)
	}
	return chunk
}

func docFromFields(docID uuid.UUID, fields map[string]string) types.Document {
	doc := types.Document{
		ID:         docID,
		Title:      fields["title"],
		Source:     fields["source"],
		SourcePath: fields["source_path"],
	}
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields["created_at"])
	doc.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields["updated_at"])
	doc.Version, _ = strconv.Atoi(fields["version"])
	doc.ChunkCount, _ = strconv.Atoi(fields["chunks"])
	return doc
}
