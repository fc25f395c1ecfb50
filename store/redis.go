package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/docgraph"
)

// RedisVectorStore persists chunk embeddings in Redis. Each chunk lives
// under its own key; per-document and global sets index the keys so
// queries and cascades never scan the keyspace.
type RedisVectorStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key prefix, default "docgraph:"
}

var _ docgraph.VectorStore = (*RedisVectorStore)(nil)

// NewRedisVectorStore creates a Redis-backed vector store.
func NewRedisVectorStore(opts RedisOptions) *RedisVectorStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisVectorStoreWithClient(client, opts.Prefix)
}

// NewRedisVectorStoreWithClient wraps an existing client. Useful for tests
// running against an embedded server.
func NewRedisVectorStoreWithClient(client redis.UniversalClient, prefix string) *RedisVectorStore {
	if prefix == "" {
		prefix = "docgraph:"
	}
	return &RedisVectorStore{client: client, prefix: prefix}
}

type redisChunkRecord struct {
	Chunk  docgraph.Chunk `json:"chunk"`
	Vector []float32      `json:"vector"`
}

func (s *RedisVectorStore) chunkKey(id string) string {
	return s.prefix + "chunk:" + id
}

func (s *RedisVectorStore) docKey(documentID string) string {
	return s.prefix + "doc:" + documentID
}

func (s *RedisVectorStore) indexKey() string {
	return s.prefix + "chunks"
}

// Upsert stores chunks with their embeddings in one pipeline, superseding
// the document's previous entries.
func (s *RedisVectorStore) Upsert(ctx context.Context, documentID string, chunks []docgraph.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors must have same length: %d != %d", len(chunks), len(vectors))
	}

	stale, err := s.client.SMembers(ctx, s.docKey(documentID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list document chunks: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, id := range stale {
		pipe.Del(ctx, s.chunkKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
	}
	pipe.Del(ctx, s.docKey(documentID))
	for i, chunk := range chunks {
		data, err := json.Marshal(redisChunkRecord{Chunk: chunk, Vector: vectors[i]})
		if err != nil {
			return fmt.Errorf("failed to marshal chunk %s: %w", chunk.ID, err)
		}
		pipe.Set(ctx, s.chunkKey(chunk.ID), data, 0)
		pipe.SAdd(ctx, s.docKey(documentID), chunk.ID)
		pipe.SAdd(ctx, s.indexKey(), chunk.ID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write chunks to redis: %w", err)
	}
	return nil
}

// Query scores every stored chunk by cosine similarity and returns the top
// k, highest first, ties broken by ascending chunk id.
func (s *RedisVectorStore) Query(ctx context.Context, vector []float32, k int) ([]docgraph.ChunkMatch, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk index: %w", err)
	}
	if len(ids) == 0 {
		return []docgraph.ChunkMatch{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.chunkKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chunks: %w", err)
	}

	var matches []docgraph.ChunkMatch
	for _, value := range values {
		data, ok := value.(string)
		if !ok {
			// Key deleted between SMEMBERS and MGET.
			continue
		}
		var rec redisChunkRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk record: %w", err)
		}
		matches = append(matches, docgraph.ChunkMatch{
			Chunk: rec.Chunk,
			Score: cosineSimilarity(vector, rec.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Chunk.ID < matches[j].Chunk.ID
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// DeleteByDocument removes the document's chunks and index entries.
func (s *RedisVectorStore) DeleteByDocument(ctx context.Context, documentID string) error {
	ids, err := s.client.SMembers(ctx, s.docKey(documentID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list document chunks: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, s.chunkKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
	}
	pipe.Del(ctx, s.docKey(documentID))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisVectorStore) Close() error {
	return s.client.Close()
}
