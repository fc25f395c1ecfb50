package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallnest/docgraph"
)

// DBPool is the subset of pgxpool.Pool the store needs. Tests substitute a
// mock implementation.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresGraphStore persists the chunk graph in two relational tables:
// one for chunk nodes, one for typed edges. Traversal runs breadth-first
// with one query per hop.
type PostgresGraphStore struct {
	pool       DBPool
	chunkTable string
	edgeTable  string
}

// PostgresOptions configures the Postgres connection.
type PostgresOptions struct {
	ConnString string
	ChunkTable string // default "docgraph_chunks"
	EdgeTable  string // default "docgraph_edges"
}

var _ docgraph.GraphStore = (*PostgresGraphStore)(nil)

// NewPostgresGraphStore creates a Postgres-backed graph store.
func NewPostgresGraphStore(ctx context.Context, opts PostgresOptions) (*PostgresGraphStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return newPostgresGraphStore(pool, opts), nil
}

// NewPostgresGraphStoreWithPool wraps an existing pool. Useful for testing
// with mocks.
func NewPostgresGraphStoreWithPool(pool DBPool, opts PostgresOptions) *PostgresGraphStore {
	return newPostgresGraphStore(pool, opts)
}

func newPostgresGraphStore(pool DBPool, opts PostgresOptions) *PostgresGraphStore {
	chunkTable := opts.ChunkTable
	if chunkTable == "" {
		chunkTable = "docgraph_chunks"
	}
	edgeTable := opts.EdgeTable
	if edgeTable == "" {
		edgeTable = "docgraph_edges"
	}
	return &PostgresGraphStore{
		pool:       pool,
		chunkTable: chunkTable,
		edgeTable:  edgeTable,
	}
}

// InitSchema creates the tables if they don't exist.
func (s *PostgresGraphStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			data JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_document_id ON %s (document_id);
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			source TEXT NOT NULL,
			target TEXT NOT NULL,
			type TEXT NOT NULL,
			weight DOUBLE PRECISION NOT NULL,
			directed BOOLEAN NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_document_id ON %s (document_id);
		CREATE INDEX IF NOT EXISTS idx_%s_source ON %s (source);
		CREATE INDEX IF NOT EXISTS idx_%s_target ON %s (target);
	`,
		s.chunkTable, s.chunkTable, s.chunkTable,
		s.edgeTable, s.edgeTable, s.edgeTable,
		s.edgeTable, s.edgeTable, s.edgeTable, s.edgeTable,
	)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpsertGraph replaces the document's graph slice inside the two tables.
func (s *PostgresGraphStore) UpsertGraph(ctx context.Context, documentID string, nodes []docgraph.Chunk, edges []docgraph.Edge) error {
	if err := s.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}

	chunkQuery := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			data = EXCLUDED.data
	`, s.chunkTable)

	for _, node := range nodes {
		data, err := json.Marshal(node)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk %s: %w", node.ID, err)
		}
		if _, err := s.pool.Exec(ctx, chunkQuery, node.ID, documentID, data); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", node.ID, err)
		}
	}

	edgeQuery := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, source, target, type, weight, directed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			source = EXCLUDED.source,
			target = EXCLUDED.target,
			type = EXCLUDED.type,
			weight = EXCLUDED.weight,
			directed = EXCLUDED.directed
	`, s.edgeTable)

	for _, edge := range edges {
		if _, err := s.pool.Exec(ctx, edgeQuery,
			edge.ID, documentID, edge.Source, edge.Target, string(edge.Type), edge.Weight, edge.Directed,
		); err != nil {
			return fmt.Errorf("failed to insert edge %s: %w", edge.ID, err)
		}
	}

	return nil
}

// Neighbors walks out from chunkID breadth-first, issuing one edge query
// per hop and resolving chunks afterwards.
func (s *PostgresGraphStore) Neighbors(ctx context.Context, chunkID string, edgeTypes []docgraph.EdgeType, maxHops int) ([]docgraph.Neighbor, error) {
	if maxHops < 1 {
		return nil, nil
	}

	types := make([]string, len(edgeTypes))
	for i, t := range edgeTypes {
		types[i] = string(t)
	}

	visited := map[string]bool{chunkID: true}
	frontier := []string{chunkID}

	type hit struct {
		chunkID string
		edge    docgraph.Edge
		hop     int
	}
	var hits []hit

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		edges, err := s.edgesTouching(ctx, frontier, types)
		if err != nil {
			return nil, err
		}

		frontierSet := make(map[string]bool, len(frontier))
		for _, id := range frontier {
			frontierSet[id] = true
		}

		var next []string
		for _, edge := range edges {
			other := edge.Target
			if frontierSet[edge.Target] && !frontierSet[edge.Source] {
				other = edge.Source
			}
			if visited[other] {
				continue
			}
			visited[other] = true
			hits = append(hits, hit{chunkID: other, edge: edge, hop: hop})
			next = append(next, other)
		}
		frontier = next
	}

	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.chunkID
	}
	chunks, err := s.chunksByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]docgraph.Neighbor, 0, len(hits))
	for _, h := range hits {
		chunk, exists := chunks[h.chunkID]
		if !exists {
			continue
		}
		out = append(out, docgraph.Neighbor{
			Chunk:       chunk,
			Edge:        h.edge,
			HopDistance: h.hop,
		})
	}
	return out, nil
}

func (s *PostgresGraphStore) edgesTouching(ctx context.Context, frontier []string, types []string) ([]docgraph.Edge, error) {
	query := fmt.Sprintf(`
		SELECT id, source, target, type, weight, directed
		FROM %s
		WHERE (source = ANY($1) OR target = ANY($1))
	`, s.edgeTable)
	args := []any{frontier}

	if len(types) > 0 {
		query += " AND type = ANY($2)"
		args = append(args, types)
	}
	query += " ORDER BY id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []docgraph.Edge
	for rows.Next() {
		var edge docgraph.Edge
		var edgeType string
		if err := rows.Scan(&edge.ID, &edge.Source, &edge.Target, &edgeType, &edge.Weight, &edge.Directed); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edge.Type = docgraph.EdgeType(edgeType)
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func (s *PostgresGraphStore) chunksByID(ctx context.Context, ids []string) (map[string]docgraph.Chunk, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = ANY($1)`, s.chunkTable)

	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]docgraph.Chunk)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		var chunk docgraph.Chunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk: %w", err)
		}
		out[chunk.ID] = chunk
	}
	return out, rows.Err()
}

// DeleteByDocument removes the document's chunks and edges.
func (s *PostgresGraphStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.edgeTable), documentID); err != nil {
		return fmt.Errorf("failed to delete edges: %w", err)
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.chunkTable), documentID); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresGraphStore) Close() {
	s.pool.Close()
}
