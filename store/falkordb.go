package store

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/docgraph"
)

// FalkorGraphStore persists the chunk graph in FalkorDB over the Redis
// protocol. Chunks become :Chunk nodes; edges keep their type as the
// relation label and carry id, weight and direction as properties.
type FalkorGraphStore struct {
	client    redis.UniversalClient
	graphName string
}

var _ docgraph.GraphStore = (*FalkorGraphStore)(nil)

// NewFalkorGraphStore connects to FalkorDB. The connection string format is
// falkordb://host:port/graph_name; the graph name defaults to "docgraph".
func NewFalkorGraphStore(connectionString string) (*FalkorGraphStore, error) {
	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	addr := u.Host
	if addr == "" {
		return nil, fmt.Errorf("invalid connection string: missing host")
	}
	graphName := strings.TrimPrefix(u.Path, "/")
	if graphName == "" {
		graphName = "docgraph"
	}

	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	return &FalkorGraphStore{
		client:    client,
		graphName: graphName,
	}, nil
}

// NewFalkorGraphStoreWithClient wraps an existing client, for tests.
func NewFalkorGraphStoreWithClient(client redis.UniversalClient, graphName string) *FalkorGraphStore {
	if graphName == "" {
		graphName = "docgraph"
	}
	return &FalkorGraphStore{client: client, graphName: graphName}
}

// UpsertGraph replaces the document's graph slice. Existing nodes for the
// document are removed first so re-processing supersedes stale chunks.
func (f *FalkorGraphStore) UpsertGraph(ctx context.Context, documentID string, nodes []docgraph.Chunk, edges []docgraph.Edge) error {
	if err := f.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}

	for _, node := range nodes {
		query := fmt.Sprintf(
			"MERGE (n:Chunk {id: '%s'}) SET n += {document_id: '%s', granularity: '%s', section_id: '%s', heading_path: '%s', text: '%s'}",
			escapeCypher(node.ID),
			escapeCypher(node.DocumentID),
			escapeCypher(string(node.Granularity)),
			escapeCypher(node.SectionID),
			escapeCypher(strings.Join(node.HeadingPath, " > ")),
			escapeCypher(node.Text),
		)
		if _, err := f.query(ctx, query); err != nil {
			return fmt.Errorf("failed to upsert chunk node %s: %w", node.ID, err)
		}
	}

	for _, edge := range edges {
		query := fmt.Sprintf(
			"MATCH (a:Chunk {id: '%s'}), (b:Chunk {id: '%s'}) MERGE (a)-[r:%s {id: '%s'}]->(b) SET r += {type: '%s', weight: %s, directed: %t}",
			escapeCypher(edge.Source),
			escapeCypher(edge.Target),
			relationLabel(edge.Type),
			escapeCypher(edge.ID),
			escapeCypher(string(edge.Type)),
			strconv.FormatFloat(edge.Weight, 'f', -1, 64),
			edge.Directed,
		)
		if _, err := f.query(ctx, query); err != nil {
			return fmt.Errorf("failed to upsert edge %s: %w", edge.ID, err)
		}
	}

	return nil
}

// Neighbors walks out from chunkID breadth-first, one hop per round trip,
// and returns each chunk reached once at its shortest distance.
func (f *FalkorGraphStore) Neighbors(ctx context.Context, chunkID string, edgeTypes []docgraph.EdgeType, maxHops int) ([]docgraph.Neighbor, error) {
	if maxHops < 1 {
		return nil, nil
	}

	allowed := make(map[docgraph.EdgeType]bool, len(edgeTypes))
	for _, t := range edgeTypes {
		allowed[t] = true
	}

	visited := map[string]bool{chunkID: true}
	frontier := []string{chunkID}
	var out []docgraph.Neighbor

	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			query := fmt.Sprintf("MATCH (a:Chunk {id: '%s'})-[r]-(m:Chunk) RETURN r, m", escapeCypher(id))
			qr, err := f.query(ctx, query)
			if err != nil {
				return nil, fmt.Errorf("neighbor query failed for %s: %w", id, err)
			}

			for _, row := range qr.results {
				if len(row) < 2 {
					continue
				}
				edge := parseFalkorEdge(row[0])
				chunk := parseFalkorChunk(row[1])
				if chunk.ID == "" || visited[chunk.ID] {
					continue
				}
				if len(allowed) > 0 && !allowed[edge.Type] {
					continue
				}
				visited[chunk.ID] = true

				// Undirected MATCH loses endpoint order; reconstruct it from
				// the frontier side.
				if edge.Source == "" {
					edge.Source = id
					edge.Target = chunk.ID
				}

				out = append(out, docgraph.Neighbor{
					Chunk:       chunk,
					Edge:        edge,
					HopDistance: hop,
				})
				next = append(next, chunk.ID)
			}
		}
		frontier = next
	}

	return out, nil
}

// DeleteByDocument detaches and deletes the document's chunk nodes.
func (f *FalkorGraphStore) DeleteByDocument(ctx context.Context, documentID string) error {
	query := fmt.Sprintf("MATCH (n:Chunk {document_id: '%s'}) DETACH DELETE n", escapeCypher(documentID))
	_, err := f.query(ctx, query)
	return err
}

// Close releases the underlying client.
func (f *FalkorGraphStore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// falkorResult holds a parsed GRAPH.QUERY response.
type falkorResult struct {
	header     []string
	results    [][]interface{}
	statistics []string
}

// query executes a Cypher query against the graph.
func (f *FalkorGraphStore) query(ctx context.Context, q string) (falkorResult, error) {
	qr := falkorResult{}

	res, err := f.client.Do(ctx, "GRAPH.QUERY", f.graphName, q, "--compact").Result()
	if err != nil {
		return qr, err
	}

	r, ok := res.([]interface{})
	if !ok {
		return qr, fmt.Errorf("unexpected response type: %T", res)
	}

	switch len(r) {
	case 3:
		if header, ok := r[0].([]interface{}); ok {
			qr.header = make([]string, len(header))
			for i, h := range header {
				qr.header[i] = fmt.Sprint(h)
			}
		}
		qr.results = parseRows(r[1])
		qr.statistics = parseStats(r[2])
	case 2:
		// Write-only queries return no header.
		qr.results = parseRows(r[0])
		qr.statistics = parseStats(r[1])
	default:
		return qr, fmt.Errorf("unexpected response length: %d", len(r))
	}

	return qr, nil
}

func parseRows(obj interface{}) [][]interface{} {
	rows, ok := obj.([]interface{})
	if !ok {
		return nil
	}
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		if vals, ok := row.([]interface{}); ok {
			out[i] = vals
		}
	}
	return out
}

func parseStats(obj interface{}) []string {
	stats, ok := obj.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, len(stats))
	for i, s := range stats {
		out[i] = fmt.Sprint(s)
	}
	return out
}

// parseFalkorChunk rebuilds a Chunk from a node response. The node shape is
// [internal id, labels, property pairs].
func parseFalkorChunk(obj interface{}) docgraph.Chunk {
	var chunk docgraph.Chunk

	props := nodeProperties(obj, 2)
	for key, val := range props {
		switch key {
		case "id":
			chunk.ID = val
		case "document_id":
			chunk.DocumentID = val
		case "granularity":
			chunk.Granularity = docgraph.Granularity(val)
		case "section_id":
			chunk.SectionID = val
		case "heading_path":
			if val != "" {
				chunk.HeadingPath = strings.Split(val, " > ")
			}
		case "text":
			chunk.Text = val
		}
	}

	return chunk
}

// parseFalkorEdge rebuilds an Edge from a relation response. The relation
// shape is [internal id, type, src, dst, property pairs].
func parseFalkorEdge(obj interface{}) docgraph.Edge {
	var edge docgraph.Edge

	props := nodeProperties(obj, 4)
	for key, val := range props {
		switch key {
		case "id":
			edge.ID = val
		case "type":
			edge.Type = docgraph.EdgeType(val)
		case "weight":
			if w, err := strconv.ParseFloat(val, 64); err == nil {
				edge.Weight = w
			}
		case "directed":
			edge.Directed = val == "true"
		}
	}

	if edge.ID != "" && (edge.Source == "" || edge.Target == "") {
		// Edge ids embed endpoints; recover them when the protocol only
		// yields internal numeric ids.
		if idx := strings.Index(edge.ID, "->"); idx > 0 {
			rest := edge.ID[idx+2:]
			if colon := strings.LastIndex(rest, ":"); colon > 0 {
				edge.Source = edge.ID[:idx]
				edge.Target = rest[:colon]
			}
		}
	}

	return edge
}

// nodeProperties extracts the [key, value] property pairs found at the
// given index of a compact graph object.
func nodeProperties(obj interface{}, propIndex int) map[string]string {
	out := make(map[string]string)

	vals, ok := obj.([]interface{})
	if !ok || len(vals) <= propIndex {
		return out
	}

	props, ok := vals[propIndex].([]interface{})
	if !ok {
		return out
	}

	for _, p := range props {
		pair, ok := p.([]interface{})
		if !ok || len(pair) < 2 {
			continue
		}
		key := asString(pair[0])
		val := asString(pair[len(pair)-1])
		if key != "" {
			out[key] = val
		}
	}

	return out
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// relationLabel turns an edge type into a legal Cypher relation label.
func relationLabel(t docgraph.EdgeType) string {
	label := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return '_'
	}, string(t))
	if label == "" {
		return "RELATED"
	}
	return strings.ToUpper(label)
}

// escapeCypher escapes a string for embedding in single quotes.
func escapeCypher(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}
