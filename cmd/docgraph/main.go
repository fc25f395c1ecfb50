// Command docgraph ingests documents into the chunk graph and queries it.
//
// Usage:
//
//	docgraph process [flags] file.md [file.html ...]
//	docgraph query [flags] -q "question"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/smallnest/docgraph"
	"github.com/smallnest/docgraph/chunker"
	"github.com/smallnest/docgraph/embed"
	"github.com/smallnest/docgraph/layout"
	"github.com/smallnest/docgraph/log"
	"github.com/smallnest/docgraph/relation"
	"github.com/smallnest/docgraph/retriever"
	"github.com/smallnest/docgraph/store"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	scoreStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F9E2AF"))
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "process":
		err = runProcess(os.Args[2:])
	case "query":
		err = runQuery(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: docgraph <process|query> [flags]")
}

type backendFlags struct {
	graphURL    string
	redisAddr   string
	catalogPath string
	verbose     bool
}

func (f *backendFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.graphURL, "graph", "memory://", "graph store URL (memory:// or falkordb://host:port/name)")
	fs.StringVar(&f.redisAddr, "redis", "", "Redis address for the vector store (empty for in-memory)")
	fs.StringVar(&f.catalogPath, "catalog", "docgraph.db", "SQLite catalog path")
	fs.BoolVar(&f.verbose, "v", false, "verbose logging")
}

func (f *backendFlags) logger() log.Logger {
	if f.verbose {
		return log.NewDefaultLogger(log.LogLevelDebug)
	}
	return log.NewDefaultLogger(log.LogLevelWarn)
}

func (f *backendFlags) vectorStore() docgraph.VectorStore {
	if f.redisAddr != "" {
		return store.NewRedisVectorStore(store.RedisOptions{Addr: f.redisAddr})
	}
	return store.NewMemoryVectorStore()
}

func (f *backendFlags) graphStore() (docgraph.GraphStore, error) {
	if strings.HasPrefix(f.graphURL, "falkordb://") {
		return store.NewFalkorGraphStore(f.graphURL)
	}
	return store.NewMemoryGraphStore(), nil
}

func embedder() (docgraph.Embedder, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	return embed.NewOpenAIEmbedder(key), nil
}

func runProcess(args []string) error {
	fs := flag.NewFlagSet("process", flag.ExitOnError)
	var backends backendFlags
	backends.register(fs)
	timeout := fs.Duration("timeout", 2*time.Minute, "per-document processing timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("no input files")
	}

	emb, err := embedder()
	if err != nil {
		return err
	}
	graphStore, err := backends.graphStore()
	if err != nil {
		return err
	}
	catalog, err := store.NewSQLiteCatalog(store.SQLiteOptions{Path: backends.catalogPath})
	if err != nil {
		return err
	}
	defer catalog.Close()

	pipeline, err := docgraph.NewPipeline(docgraph.PipelineConfig{
		Adapter:     layout.NewAdapter(),
		Chunker:     chunker.NewDualChunker(),
		Extractor:   relation.NewExtractor(),
		Embedder:    emb,
		VectorStore: backends.vectorStore(),
		GraphStore:  graphStore,
		Catalog:     catalog,
		Logger:      backends.logger(),
	})
	if err != nil {
		return err
	}

	for _, path := range fs.Args() {
		src, err := sourceFor(path)
		if err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("✗ %s: %v", path, err)))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		doc, err := pipeline.Process(ctx, path, src)
		cancel()

		if err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("✗ %s: %v", path, err)))
			continue
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ %s", path)) +
			mutedStyle.Render(fmt.Sprintf("  document=%s chunks=%d", doc.ID, len(doc.ChunkIDs))))
	}

	return nil
}

// sourceFor picks a layout source by file extension.
func sourceFor(path string) (docgraph.LayoutSource, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return layout.NewMarkdownSource(path, content), nil
	case ".html", ".htm":
		return layout.NewHTMLSource(path, string(content)), nil
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func runQuery(args []string) error {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	var backends backendFlags
	backends.register(fs)
	query := fs.String("q", "", "query text")
	k := fs.Int("k", 10, "vector candidates")
	hops := fs.Int("hops", 1, "graph expansion hops")
	limit := fs.Int("limit", 10, "maximum results")
	timeout := fs.Duration("timeout", 10*time.Second, "query timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *query == "" {
		return fmt.Errorf("query text is required (-q)")
	}

	emb, err := embedder()
	if err != nil {
		return err
	}
	graphStore, err := backends.graphStore()
	if err != nil {
		return err
	}

	config := docgraph.DefaultRetrievalConfig()
	config.K = *k
	config.MaxHops = *hops
	config.Limit = *limit
	config.Timeout = *timeout

	orch := retriever.NewOrchestrator(emb, backends.vectorStore(), graphStore,
		retriever.WithConfig(config),
		retriever.WithLogger(backends.logger()),
	)

	results, err := orch.Retrieve(context.Background(), *query)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println(mutedStyle.Render("no results"))
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("results for %q", *query)))
	for i, result := range results {
		heading := strings.Join(result.Chunk.HeadingPath, " > ")
		if heading == "" {
			heading = "(no heading)"
		}
		provenance := string(result.Provenance)
		if result.HopDistance > 0 {
			provenance = fmt.Sprintf("%s, %d hop(s)", provenance, result.HopDistance)
		}

		fmt.Printf("%s %s %s\n", scoreStyle.Render(fmt.Sprintf("%2d. %.4f", i+1, result.Score)),
			titleStyle.Render(heading),
			mutedStyle.Render(fmt.Sprintf("[%s]", provenance)))
		fmt.Println(mutedStyle.Render("    " + result.Chunk.ID))
		fmt.Println("    " + snippet(result.Chunk.Text, 200))
	}

	return nil
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}
