// Package index keeps a searchable vector index of project code snippets.
package index

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/coder/hnsw"
)

const (
	indexBatchSize = 32
	// chunkLines is the size of one snippet window.
	chunkLines = 12
)

// Embedding is the embedding API used by an Indexer.
type Embedding interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Indexer holds embedded snippets of one playground's files.
type Indexer struct {
	embedder    Embedding
	maxSnippets int

	mu       sync.RWMutex
	graph    *hnsw.Graph[string] // keyed by snippet hash
	snippets map[string]string   // hash -> redacted snippet text
}

// NewIndexer creates an empty indexer.
// If embedder is nil, indexing and search are no-ops.
func NewIndexer(embedder Embedding, maxSnippets int) *Indexer {
	return &Indexer{
		embedder:    embedder,
		maxSnippets: maxSnippets,
		graph:       hnsw.NewGraph[string](),
		snippets:    make(map[string]string),
	}
}

// Len returns the number of indexed snippets.
func (idx *Indexer) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.snippets)
}

// SplitSnippets cuts a file into consecutive windows of chunkLines lines.
// Each snippet starts with a "// path:line" header. Blank windows are dropped.
func SplitSnippets(path, content string) []string {
	lines := strings.Split(content, "\n")
	var out []string
	for start := 0; start < len(lines); start += chunkLines {
		end := min(start+chunkLines, len(lines))
		body := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(body) == "" {
			continue
		}
		out = append(out, fmt.Sprintf("// %s:%d\n%s", path, start+1, body))
	}
	return out
}

// IndexFiles redacts, splits and embeds the given files (path -> content).
// Snippets already in the graph are skipped. At most maxSnippets are kept.
func (idx *Indexer) IndexFiles(ctx context.Context, files map[string]string) error {
	if idx.embedder == nil || len(files) == 0 {
		return nil
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	type pending struct {
		hash string
		text string
	}
	var toEmbed []pending
	seen := make(map[string]bool)

	idx.mu.RLock()
	budget := idx.maxSnippets - len(idx.snippets)
	for _, p := range paths {
		for _, snippet := range SplitSnippets(p, RedactSource(p, files[p])) {
			hash := hashSnippet(snippet)
			if seen[hash] {
				continue
			}
			seen[hash] = true
			if _, exists := idx.graph.Lookup(hash); exists {
				continue
			}
			toEmbed = append(toEmbed, pending{hash, snippet})
		}
	}
	idx.mu.RUnlock()

	if idx.maxSnippets > 0 && len(toEmbed) > budget {
		toEmbed = toEmbed[:max(budget, 0)]
	}
	if len(toEmbed) == 0 {
		return nil
	}

	// Embed in batches via API, accumulating results locally
	var allNodes []hnsw.Node[string]
	allSnippets := make(map[string]string, len(toEmbed))
	var firstErr error

	for i := 0; i < len(toEmbed); i += indexBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := toEmbed[i:min(i+indexBatchSize, len(toEmbed))]

		texts := make([]string, len(batch))
		for j, b := range batch {
			texts[j] = b.text
		}

		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			slog.Error("batch embed error", "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for j, b := range batch {
			allNodes = append(allNodes, hnsw.MakeNode(b.hash, vectors[j]))
			allSnippets[b.hash] = b.text
		}
	}

	// Single graph insertion under one write lock
	if len(allNodes) > 0 {
		idx.mu.Lock()
		idx.graph.Add(allNodes...)
		for k, v := range allSnippets {
			idx.snippets[k] = v
		}
		idx.mu.Unlock()
		return nil
	}
	return firstErr
}

// SearchRelevant embeds the query and returns the topK most similar snippets,
// closest first.
func (idx *Indexer) SearchRelevant(ctx context.Context, query string, topK int) ([]string, error) {
	if idx.embedder == nil || topK <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if idx.Len() == 0 {
		return nil, nil
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	neighbors := idx.graph.Search(queryVec, topK)
	sort.SliceStable(neighbors, func(i, j int) bool {
		return idx.graph.Distance(queryVec, neighbors[i].Value) < idx.graph.Distance(queryVec, neighbors[j].Value)
	})
	snippets := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if s, ok := idx.snippets[n.Key]; ok {
			snippets = append(snippets, s)
		}
	}
	return snippets, nil
}

// EmbeddingModel returns the model name used by the embedder, or empty if disabled.
func (idx *Indexer) EmbeddingModel() string {
	if idx.embedder == nil {
		return ""
	}
	return idx.embedder.Model()
}

func hashSnippet(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}
