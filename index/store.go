package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultSearchTimeout bounds the query embedding made during a completion.
const DefaultSearchTimeout = 300 * time.Millisecond

// entry is one playground's indexer and its build state.
type entry struct {
	indexer *Indexer
	done    chan struct{}
	err     error
}

// ready reports whether the build finished without error.
func (e *entry) ready() bool {
	select {
	case <-e.done:
		return e.err == nil
	default:
		return false
	}
}

// Store is a TTL cache of per-playground indexers. Entries expire after ttl
// without use.
type Store struct {
	embedder      Embedding
	maxSnippets   int
	searchTimeout time.Duration
	cache         *ttlcache.Cache[string, *entry]
}

// NewStore creates a store. A nil embedder disables indexing entirely.
func NewStore(embedder Embedding, maxSnippets int, ttl time.Duration) *Store {
	c := ttlcache.New[string, *entry](
		ttlcache.WithTTL[string, *entry](ttl),
	)
	go c.Start()
	return &Store{embedder: embedder, maxSnippets: maxSnippets, searchTimeout: DefaultSearchTimeout, cache: c}
}

// SetSearchTimeout changes how long Search may wait for the query embedding.
// Non-positive values restore DefaultSearchTimeout.
func (s *Store) SetSearchTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultSearchTimeout
	}
	s.searchTimeout = d
}

// Enabled reports whether the store can index anything.
func (s *Store) Enabled() bool { return s != nil && s.embedder != nil }

// Warm rebuilds the index for playgroundID from files in the background.
// The returned channel is closed when the build ends. The build outlives ctx
// cancellation so that a warm-up request can return immediately.
func (s *Store) Warm(ctx context.Context, playgroundID string, files map[string]string) <-chan struct{} {
	e := &entry{
		indexer: NewIndexer(s.embedder, s.maxSnippets),
		done:    make(chan struct{}),
	}
	if !s.Enabled() || playgroundID == "" {
		close(e.done)
		return e.done
	}
	s.cache.Set(playgroundID, e, ttlcache.DefaultTTL)

	bg := context.WithoutCancel(ctx)
	go func() {
		defer close(e.done)
		start := time.Now()
		if err := e.indexer.IndexFiles(bg, files); err != nil {
			e.err = err
			slog.Error("snippet indexing error", "playground", playgroundID, "error", err)
			return
		}
		slog.Debug("snippet index ready",
			"playground", playgroundID,
			"files", len(files),
			"snippets", e.indexer.Len(),
			"elapsed", time.Since(start),
		)
	}()
	return e.done
}

// Seed installs an already built indexer for playgroundID.
func (s *Store) Seed(playgroundID string, idx *Indexer) {
	if !s.Enabled() || playgroundID == "" || idx == nil {
		return
	}
	e := &entry{indexer: idx, done: make(chan struct{})}
	close(e.done)
	s.cache.Set(playgroundID, e, ttlcache.DefaultTTL)
}

// Search returns up to topK snippets related to query. It never waits for an
// index that is still building: an unknown or unfinished playground yields nil.
func (s *Store) Search(ctx context.Context, playgroundID, query string, topK int) []string {
	if !s.Enabled() || playgroundID == "" {
		return nil
	}
	item := s.cache.Get(playgroundID)
	if item == nil || !item.Value().ready() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()
	snippets, err := item.Value().indexer.SearchRelevant(ctx, query, topK)
	if err != nil {
		slog.Warn("snippet search failed", "playground", playgroundID, "error", err)
		return nil
	}
	return snippets
}

// Indexer returns the finished indexer for playgroundID, if any.
func (s *Store) Indexer(playgroundID string) (*Indexer, bool) {
	if s == nil {
		return nil, false
	}
	item := s.cache.Get(playgroundID)
	if item == nil || !item.Value().ready() {
		return nil, false
	}
	return item.Value().indexer, true
}

// Close stops the cache expiration loop.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.cache.Stop()
}
