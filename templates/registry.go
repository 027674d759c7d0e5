package templates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the blob cache when no size is configured.
const DefaultCacheSize = 64

// Registry looks templates up by identifier, caching blobs in memory.
type Registry struct {
	catalog Catalog
	source  Source
	cache   *lru.Cache[ID, json.RawMessage]
}

// NewRegistry creates a registry over source. A nil catalog means DefaultCatalog.
func NewRegistry(catalog Catalog, source Source, cacheSize int) (*Registry, error) {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[ID, json.RawMessage](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Registry{catalog: catalog, source: source, cache: cache}, nil
}

// Lookup returns the template blob for id. Unknown identifiers yield
// ErrUnknownTemplate. The blob must be JSON but is otherwise not interpreted.
func (r *Registry) Lookup(ctx context.Context, id string) (json.RawMessage, error) {
	key, ok := r.catalog[ID(id)]
	if !ok || !Known(id) {
		return nil, ErrUnknownTemplate
	}
	if blob, ok := r.cache.Get(ID(id)); ok {
		return blob, nil
	}

	data, err := r.source.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("template %s is not valid JSON", id)
	}
	slog.Debug("template loaded", "id", id, "key", key, "bytes", len(data))
	blob := json.RawMessage(data)
	r.cache.Add(ID(id), blob)
	return blob, nil
}
