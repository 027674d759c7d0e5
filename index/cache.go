package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/coder/hnsw"
)

// cacheVersion changes whenever snippet chunking changes, since cached
// hashes would no longer match freshly split files.
const cacheVersion = 2

// ErrStaleCache is returned by LoadCache when the file was written for
// another embedding model or chunking version.
var ErrStaleCache = errors.New("embedding cache is stale")

type snapshot struct {
	Version  int             `json:"version"`
	Model    string          `json:"model"`
	Dims     int             `json:"dims"`
	Snippets []snapshotEntry `json:"snippets"`
}

type snapshotEntry struct {
	Hash   string    `json:"hash"`
	Text   string    `json:"text"`
	Vector []float32 `json:"vector"`
}

// SaveCache writes the indexed snippets and their vectors to path. The
// file is replaced atomically; parent directories are created.
func (idx *Indexer) SaveCache(path string, model string) error {
	idx.mu.RLock()
	snap := snapshot{Version: cacheVersion, Model: model}
	for hash, text := range idx.snippets {
		vec, ok := idx.graph.Lookup(hash)
		if !ok {
			continue
		}
		snap.Dims = len(vec)
		snap.Snippets = append(snap.Snippets, snapshotEntry{Hash: hash, Text: text, Vector: vec})
	}
	idx.mu.RUnlock()
	sort.Slice(snap.Snippets, func(i, j int) bool { return snap.Snippets[i].Hash < snap.Snippets[j].Hash })

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".embeddings-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadCache adds the snippets saved at path to the index. Entries already
// present are kept; entries whose vector size disagrees with the file are
// skipped, as is anything past the snippet limit. It returns ErrStaleCache
// when model or version differ.
func (idx *Indexer) LoadCache(path string, model string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("corrupt embedding cache %s: %w", path, err)
	}
	if snap.Version != cacheVersion || snap.Model != model {
		return ErrStaleCache
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	var nodes []hnsw.Node[string]
	for _, e := range snap.Snippets {
		if idx.maxSnippets > 0 && len(idx.snippets) >= idx.maxSnippets {
			break
		}
		if _, ok := idx.snippets[e.Hash]; ok || len(e.Vector) == 0 || len(e.Vector) != snap.Dims {
			continue
		}
		nodes = append(nodes, hnsw.MakeNode(e.Hash, e.Vector))
		idx.snippets[e.Hash] = e.Text
	}
	if len(nodes) > 0 {
		idx.graph.Add(nodes...)
	}
	return nil
}
