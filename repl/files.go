package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/vibecode/vibelet/analyze"
)

const (
	maxIndexFileBytes = 256 << 10
	maxIndexFiles     = 500
)

// skipDirs are never descended into when collecting files to index.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
}

// collectFiles reads source files under root, keyed by slash path relative
// to root. Hidden entries, large files and files without a recognized
// language are skipped.
func collectFiles(root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if path != root && strings.HasPrefix(name, ".") && name != ".env" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if len(files) >= maxIndexFiles {
			return filepath.SkipAll
		}
		if !indexable(name) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxIndexFileBytes {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	return files, err
}

// indexable reports whether name has an extension the language detector
// knows, or is an env/shell file.
func indexable(name string) bool {
	if name == ".env" || strings.HasSuffix(name, ".sh") {
		return true
	}
	if filepath.Ext(name) == "" {
		return false
	}
	return analyze.DetectLanguage("", name) != analyze.DefaultLanguage || isJS(name)
}

func isJS(name string) bool {
	switch filepath.Ext(name) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return true
	}
	return false
}
