// Package templates resolves playground starter templates. A template is an
// opaque JSON file tree keyed by a fixed identifier; playgrounds record which
// identifier they were created from.
package templates

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ID identifies a starter template.
type ID string

const (
	React   ID = "REACT"
	NextJS  ID = "NEXTJS"
	Express ID = "EXPRESS"
	Vue     ID = "VUE"
	Hono    ID = "HONO"
	Angular ID = "ANGULAR"
)

// IDs lists every known template.
var IDs = []ID{React, NextJS, Express, Vue, Hono, Angular}

var (
	// ErrUnknownTemplate is returned for identifiers outside IDs.
	ErrUnknownTemplate = errors.New("invalid template")
	// ErrPlaygroundNotFound is returned when a playground id has no record.
	ErrPlaygroundNotFound = errors.New("playground not found")
)

// Known reports whether id names a template.
func Known(id string) bool {
	for _, t := range IDs {
		if string(t) == id {
			return true
		}
	}
	return false
}

// Catalog maps template identifiers to blob keys.
type Catalog map[ID]string

// DefaultCatalog stores each template as "<ID>.json".
func DefaultCatalog() Catalog {
	c := make(Catalog, len(IDs))
	for _, id := range IDs {
		c[id] = string(id) + ".json"
	}
	return c
}

type catalogFile struct {
	Templates map[string]string `toml:"templates"`
}

// ParseCatalog decodes a TOML catalog:
//
//	[templates]
//	REACT = "react-ts.json"
//
// Identifiers not listed keep their default key.
func ParseCatalog(data string) (Catalog, error) {
	var f catalogFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse template catalog: %w", err)
	}
	c := DefaultCatalog()
	for id, key := range f.Templates {
		if !Known(id) {
			return nil, fmt.Errorf("template catalog: %w: %s", ErrUnknownTemplate, id)
		}
		if key == "" {
			return nil, fmt.Errorf("template catalog: empty key for %s", id)
		}
		c[ID(id)] = key
	}
	return c, nil
}

// LoadCatalog reads a TOML catalog from path. A missing file yields the
// default catalog.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultCatalog(), nil
		}
		return nil, err
	}
	return ParseCatalog(string(data))
}
