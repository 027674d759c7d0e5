package sandbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir is a container backed by a directory on the host.
type Dir struct {
	root string
}

// LocalBoot returns a BootFunc that creates a fresh directory container under
// parent. An empty parent means the system temp dir.
func LocalBoot(parent string) BootFunc {
	return func(ctx context.Context) (Container, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if parent != "" {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
		root, err := os.MkdirTemp(parent, "vibelet-sandbox-")
		if err != nil {
			return nil, err
		}
		return &Dir{root: root}, nil
	}
}

// Root returns the host directory of the container.
func (d *Dir) Root() string { return d.root }

// resolve maps a container path onto the host. Leading slashes are dropped;
// paths that leave the root are rejected.
func (d *Dir) resolve(name string) (string, error) {
	rel := filepath.FromSlash(strings.TrimLeft(name, "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q is outside the sandbox", name)
	}
	return filepath.Join(d.root, rel), nil
}

func (d *Dir) Mkdir(_ context.Context, dir string) error {
	p, err := d.resolve(dir)
	if err != nil {
		return err
	}
	return os.MkdirAll(p, 0o755)
}

func (d *Dir) WriteFile(_ context.Context, name string, content []byte) error {
	p, err := d.resolve(name)
	if err != nil {
		return err
	}
	return os.WriteFile(p, content, 0o644)
}

func (d *Dir) Teardown() error {
	return os.RemoveAll(d.root)
}
