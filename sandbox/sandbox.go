// Package sandbox manages the process-wide sandbox container that playground
// files are written into. At most one boot is in flight at a time; concurrent
// callers wait for it and share the resulting instance.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrNotBooted is returned by file operations before a container has booted.
var ErrNotBooted = errors.New("sandbox instance is not available")

// Container is a booted sandbox. Paths are slash-separated and relative to
// the container root.
type Container interface {
	// Mkdir creates dir and any missing parents.
	Mkdir(ctx context.Context, dir string) error
	WriteFile(ctx context.Context, name string, content []byte) error
	Teardown() error
}

// BootFunc starts a new container.
type BootFunc func(ctx context.Context) (Container, error)

// Runtime holds a single container slot.
type Runtime struct {
	boot  BootFunc
	group singleflight.Group

	mu       sync.Mutex
	instance Container
}

// NewRuntime creates an empty runtime that boots containers with boot.
func NewRuntime(boot BootFunc) *Runtime {
	return &Runtime{boot: boot}
}

// Instance returns the booted container, booting one if the slot is empty.
// Concurrent callers share a single boot. The boot itself is not bound to
// ctx: a caller that gives up does not abort it for the others. A failed boot
// leaves the slot empty so the next call retries.
func (r *Runtime) Instance(ctx context.Context) (Container, error) {
	if c := r.Current(); c != nil {
		return c, nil
	}

	bootCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan("boot", func() (any, error) {
		if c := r.Current(); c != nil {
			return c, nil
		}
		slog.Debug("booting sandbox")
		c, err := r.boot(bootCtx)
		if err != nil {
			slog.Error("failed to boot sandbox", "error", err)
			return nil, err
		}
		r.mu.Lock()
		r.instance = c
		r.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to boot sandbox: %w", res.Err)
		}
		return res.Val.(Container), nil
	}
}

// Current returns the booted container, or nil.
func (r *Runtime) Current() Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instance
}

// WriteFile creates the parent directory of name and writes content to it.
func (r *Runtime) WriteFile(ctx context.Context, name, content string) error {
	c := r.Current()
	if c == nil {
		return ErrNotBooted
	}
	if dir := path.Dir(name); dir != "." && dir != "/" {
		if err := c.Mkdir(ctx, dir); err != nil {
			return fmt.Errorf("failed to write file at %s: %w", name, err)
		}
	}
	if err := c.WriteFile(ctx, name, []byte(content)); err != nil {
		return fmt.Errorf("failed to write file at %s: %w", name, err)
	}
	return nil
}

// WriteAll writes files in path order and returns how many were written.
// It stops at the first failure.
func (r *Runtime) WriteAll(ctx context.Context, files map[string]string) (int, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := r.WriteFile(ctx, name, files[name]); err != nil {
			return i, err
		}
	}
	return len(names), nil
}

// Teardown tears the container down and empties the slot. It is a no-op
// when nothing has booted.
func (r *Runtime) Teardown() error {
	r.mu.Lock()
	c := r.instance
	r.instance = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Teardown()
}

var (
	sharedMu sync.Mutex
	shared   *Runtime
)

// Init replaces the process-wide runtime with one that boots with boot.
func Init(boot BootFunc) *Runtime {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	shared = NewRuntime(boot)
	return shared
}

// Shared returns the process-wide runtime. Without Init it boots directory
// containers under the system temp dir.
func Shared() *Runtime {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = NewRuntime(LocalBoot(""))
	}
	return shared
}

// ResetShared tears down and forgets the process-wide runtime.
func ResetShared() error {
	sharedMu.Lock()
	rt := shared
	shared = nil
	sharedMu.Unlock()
	if rt == nil {
		return nil
	}
	return rt.Teardown()
}
