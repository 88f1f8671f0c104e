package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Provider hands out the current Snapshot and replaces it when the overrides
// file changes. Readers never observe a partially built catalog.
type Provider struct {
	current  atomic.Pointer[Snapshot]
	onReload func(*Snapshot, error)
	path     string
}

// NewProvider builds the initial snapshot from the overrides file at path.
func NewProvider(path string) (*Provider, error) {
	snap, err := BuildFromFile(path)
	if err != nil {
		return nil, err
	}
	p := &Provider{path: path}
	p.current.Store(snap)
	return p, nil
}

// NewStaticProvider wraps a fixed snapshot.
func NewStaticProvider(snap *Snapshot) *Provider {
	p := &Provider{}
	p.current.Store(snap)
	return p
}

// OnReload registers a callback invoked after every reload attempt.
// Must be called before Watch.
func (p *Provider) OnReload(fn func(*Snapshot, error)) {
	p.onReload = fn
}

// Current returns the active snapshot.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Replace swaps in a new snapshot.
func (p *Provider) Replace(snap *Snapshot) {
	p.current.Store(snap)
}

// Reload rebuilds the snapshot from the overrides file. On failure the
// previous snapshot stays active.
func (p *Provider) Reload() error {
	snap, err := BuildFromFile(p.path)
	if err == nil {
		p.current.Store(snap)
	}
	if p.onReload != nil {
		p.onReload(snap, err)
	}
	return err
}

// Watch reloads the catalog whenever the overrides file is written, created or
// renamed into place. It blocks until ctx is canceled.
func (p *Provider) Watch(ctx context.Context) error {
	if p.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create catalog watcher: %w", err)
	}
	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			slog.Warn("Failed to close catalog watcher", "error", closeErr)
		}
	}()

	// Editors replace files by rename, so watch the directory.
	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(p.path)
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(100 * time.Millisecond)
			}

		case <-debounce:
			debounce = nil
			if err := p.Reload(); err != nil {
				slog.Warn("Catalog reload failed, keeping previous snapshot", "path", p.path, "error", err)
				continue
			}
			slog.Info("Catalog reloaded", "path", p.path, "banks", len(p.Current().Banks()))

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Catalog watcher error", "error", err)
		}
	}
}
