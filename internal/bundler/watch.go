package bundler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// skippedWatchDirs are never watched for changes
var skippedWatchDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
}

// WatchHandle controls a running watch loop
type WatchHandle struct {
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	closeErr error

	stopped atomic.Bool
}

// Cancel ends the watch loop without waiting for it. No callback starts
// after Cancel returns. Use it to end watching from inside onChange, where
// Stop would wait for the callback that is calling it.
func (h *WatchHandle) Cancel() error {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		h.cancel()
		h.closeErr = h.watcher.Close()
	})
	return h.closeErr
}

// Stop cancels the loop and waits until it has exited, including any
// rebuild or callback in flight. It is safe to call more than once. It must
// not be called from onChange; use Cancel there.
func (h *WatchHandle) Stop() error {
	err := h.Cancel()
	<-h.done
	return err
}

// Done is closed once the watch loop has exited
func (h *WatchHandle) Done() <-chan struct{} {
	return h.done
}

// Watch rebuilds on every file change under the project root and hands each
// result to onChange. Builds run one at a time on the loop goroutine.
// Events inside the output directory are ignored.
func (b *Bundler) Watch(ctx context.Context, onChange func(*Result)) (*WatchHandle, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := b.addWatchDirs(watcher, b.cfg.Root); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h := &WatchHandle{
		watcher: watcher,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go b.watchLoop(loopCtx, h, onChange)

	log.Info().Str("root", b.cfg.Root).Msg("Watching for changes")
	return h, nil
}

func (b *Bundler) watchLoop(ctx context.Context, h *WatchHandle, onChange func(*Result)) {
	defer close(h.done)

	// Rebuilds are allowed to finish when the loop is stopped
	buildCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if !b.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := b.addWatchDirs(h.watcher, event.Name); err != nil {
						log.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch new directory")
					}
				}
			}

			log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Change detected, rebuilding")
			result := b.Bundle(buildCtx)

			if h.stopped.Load() {
				return
			}
			onChange(result)

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

// relevant filters out attribute-only changes and anything the build itself
// writes
func (b *Bundler) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !b.isOutputPath(event.Name)
}

func (b *Bundler) isOutputPath(p string) bool {
	rel, err := filepath.Rel(b.cfg.OutputDir, p)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func (b *Bundler) addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && (skippedWatchDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if b.isOutputPath(p) {
			return filepath.SkipDir
		}
		if err := watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}
