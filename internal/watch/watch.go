// Package watch triggers incremental rebuilds when the source tree changes.
// Fingerprint-based caching makes a rebuild after a small edit cheap: only
// the changed subtree path misses the cache.
package watch

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher debounces filesystem events and invokes a rebuild callback once
// the tree has been quiet for Debounce.
type Watcher struct {
	// Debounce is the quiet period before a rebuild; <=0 means 500ms.
	Debounce time.Duration
	// SkipDirs lists directory basenames never watched (VCS, deps).
	SkipDirs []string
}

var defaultSkipDirs = []string{
	".git", ".hg", ".svn", "node_modules", "vendor", "__pycache__",
	"venv", ".venv", "target", "build", "dist", ".next", ".cache",
}

// Run watches root recursively and calls rebuild after each debounced burst
// of changes. It blocks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context, root string, rebuild func(context.Context)) error {
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	skip := w.SkipDirs
	if skip == nil {
		skip = defaultSkipDirs
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	addTree := func(dir string) {
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			base := filepath.Base(path)
			if path != dir && (strings.HasPrefix(base, ".") || contains(skip, base)) {
				return filepath.SkipDir
			}
			_ = fw.Add(path)
			return nil
		})
	}
	addTree(root)

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op.Has(fsnotify.Create) {
				// New directories need their own watches.
				addTree(ev.Name)
			}
			schedule()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			_ = err // transient watch errors do not stop the loop
		case <-fire:
			rebuild(ctx)
		}
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
