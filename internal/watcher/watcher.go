// Package watcher keeps the index in sync with directories on disk. A
// Watcher turns fsnotify events into debounced change and remove callbacks;
// the Service wires those callbacks to the ingestion pipeline.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultDebounce is how long a path must stay quiet before its change
// callback fires. Editors and download tools write files in bursts; one
// callback per burst is enough.
const defaultDebounce = 400 * time.Millisecond

// Watcher watches directory roots and invokes callbacks for files that
// changed or disappeared. Roots are fixed at construction and created on
// Start when missing. All callbacks run off the caller's goroutine.
type Watcher struct {
	roots      []string
	extensions []string
	recursive  bool
	onChange   func(path string)
	onRemove   func(path string)
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	pending map[string]*time.Timer
	started bool

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger used for event-level output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce overrides the quiet period before a change callback fires.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// New creates a watcher over roots. Files are filtered by extension (empty
// matches everything); when recursive is true, subdirectories are watched
// too, including ones created after Start.
func New(roots, extensions []string, recursive bool, onChange, onRemove func(path string), opts ...Option) *Watcher {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		cleaned = append(cleaned, filepath.Clean(root))
	}
	w := &Watcher{
		roots:      cleaned,
		extensions: extensions,
		recursive:  recursive,
		onChange:   onChange,
		onRemove:   onRemove,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		pending:    make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start registers the roots and begins handling events on a background
// goroutine until ctx is cancelled or Stop is called. Roots that do not
// exist yet are created. A second Start is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.fs = fw
	w.started = true
	w.mu.Unlock()

	w.logger.Debug("watcher starting",
		zap.Strings("roots", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))

	for _, root := range w.roots {
		if err := w.addRoot(fw, root); err != nil {
			_ = fw.Close()
			return fmt.Errorf("watch %s: %w", root, err)
		}
	}
	go w.run(ctx, fw)
	return nil
}

// addRoot registers root with the fsnotify watcher, creating it when absent
// and walking into subdirectories when recursive.
func (w *Watcher) addRoot(fw *fsnotify.Watcher, root string) error {
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return err
		}
	}
	if !w.recursive {
		return fw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}

// run owns the event loop. It takes the fsnotify watcher as a parameter so
// Stop can close it without racing a field read here; a closed watcher ends
// the loop through its closed channels.
func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(fw, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, ev fsnotify.Event) {
	path := ev.Name
	if !w.underRoot(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))

	switch {
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.watchNewDirectory(fw, path)
			return
		}
		if matchExtension(path, w.extensions) {
			w.scheduleChange(path)
		}
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		// A rename leaves nothing at the old path; the new name arrives as
		// its own create event.
		w.cancelPending(path)
		if matchExtension(path, w.extensions) && w.onRemove != nil {
			w.onRemove(path)
		}
	}
}

// watchNewDirectory registers a directory created inside a watched root and
// schedules the files already in it. When a tree is moved in whole, its
// files never get individual create events, so the walk stands in for them.
func (w *Watcher) watchNewDirectory(fw *fsnotify.Watcher, dir string) {
	if !w.recursive {
		return
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := fw.Add(path); err != nil {
				w.logger.Warn("watch new directory", zap.String("path", path), zap.Error(err))
			}
			return nil
		}
		if matchExtension(path, w.extensions) {
			w.scheduleChange(path)
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("walk new directory", zap.String("path", dir), zap.Error(err))
	}
}

// scheduleChange arms (or re-arms) the debounce timer for path. The change
// callback fires once the path has been quiet for the debounce period.
func (w *Watcher) scheduleChange(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case <-w.done:
			return
		default:
		}
		if w.onChange != nil {
			w.onChange(path)
		}
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) underRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range w.roots {
		if root == clean || inDir(root, clean) {
			return true
		}
	}
	return false
}

// inDir reports whether path sits inside dir. Both must already be clean.
func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// matchExtension reports whether path's extension is in extensions. The
// comparison ignores case and a leading dot; an empty list matches all.
func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// SyncExisting invokes the change callback inline for every matching file
// currently under the roots. Call it after Start to pick up files that
// appeared or changed while the watcher was not running.
func (w *Watcher) SyncExisting() {
	for _, root := range w.roots {
		w.syncDirectory(root)
	}
}

func (w *Watcher) syncDirectory(root string) {
	w.logger.Debug("watcher syncing directory", zap.String("root", root))
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !w.recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, w.extensions) && w.onChange != nil {
			w.onChange(path)
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("sync directory", zap.String("root", root), zap.Error(err))
	}
}

// Stop cancels pending debounce timers and releases the fsnotify watcher.
// Callbacks already running are not interrupted. Stop is idempotent; a
// stopped watcher cannot be restarted.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		for path, t := range w.pending {
			t.Stop()
			delete(w.pending, path)
		}
		fw := w.fs
		w.mu.Unlock()
		if fw != nil {
			_ = fw.Close()
		}
	})
}
