package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// capture collects callback paths safely across goroutines.
type capture struct {
	mu    sync.Mutex
	paths []string
}

func (c *capture) add(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *capture) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func (c *capture) has(suffix string) bool {
	for _, p := range c.snapshot() {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func startWatcher(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
}

func TestWatcher_DebouncedChangeEvent(t *testing.T) {
	dir := t.TempDir()
	var changed capture
	w := New([]string{dir}, []string{".md"}, true, changed.add, nil, WithDebounce(20*time.Millisecond))
	startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "doc.md"), "hello")
	writeFile(t, filepath.Join(dir, "skip.bin"), "ignored")

	waitFor(t, "change for doc.md", func() bool { return changed.has("doc.md") })
	time.Sleep(100 * time.Millisecond)
	if changed.has("skip.bin") {
		t.Errorf("non-matching extension produced a change: %v", changed.snapshot())
	}
}

func TestWatcher_CoalescesWriteBursts(t *testing.T) {
	dir := t.TempDir()
	var changed capture
	w := New([]string{dir}, []string{".md"}, true, changed.add, nil, WithDebounce(200*time.Millisecond))
	startWatcher(t, w)

	path := filepath.Join(dir, "burst.md")
	for i := 0; i < 5; i++ {
		writeFile(t, path, strings.Repeat("x", i+1))
	}

	waitFor(t, "change for burst.md", func() bool { return changed.has("burst.md") })
	time.Sleep(300 * time.Millisecond)
	if n := changed.count(); n != 1 {
		t.Errorf("burst of writes produced %d changes, want 1", n)
	}
}

func TestWatcher_RemoveFiresRemoveCallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doomed.md")
	writeFile(t, path, "short lived")

	var changed, removed capture
	w := New([]string{dir}, []string{".md"}, true, changed.add, removed.add, WithDebounce(20*time.Millisecond))
	startWatcher(t, w)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "remove for doomed.md", func() bool { return removed.has("doomed.md") })
	if changed.count() != 0 {
		t.Errorf("remove produced change callbacks: %v", changed.snapshot())
	}
}

func TestWatcher_RenameRemovesOldPath(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "before.md")
	writeFile(t, oldPath, "movable")

	var changed, removed capture
	w := New([]string{dir}, []string{".md"}, true, changed.add, removed.add, WithDebounce(20*time.Millisecond))
	startWatcher(t, w)

	newPath := filepath.Join(dir, "after.md")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "remove for before.md", func() bool { return removed.has("before.md") })
	waitFor(t, "change for after.md", func() bool { return changed.has("after.md") })
}

func TestWatcher_MovedInDirectorySchedulesContents(t *testing.T) {
	root := t.TempDir()
	staging := filepath.Join(t.TempDir(), "batch")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(staging, "a.md"), "first")
	writeFile(t, filepath.Join(staging, "b.md"), "second")
	writeFile(t, filepath.Join(staging, "skip.bin"), "binary")

	var changed capture
	w := New([]string{root}, []string{".md"}, true, changed.add, nil, WithDebounce(20*time.Millisecond))
	startWatcher(t, w)

	// Moving a populated directory in emits one create event for the
	// directory and none for the files inside.
	if err := os.Rename(staging, filepath.Join(root, "batch")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "changes for moved-in files", func() bool {
		return changed.has("a.md") && changed.has("b.md")
	})
	if changed.has("skip.bin") {
		t.Errorf("non-matching extension indexed from moved directory: %v", changed.snapshot())
	}
}

func TestWatcher_NonRecursiveIgnoresSubdirectories(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	var changed capture
	w := New([]string{root}, []string{".md"}, false, changed.add, nil, WithDebounce(20*time.Millisecond))
	startWatcher(t, w)

	writeFile(t, filepath.Join(root, "top.md"), "watched")
	writeFile(t, filepath.Join(sub, "deep.md"), "not watched")

	waitFor(t, "change for top.md", func() bool { return changed.has("top.md") })
	time.Sleep(150 * time.Millisecond)
	if changed.has("deep.md") {
		t.Errorf("non-recursive watcher saw a subdirectory file: %v", changed.snapshot())
	}
}

func TestWatcher_SyncExisting(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(root, "a.md"), "top level")
	writeFile(t, filepath.Join(sub, "b.md"), "nested")
	writeFile(t, filepath.Join(root, "skip.bin"), "binary")

	var changed capture
	w := New([]string{root}, []string{".md"}, true, changed.add, nil)
	startWatcher(t, w)
	w.SyncExisting()

	if !changed.has("a.md") || !changed.has("b.md") {
		t.Errorf("sync missed files: %v", changed.snapshot())
	}
	if changed.has("skip.bin") {
		t.Errorf("sync reported non-matching file: %v", changed.snapshot())
	}
	if n := changed.count(); n != 2 {
		t.Errorf("sync reported %d files, want 2", n)
	}

	var flat capture
	fw := New([]string{root}, []string{".md"}, false, flat.add, nil)
	fw.SyncExisting()
	if flat.has("b.md") {
		t.Errorf("non-recursive sync descended into subdirectory: %v", flat.snapshot())
	}
	if n := flat.count(); n != 1 {
		t.Errorf("non-recursive sync reported %d files, want 1", n)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "notes", "inbox")

	w := New([]string{root}, []string{".md"}, true, nil, nil)
	startWatcher(t, w)

	info, err := os.Stat(root)
	if err != nil {
		t.Fatalf("root missing after Start: %v", err)
	}
	if !info.IsDir() {
		t.Errorf("root is not a directory")
	}
}

func TestWatcher_StopCancelsPendingChanges(t *testing.T) {
	dir := t.TempDir()
	var changed capture
	w := New([]string{dir}, []string{".md"}, true, changed.add, nil, WithDebounce(100*time.Millisecond))
	startWatcher(t, w)

	writeFile(t, filepath.Join(dir, "late.md"), "never delivered")
	w.Stop()

	time.Sleep(250 * time.Millisecond)
	if n := changed.count(); n != 0 {
		t.Errorf("callbacks fired after Stop: %v", changed.snapshot())
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.md", []string{".md"}, true},
		{"/a/b.MD", []string{".md"}, true},
		{"/a/b.md", []string{"md"}, true},
		{"/a/b.txt", []string{".md"}, false},
		{"/a/b.md", []string{".txt", ".md"}, true},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
		{"/a/b", []string{".md"}, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.md", true},
		{"/tmp/a", "/tmp/a/b/c.md", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/ab", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}
