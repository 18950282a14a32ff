package ingest

import "sync"

// pathLocks serializes work per source path so two jobs never interleave a
// replace on the same path. Entries are kept for the life of the process; the
// set of distinct paths a single run touches stays small.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *pathLocks) lock(path string) *sync.Mutex {
	p.mu.Lock()
	l, ok := p.locks[path]
	if !ok {
		l = &sync.Mutex{}
		p.locks[path] = l
	}
	p.mu.Unlock()
	l.Lock()
	return l
}
