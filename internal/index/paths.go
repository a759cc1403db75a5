package index

import (
	"path/filepath"
	"strings"
	"sync"
)

// pathResolver maps caller paths to absolute file paths and record keys.
// Keys are slash-separated and relative to root, so an index can be moved
// with its project.
type pathResolver struct {
	root string
}

func (p pathResolver) resolve(path string) (abs, key string) {
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(p.root, path)
	}
	rel, err := filepath.Rel(p.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return abs, filepath.ToSlash(abs)
	}
	return abs, filepath.ToSlash(rel)
}

// abs returns the absolute path for a record key.
func (p pathResolver) abs(key string) string {
	if filepath.IsAbs(filepath.FromSlash(key)) {
		return filepath.FromSlash(key)
	}
	return filepath.Join(p.root, filepath.FromSlash(key))
}

// pathLocks serializes work per record key. Entries are dropped once no
// goroutine holds or waits for them.
type pathLocks struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{locks: make(map[string]*pathLock)}
}

// lock acquires key and returns its release function.
func (p *pathLocks) lock(key string) func() {
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pathLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

func (p *pathLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
