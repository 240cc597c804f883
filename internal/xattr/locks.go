package xattr

import "sync"

// lockArena hands out one mutex per target path. Entries live only while
// some goroutine holds or waits for them.
type lockArena struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newLockArena() *lockArena {
	return &lockArena{locks: make(map[string]*pathLock)}
}

// Lock blocks until path is exclusively held and returns the release func.
func (a *lockArena) Lock(path string) (unlock func()) {
	a.mu.Lock()
	l, ok := a.locks[path]
	if !ok {
		l = &pathLock{}
		a.locks[path] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, path)
		}
		a.mu.Unlock()
	}
}

// LockPair holds two paths at once, always acquiring them in lexical order
// so concurrent renames in opposite directions cannot deadlock.
func (a *lockArena) LockPair(p1, p2 string) (unlock func()) {
	if p1 == p2 {
		return a.Lock(p1)
	}
	if p2 < p1 {
		p1, p2 = p2, p1
	}
	u1 := a.Lock(p1)
	u2 := a.Lock(p2)
	return func() {
		u2()
		u1()
	}
}

// size reports the number of live entries.
func (a *lockArena) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
