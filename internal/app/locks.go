package app

import "sync"

// lockTable hands out one RWMutex per key and forgets it once nobody holds it.
// Lifecycle transitions take a session's lock exclusively; answer submissions
// share it so different participants proceed in parallel but never interleave
// with an advance.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.RWMutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*keyLock)}
}

// lock acquires key exclusively and returns the release func.
func (t *lockTable) lock(key string) func() {
	l := t.ref(key)
	l.Lock()
	return func() {
		l.Unlock()
		t.unref(key)
	}
}

// rlock acquires key in shared mode and returns the release func.
func (t *lockTable) rlock(key string) func() {
	l := t.ref(key)
	l.RLock()
	return func() {
		l.RUnlock()
		t.unref(key)
	}
}

func (t *lockTable) ref(key string) *keyLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{}
		t.locks[key] = l
	}
	l.refs++
	return l
}

func (t *lockTable) unref(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(t.locks, key)
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
