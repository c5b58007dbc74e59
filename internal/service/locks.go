package service

import "sync"

// convLocks hands out one mutex per conversation and forgets it once nobody
// holds or waits on it.
type convLocks struct {
	mu    sync.Mutex
	locks map[int64]*convLock
}

type convLock struct {
	sync.Mutex
	refs int
}

func newConvLocks() *convLocks {
	return &convLocks{locks: make(map[int64]*convLock)}
}

// lock blocks until the conversation's mutex is held and returns its release.
func (l *convLocks) lock(conversationID int64) func() {
	l.mu.Lock()
	cl, ok := l.locks[conversationID]
	if !ok {
		cl = &convLock{}
		l.locks[conversationID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	cl.Lock()
	return func() {
		cl.Unlock()
		l.mu.Lock()
		cl.refs--
		if cl.refs == 0 {
			delete(l.locks, conversationID)
		}
		l.mu.Unlock()
	}
}

func (l *convLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
