// Package lock serializes work on a draft or tree across requests.
package lock

import (
	"context"
	"errors"
	"strconv"
	"sync"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive, named locks. The returned release func must be
// called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func DraftKey(draftID int64) string {
	return "draft:" + strconv.FormatInt(draftID, 10)
}

func TreeKey(treeID int64) string {
	return "tree:" + strconv.FormatInt(treeID, 10)
}

// EditorKey guards draft creation for one editor on one tree.
func EditorKey(treeID, editorID int64) string {
	return "tree:" + strconv.FormatInt(treeID, 10) + ":editor:" + strconv.FormatInt(editorID, 10)
}

// LocalLocker keeps one lock per key inside the process.
type LocalLocker struct {
	lockMu sync.Mutex
	locks  map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]chan struct{})}
}

func (l *LocalLocker) keyLock(key string) chan struct{} {
	l.lockMu.Lock()
	defer l.lockMu.Unlock()
	lock, ok := l.locks[key]
	if ok {
		return lock
	}
	lock = make(chan struct{}, 1)
	l.locks[key] = lock
	return lock
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock := l.keyLock(key)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-lock })
	}, nil
}
