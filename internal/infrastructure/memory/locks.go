package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

type lockMode int

const (
	lockShared lockMode = iota + 1
	lockExclusive
)

// keyedLocks hands out one reader/writer lock per key. Waiting honours ctx.
type keyedLocks struct {
	mu     sync.Mutex
	states map[string]*lockState
}

type lockState struct {
	readers int
	writer  bool
	// changed is closed and replaced on every release.
	changed chan struct{}
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{states: make(map[string]*lockState)}
}

// acquire takes key in mode. upgrade means the caller already holds it shared.
func (l *keyedLocks) acquire(ctx context.Context, key string, mode lockMode, upgrade bool) error {
	for {
		l.mu.Lock()
		st, ok := l.states[key]
		if !ok {
			st = &lockState{changed: make(chan struct{})}
			l.states[key] = st
		}
		others := st.readers
		if upgrade {
			others--
		}
		switch {
		case mode == lockShared && !st.writer:
			st.readers++
			l.mu.Unlock()
			return nil
		case mode == lockExclusive && !st.writer && others == 0:
			st.readers = 0
			st.writer = true
			l.mu.Unlock()
			return nil
		}
		wait := st.changed
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		}
	}
}

func (l *keyedLocks) release(key string, mode lockMode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.states[key]
	if !ok {
		return
	}
	if mode == lockExclusive {
		st.writer = false
	} else if st.readers > 0 {
		st.readers--
	}
	close(st.changed)
	st.changed = make(chan struct{})
	if st.readers == 0 && !st.writer {
		delete(l.states, key)
	}
}

func capacityLockKey(k domain.CapacityKey) string {
	return fmt.Sprintf("cap:%d:%s", k.ResourceTypeID, k.Date.Format(time.DateOnly))
}

func bookingLockKey(id uuid.UUID) string {
	return "bk:" + id.String()
}

func customerLockKey(email string) string {
	return "cu:" + email
}

func resourceTypeLockKey(id int64) string {
	return fmt.Sprintf("rt:%d", id)
}

func resourceTypeNameLockKey(name string) string {
	return "rtn:" + strings.ToLower(strings.TrimSpace(name))
}
