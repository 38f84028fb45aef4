// Package session keeps the short-lived "what is this user expected to send
// next" markers. Entries are removed when the awaited input arrives, on
// /cancel, or when their TTL lapses; nothing survives a restart of the
// memory backend.
package session

import (
	"context"
	"sync"
	"time"
)

// Awaiting tags the input a user is expected to send next.
type Awaiting string

const (
	AwaitNothing        Awaiting = ""
	AwaitBirthday       Awaiting = "birthday"
	AwaitSupportMessage Awaiting = "support"
)

// State is the pending conversation step for one user.
type State struct {
	Awaiting Awaiting `json:"awaiting"`
	// Category is the support category chosen from the menu.
	Category string `json:"category,omitempty"`
}

// Store holds at most one State per user.
type Store interface {
	Set(ctx context.Context, userID int64, state State) error
	// Get returns the state; ok is false when nothing is pending.
	Get(ctx context.Context, userID int64) (state State, ok bool, err error)
	Clear(ctx context.Context, userID int64) error
}

type memoryEntry struct {
	state   State
	expires time.Time
}

// Memory is an in-process Store. Expired entries are dropped when read and
// swept out on Set at most once per TTL.
type Memory struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	entries   map[int64]memoryEntry
	nextPrune time.Time
}

// NewMemory returns a Memory store whose entries expire after ttl; ttl <= 0
// keeps them until cleared.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]memoryEntry),
	}
}

func (m *Memory) Set(_ context.Context, userID int64, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{state: state}
	if m.ttl > 0 {
		now := m.now()
		entry.expires = now.Add(m.ttl)
		m.prune(now)
	}
	m.entries[userID] = entry
	return nil
}

func (m *Memory) prune(now time.Time) {
	if now.Before(m.nextPrune) {
		return
	}
	for id, entry := range m.entries {
		if !now.Before(entry.expires) {
			delete(m.entries, id)
		}
	}
	m.nextPrune = now.Add(m.ttl)
}

func (m *Memory) Get(_ context.Context, userID int64) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[userID]
	if !ok {
		return State{}, false, nil
	}
	if !entry.expires.IsZero() && !m.now().Before(entry.expires) {
		delete(m.entries, userID)
		return State{}, false, nil
	}
	return entry.state, true, nil
}

func (m *Memory) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}
