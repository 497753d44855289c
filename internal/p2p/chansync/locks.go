package chansync

import (
	"strings"
	"sync"
)

// channelLocks serialises work per channel address. Entries are dropped once
// no goroutine holds or waits on them.
type channelLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newChannelLocks() *channelLocks {
	return &channelLocks{entries: make(map[string]*lockEntry)}
}

// lock blocks until the channel is free and returns its release func.
func (l *channelLocks) lock(channelAddress string) func() {
	key := strings.ToLower(strings.TrimSpace(channelAddress))

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

func (l *channelLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
