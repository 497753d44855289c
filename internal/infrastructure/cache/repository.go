package cache

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

var ErrNoHistory = errors.New("backing store does not keep update history")

const (
	DefaultNumCounters = 1e5
	DefaultMaxCost     = 1e4
	DefaultBufferItems = 64
)

// Repository is a read-through cache in front of a channel.Repository.
// Only single-channel reads are cached; list and participant queries go to
// the backing store. Cached states are cloned on every read and write.
//
// Every save bumps a per-channel generation. A load only fills the cache
// when no save happened while it was reading, so a slow read can never put
// back a nonce older than the stored one.
type Repository struct {
	next  channel.Repository
	cache *ristretto.Cache[string, *protocol.ChannelState]
	sfg   singleflight.Group

	mu   sync.Mutex
	gens map[string]uint64
}

// New wraps next with a cache holding at most maxEntries channel states.
func New(next channel.Repository, maxEntries int64) (*Repository, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxCost
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *protocol.ChannelState]{
		NumCounters:        DefaultNumCounters,
		MaxCost:            maxEntries,
		BufferItems:        DefaultBufferItems,
		IgnoreInternalCost: true,
		Cost: func(*protocol.ChannelState) int64 {
			return 1
		},
	})
	if err != nil {
		return nil, err
	}
	return &Repository{next: next, cache: c, gens: map[string]uint64{}}, nil
}

func (r *Repository) GetChannelState(ctx context.Context, channelAddress string) (*protocol.ChannelState, error) {
	k := cacheKey(channelAddress)
	if state, ok := r.cache.Get(k); ok {
		return state.Clone(), nil
	}

	res, err, _ := r.sfg.Do(k, func() (interface{}, error) {
		gen := r.generation(k)
		state, err := r.next.GetChannelState(ctx, channelAddress)
		if err != nil {
			return nil, err
		}
		// absence is not cached; the next setup must see a fresh read
		if state != nil {
			r.fill(k, gen, state)
		}
		return state, nil
	})
	if err != nil {
		return nil, err
	}
	state, _ := res.(*protocol.ChannelState)
	if state == nil {
		return nil, nil
	}
	return state.Clone(), nil
}

// SaveChannelState writes through and refreshes the cached copy. A failed
// write evicts the entry so the next read goes to the store.
func (r *Repository) SaveChannelState(ctx context.Context, state *protocol.ChannelState) error {
	k := cacheKey(state.ChannelAddress)
	err := r.next.SaveChannelState(ctx, state)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.gens[k]++
	r.cache.Del(k)
	if err != nil {
		r.cache.Wait()
		return err
	}
	// a dropped Set leaves the entry absent, never stale
	r.cache.Set(k, state.Clone(), 0)
	r.cache.Wait()
	return nil
}

func (r *Repository) generation(k string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[k]
}

// fill caches a loaded state unless a save ran since gen was read.
func (r *Repository) fill(k string, gen uint64, state *protocol.ChannelState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[k] != gen {
		return
	}
	r.cache.Set(k, state.Clone(), 0)
	r.cache.Wait()
}

func (r *Repository) GetChannelStates(ctx context.Context) ([]*protocol.ChannelState, error) {
	return r.next.GetChannelStates(ctx)
}

func (r *Repository) GetChannelStateByParticipants(ctx context.Context, alice, bob string, chainID uint64) (*protocol.ChannelState, error) {
	return r.next.GetChannelStateByParticipants(ctx, alice, bob, chainID)
}

// GetChannelUpdates delegates to the backing store when it keeps history.
func (r *Repository) GetChannelUpdates(ctx context.Context, channelAddress string) ([]protocol.ChannelUpdate, error) {
	history, ok := r.next.(interface {
		GetChannelUpdates(ctx context.Context, channelAddress string) ([]protocol.ChannelUpdate, error)
	})
	if !ok {
		return nil, ErrNoHistory
	}
	return history.GetChannelUpdates(ctx, channelAddress)
}

// Close releases the cache goroutines.
func (r *Repository) Close() {
	r.cache.Close()
}

func cacheKey(channelAddress string) string {
	return strings.ToLower(strings.TrimSpace(channelAddress))
}
