package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// Store is an in-memory channel.Repository. States are copied on the way in
// and out so callers never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	channels map[string]*protocol.ChannelState
	updates  map[string][]protocol.ChannelUpdate
}

func New() *Store {
	return &Store{
		channels: make(map[string]*protocol.ChannelState),
		updates:  make(map[string][]protocol.ChannelUpdate),
	}
}

func key(channelAddress string) string {
	return strings.ToLower(strings.TrimSpace(channelAddress))
}

func (s *Store) GetChannelState(_ context.Context, channelAddress string) (*protocol.ChannelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.channels[key(channelAddress)]
	if !ok {
		return nil, nil
	}
	return state.Clone(), nil
}

func (s *Store) SaveChannelState(_ context.Context, state *protocol.ChannelState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(state.ChannelAddress)
	if existing, ok := s.channels[k]; ok && state.Nonce < existing.Nonce {
		return channel.ErrNonceRegression
	}
	s.channels[k] = state.Clone()
	if latest := state.LatestUpdate; !latest.IsEmpty() {
		history := s.updates[k]
		if n := len(history); n == 0 || history[n-1].Nonce < latest.Nonce {
			s.updates[k] = append(history, latest.Clone())
		}
	}
	return nil
}

// GetChannelUpdates returns the updates recorded for a channel in nonce
// order.
func (s *Store) GetChannelUpdates(_ context.Context, channelAddress string) ([]protocol.ChannelUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.updates[key(channelAddress)]
	out := make([]protocol.ChannelUpdate, 0, len(history))
	for _, u := range history {
		out = append(out, u.Clone())
	}
	return out, nil
}

func (s *Store) GetChannelStates(_ context.Context) ([]*protocol.ChannelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*protocol.ChannelState, 0, len(s.channels))
	for _, state := range s.channels {
		out = append(out, state.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelAddress < out[j].ChannelAddress })
	return out, nil
}

func (s *Store) GetChannelStateByParticipants(_ context.Context, alice, bob string, chainID uint64) (*protocol.ChannelState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, state := range s.channels {
		if state.ChainID != chainID {
			continue
		}
		if (state.Alice == alice && state.Bob == bob) || (state.Alice == bob && state.Bob == alice) {
			return state.Clone(), nil
		}
	}
	return nil, nil
}
