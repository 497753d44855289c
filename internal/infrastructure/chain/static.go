package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
)

var ErrInvalidAmount = errors.New("deposit amount must be positive")

type assetKey struct {
	channel string
	asset   string
}

// StaticReader is an in-memory channel.ChainReader. Deposits are recorded
// explicitly; nothing is read from a network.
type StaticReader struct {
	mu      sync.RWMutex
	alice   map[assetKey]*big.Int
	onchain map[assetKey]*big.Int
}

func NewStaticReader() *StaticReader {
	return &StaticReader{
		alice:   make(map[assetKey]*big.Int),
		onchain: make(map[assetKey]*big.Int),
	}
}

func key(channelAddress, assetID string) assetKey {
	return assetKey{
		channel: strings.ToLower(strings.TrimSpace(channelAddress)),
		asset:   strings.ToLower(strings.TrimSpace(assetID)),
	}
}

// Deposit records an on-chain deposit into the channel by either party.
func (r *StaticReader) Deposit(channelAddress, assetID string, byAlice bool, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	k := key(channelAddress, assetID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onchain[k] = new(big.Int).Add(valueOf(r.onchain[k]), amount)
	if byAlice {
		r.alice[k] = new(big.Int).Add(valueOf(r.alice[k]), amount)
	}
	return nil
}

func (r *StaticReader) GetTotalDepositedAlice(_ context.Context, channelAddress, assetID string) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return new(big.Int).Set(valueOf(r.alice[key(channelAddress, assetID)])), nil
}

func (r *StaticReader) GetChannelOnchainBalance(_ context.Context, channelAddress, assetID string) (*big.Int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return new(big.Int).Set(valueOf(r.onchain[key(channelAddress, assetID)])), nil
}

func valueOf(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
