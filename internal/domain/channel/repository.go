package channel

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository,Messaging,ChainReader,ExternalValidation

import (
	"context"
	"errors"
	"math/big"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// ErrNonceRegression is returned when a save would lower a channel's nonce.
var ErrNonceRegression = errors.New("channel nonce regression")

// Repository defines channel state persistence. Reads return nil, nil for
// unknown channels; writes are atomic per channel.
type Repository interface {
	GetChannelState(ctx context.Context, channelAddress string) (*protocol.ChannelState, error)
	SaveChannelState(ctx context.Context, state *protocol.ChannelState) error
	GetChannelStates(ctx context.Context) ([]*protocol.ChannelState, error)
	GetChannelStateByParticipants(ctx context.Context, alice, bob string, chainID uint64) (*protocol.ChannelState, error)
}

// ProtocolResponse is what the counterparty returns for a proposed update.
type ProtocolResponse struct {
	Update         protocol.ChannelUpdate  `json:"update"`
	PreviousUpdate *protocol.ChannelUpdate `json:"previousUpdate,omitempty"`
}

// Messaging is the request/response channel to the counterparty. A rejected
// proposal surfaces from SendProtocolMessage as a *protocol.InboundError.
type Messaging interface {
	SendProtocolMessage(ctx context.Context, update protocol.ChannelUpdate, previous *protocol.ChannelUpdate) (*ProtocolResponse, error)
	RespondToProtocolMessage(ctx context.Context, inbox string, update protocol.ChannelUpdate, previous *protocol.ChannelUpdate) error
	RespondWithProtocolError(ctx context.Context, inbox string, protocolErr *protocol.InboundError) error
}

// ChainReader reads on-chain deposit totals.
type ChainReader interface {
	GetTotalDepositedAlice(ctx context.Context, channelAddress, assetID string) (*big.Int, error)
	GetChannelOnchainBalance(ctx context.Context, channelAddress, assetID string) (*big.Int, error)
}

// ExternalValidation holds application specific rules applied on top of the
// protocol checks. transfer is nil for setup and deposit.
type ExternalValidation interface {
	ValidateOutbound(ctx context.Context, params protocol.UpdateParams, state *protocol.ChannelState, transfer *protocol.Transfer) error
	ValidateInbound(ctx context.Context, update protocol.ChannelUpdate, state *protocol.ChannelState, transfer *protocol.Transfer) error
}
