package engine

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/infrastructure/events"
	"github.com/chanhub/chansync/internal/infrastructure/metrics"
	"github.com/chanhub/chansync/internal/p2p/chansync"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

var (
	ErrChannelNotFound    = errors.New("channel not found")
	ErrHistoryUnavailable = errors.New("store does not keep update history")
	ErrTransferNotFound   = errors.New("transfer not found")
)

// UpdateHistory is implemented by stores that record every applied update.
type UpdateHistory interface {
	GetChannelUpdates(ctx context.Context, channelAddress string) ([]protocol.ChannelUpdate, error)
}

// Publisher receives events for applied updates.
type Publisher interface {
	Publish(evt *events.Event) int
}

type Config struct {
	Store     channel.Repository
	Chain     channel.ChainReader
	Messaging channel.Messaging
	External  channel.ExternalValidation
	Signer    protocol.Signer
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
}

// Engine is the channel node of one local identity. Publisher, Metrics and
// External are optional.
type Engine struct {
	signer    protocol.Signer
	store     channel.Repository
	sync      *chansync.Service
	publisher Publisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("store is required")
	case cfg.Chain == nil:
		return nil, errors.New("chain reader is required")
	case cfg.Messaging == nil:
		return nil, errors.New("messaging is required")
	case cfg.Signer == nil:
		return nil, errors.New("signer is required")
	}
	e := &Engine{
		signer:    cfg.Signer,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger.With().Str("component", "engine").Str("identifier", cfg.Signer.Identifier()).Logger(),
	}
	e.sync = chansync.NewService(cfg.Store, cfg.Chain, cfg.Messaging, cfg.External, cfg.Signer, cfg.Logger,
		chansync.WithObserver(e.applied))
	return e, nil
}

func (e *Engine) Identifier() string {
	return e.signer.Identifier()
}

// Setup opens a channel with counterparty.
func (e *Engine) Setup(ctx context.Context, counterparty string, chainID, timeout uint64) (*protocol.ChannelState, error) {
	return e.propose(ctx, protocol.UpdateParams{
		Type: protocol.UpdateTypeSetup,
		Details: protocol.ParamsDetails{Setup: &protocol.SetupParams{
			CounterpartyIdentifier: counterparty,
			ChainID:                chainID,
			Timeout:                timeout,
		}},
	})
}

// Deposit reconciles the channel balance of assetID with the chain.
func (e *Engine) Deposit(ctx context.Context, channelAddress, assetID string) (*protocol.ChannelState, error) {
	return e.propose(ctx, protocol.UpdateParams{
		ChannelAddress: channelAddress,
		Type:           protocol.UpdateTypeDeposit,
		Details:        protocol.ParamsDetails{Deposit: &protocol.DepositParams{AssetID: assetID}},
	})
}

// CreateTransfer locks amount of the caller's balance behind lockHash.
func (e *Engine) CreateTransfer(ctx context.Context, channelAddress string, params protocol.CreateParams) (*protocol.ChannelState, error) {
	if params.Amount != nil {
		params.Amount = new(big.Int).Set(params.Amount)
	}
	return e.propose(ctx, protocol.UpdateParams{
		ChannelAddress: channelAddress,
		Type:           protocol.UpdateTypeCreate,
		Details:        protocol.ParamsDetails{Create: &params},
	})
}

// ResolveTransfer unlocks a transfer with its preimage, or cancels it when
// preImage is empty.
func (e *Engine) ResolveTransfer(ctx context.Context, channelAddress, transferID, preImage string) (*protocol.ChannelState, error) {
	return e.propose(ctx, protocol.UpdateParams{
		ChannelAddress: channelAddress,
		Type:           protocol.UpdateTypeResolve,
		Details: protocol.ParamsDetails{Resolve: &protocol.ResolveParams{
			TransferID: transferID,
			PreImage:   preImage,
		}},
	})
}

func (e *Engine) propose(ctx context.Context, params protocol.UpdateParams) (*protocol.ChannelState, error) {
	start := time.Now()
	state, err := e.sync.Outbound(ctx, params)
	e.metrics.Observe(metrics.DirectionOutbound, params.Type, start, err)
	return state, err
}

// HandleProtocolMessage processes a counterparty proposal. The answer is
// delivered through inbox.
func (e *Engine) HandleProtocolMessage(ctx context.Context, u protocol.ChannelUpdate, previous *protocol.ChannelUpdate, inbox string) error {
	start := time.Now()
	_, err := e.sync.Inbound(ctx, u, previous, inbox)
	e.metrics.Observe(metrics.DirectionInbound, u.Type, start, err)
	return err
}

func (e *Engine) GetChannelState(ctx context.Context, channelAddress string) (*protocol.ChannelState, error) {
	state, err := e.store.GetChannelState(ctx, channelAddress)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrChannelNotFound
	}
	return state, nil
}

func (e *Engine) GetChannelStates(ctx context.Context) ([]*protocol.ChannelState, error) {
	return e.store.GetChannelStates(ctx)
}

// GetChannelStateByCounterparty finds the channel with counterparty on
// chainID.
func (e *Engine) GetChannelStateByCounterparty(ctx context.Context, counterparty string, chainID uint64) (*protocol.ChannelState, error) {
	state, err := e.store.GetChannelStateByParticipants(ctx, e.Identifier(), counterparty, chainID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrChannelNotFound
	}
	return state, nil
}

// GetActiveTransfers returns the transfers locked in a channel.
func (e *Engine) GetActiveTransfers(ctx context.Context, channelAddress string) ([]protocol.Transfer, error) {
	state, err := e.GetChannelState(ctx, channelAddress)
	if err != nil {
		return nil, err
	}
	return state.ActiveTransfers, nil
}

func (e *Engine) GetTransfer(ctx context.Context, channelAddress, transferID string) (protocol.Transfer, error) {
	state, err := e.GetChannelState(ctx, channelAddress)
	if err != nil {
		return protocol.Transfer{}, err
	}
	t, ok := state.Transfer(transferID)
	if !ok {
		return protocol.Transfer{}, ErrTransferNotFound
	}
	return t, nil
}

// GetChannelUpdates returns the recorded updates of a channel.
func (e *Engine) GetChannelUpdates(ctx context.Context, channelAddress string) ([]protocol.ChannelUpdate, error) {
	history, ok := e.store.(UpdateHistory)
	if !ok {
		return nil, ErrHistoryUnavailable
	}
	return history.GetChannelUpdates(ctx, channelAddress)
}

// applied runs after every stored state change.
func (e *Engine) applied(a chansync.Applied) {
	direction := metrics.DirectionInbound
	if a.Direction == chansync.DirectionOutbound {
		direction = metrics.DirectionOutbound
	}
	if a.Synced {
		e.metrics.Synced(direction)
	}
	if a.State.LatestUpdate.Type == protocol.UpdateTypeSetup {
		e.metrics.ChannelOpened(e.Identifier())
	}

	if e.publisher == nil {
		return
	}
	evt, err := events.NewChannelEvent(e.Identifier(), a.State)
	if err != nil {
		e.logger.Warn().Err(err).Str("channel", a.State.ChannelAddress).Msg("failed to build channel event")
		return
	}
	e.publisher.Publish(evt)
}
