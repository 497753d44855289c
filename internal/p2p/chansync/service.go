package chansync

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_chansync.go -package=mocks . Validator,Generator

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/p2p/protocol"
	"github.com/chanhub/chansync/internal/p2p/update"
	"github.com/chanhub/chansync/internal/p2p/validate"
)

// Validator checks local params and counterparty updates.
type Validator interface {
	ValidateParams(ctx context.Context, params protocol.UpdateParams, state *protocol.ChannelState) error
	ValidateAndApplyInbound(ctx context.Context, u protocol.ChannelUpdate, state *protocol.ChannelState) (protocol.ChannelUpdate, *protocol.ChannelState, error)
}

// Generator builds a locally signed update from params.
type Generator interface {
	Generate(ctx context.Context, params protocol.UpdateParams, state *protocol.ChannelState) (protocol.ChannelUpdate, *protocol.ChannelState, error)
}

// Direction tells whether a sync happened while handling a counterparty
// proposal or a local one.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Applied describes a state the service has just stored at a new nonce.
// Synced is set for a missed update recovered before handling a proposal.
type Applied struct {
	Direction Direction
	Synced    bool
	State     *protocol.ChannelState
}

// Observer is called after every stored state change. Retransmitted
// updates do not produce a call.
type Observer func(Applied)

// Service keeps one identity's channels in sync with their counterparties.
type Service struct {
	store     channel.Repository
	messaging channel.Messaging
	signer    protocol.Signer
	validator Validator
	generator Generator
	observer  Observer
	locks     *channelLocks
	logger    zerolog.Logger
}

type Option func(*Service)

func WithValidator(v Validator) Option {
	return func(s *Service) { s.validator = v }
}

func WithGenerator(g Generator) Option {
	return func(s *Service) { s.generator = g }
}

func WithObserver(fn Observer) Option {
	return func(s *Service) { s.observer = fn }
}

// NewService creates a sync service. external may be nil.
func NewService(
	store channel.Repository,
	chain channel.ChainReader,
	messaging channel.Messaging,
	external channel.ExternalValidation,
	signer protocol.Signer,
	logger zerolog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		store:     store,
		messaging: messaging,
		signer:    signer,
		validator: validate.NewValidator(chain, external, signer),
		generator: update.NewGenerator(chain, signer),
		locks:     newChannelLocks(),
		logger:    logger.With().Str("service", "chansync").Str("identifier", signer.Identifier()).Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Identifier() string {
	return s.signer.Identifier()
}

func (s *Service) notify(direction Direction, synced bool, state *protocol.ChannelState) {
	if s.observer != nil {
		s.observer(Applied{Direction: direction, Synced: synced, State: state.Clone()})
	}
}
