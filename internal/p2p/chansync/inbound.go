package chansync

import (
	"context"
	"errors"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// Inbound processes an update proposed by the counterparty. prior is the
// counterparty's latest double-signed update, used when this side is one
// update behind. inbox identifies where the reply is delivered.
//
// On success the countersigned update is sent back and the new state is
// returned. Errors are always *protocol.InboundError.
func (s *Service) Inbound(ctx context.Context, u protocol.ChannelUpdate, prior *protocol.ChannelUpdate, inbox string) (*protocol.ChannelState, error) {
	unlock := s.locks.lock(u.ChannelAddress)
	defer unlock()

	logger := s.logger.With().
		Str("channel", u.ChannelAddress).
		Str("type", string(u.Type)).
		Uint64("nonce", u.Nonce).
		Str("inbox", inbox).
		Logger()

	stored, err := s.store.GetChannelState(ctx, u.ChannelAddress)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read channel state")
		return nil, protocol.NewInboundError(protocol.InboundStoreFailure, &u, nil, nil).WithCause("storeError", err)
	}
	current := storedNonce(stored)
	previous := latestUpdate(stored)
	retransmitted := false

	switch {
	case u.Nonce >= current+3:
		// Too far behind to sync from a single prior update. Local condition
		// only; the counterparty gets no reply.
		logger.Warn().Uint64("stored_nonce", current).Msg("channel is stale")
		return nil, protocol.NewInboundError(protocol.InboundStaleChannel, &u, stored, map[string]any{
			"storedNonce": current,
		})

	case u.Nonce < current:
		return nil, s.staleUpdate(ctx, inbox, u, stored)

	case u.Nonce == current && stored != nil:
		if !u.SameContent(stored.LatestUpdate) {
			return nil, s.staleUpdate(ctx, inbox, u, stored)
		}
		// The stored update is the reply; the one before it is not kept.
		previous = nil
		retransmitted = true
		logger.Debug().Msg("retransmitted update")

	case u.Nonce == current+2:
		if prior == nil || prior.Nonce != current+1 {
			ctxMap := map[string]any{"storedNonce": current}
			if prior != nil {
				ctxMap["priorNonce"] = prior.Nonce
			}
			return nil, s.rejectInbound(ctx, inbox, protocol.NewInboundError(protocol.InboundRestoreNeeded, &u, stored, ctxMap))
		}
		if !prior.IsDoubleSigned() {
			return nil, s.rejectInbound(ctx, inbox, protocol.NewInboundError(protocol.InboundValidationFailed, prior, stored, nil).
				WithCause("validationError", errors.New("prior update is not double signed")))
		}
		_, synced, err := s.validateApplyPersist(ctx, *prior, stored)
		if err != nil {
			logger.Warn().Err(err).Uint64("prior_nonce", prior.Nonce).Msg("failed to sync prior update")
			return nil, s.inboundApplyFailure(ctx, inbox, *prior, stored, err)
		}
		logger.Info().Uint64("prior_nonce", prior.Nonce).Msg("synced prior update")
		s.notify(DirectionInbound, true, synced)
		stored = synced
		previous = latestUpdate(stored)
	}

	signed, next, err := s.validateApplyPersist(ctx, u, stored)
	if err != nil {
		logger.Warn().Err(err).Msg("inbound update rejected")
		return nil, s.inboundApplyFailure(ctx, inbox, u, stored, err)
	}

	if err := s.messaging.RespondToProtocolMessage(ctx, inbox, signed, previous); err != nil {
		logger.Warn().Err(err).Msg("failed to respond to protocol message")
	}
	logger.Info().Msg("inbound update applied")
	if !retransmitted {
		s.notify(DirectionInbound, false, next)
	}
	return next, nil
}

func (s *Service) staleUpdate(ctx context.Context, inbox string, u protocol.ChannelUpdate, stored *protocol.ChannelState) error {
	protocolErr := protocol.NewInboundError(protocol.InboundStaleUpdate, &u, stored, map[string]any{
		"storedNonce": storedNonce(stored),
	})
	protocolErr.LatestUpdate = latestUpdate(stored)
	return s.rejectInbound(ctx, inbox, protocolErr)
}

func (s *Service) inboundApplyFailure(ctx context.Context, inbox string, u protocol.ChannelUpdate, state *protocol.ChannelState, err error) error {
	var ae *applyError
	if errors.As(err, &ae) && ae.stage == stageSave {
		// Local failure; the counterparty gets no reply and will retry.
		return protocol.NewInboundError(protocol.InboundSaveFailed, &u, state, nil).WithCause("saveChannelError", ae.err)
	}
	cause := err
	if ae != nil {
		cause = ae.err
	}
	return s.rejectInbound(ctx, inbox, protocol.NewInboundError(protocol.InboundValidationFailed, &u, state, nil).WithCause("validationError", cause))
}

// rejectInbound sends protocolErr back to the proposer and returns it.
func (s *Service) rejectInbound(ctx context.Context, inbox string, protocolErr *protocol.InboundError) error {
	if err := s.messaging.RespondWithProtocolError(ctx, inbox, protocolErr); err != nil {
		s.logger.Warn().Err(err).Str("inbox", inbox).Str("reason", string(protocolErr.Reason)).Msg("failed to send protocol error")
	}
	return protocolErr
}
