package chansync

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// Outbound proposes the update described by params to the counterparty and
// persists the double-signed result. If the counterparty is exactly one
// update ahead, that update is synced and the proposal retried once.
// Errors are always *protocol.OutboundError.
func (s *Service) Outbound(ctx context.Context, params protocol.UpdateParams) (*protocol.ChannelState, error) {
	address := s.outboundAddress(params)
	unlock := s.locks.lock(address)
	defer unlock()

	logger := s.logger.With().
		Str("channel", address).
		Str("type", string(params.Type)).
		Logger()

	state, err := s.store.GetChannelState(ctx, address)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read channel state")
		return nil, protocol.NewOutboundError(protocol.OutboundStoreFailure, &params, nil, nil).WithCause("storeError", err)
	}
	if params.Type != protocol.UpdateTypeSetup && state == nil {
		return nil, protocol.NewOutboundError(protocol.OutboundChannelNotFound, &params, nil, map[string]any{
			"channelAddress": address,
		})
	}

	u, next, err := s.prepare(ctx, params, state)
	if err != nil {
		return nil, err
	}

	resp, err := s.messaging.SendProtocolMessage(ctx, u, latestUpdate(state))
	if err != nil {
		var counterpartyErr *protocol.InboundError
		if !errors.As(err, &counterpartyErr) || counterpartyErr.Reason != protocol.InboundStaleUpdate || counterpartyErr.LatestUpdate == nil {
			logger.Warn().Err(err).Msg("counterparty rejected update")
			return nil, counterpartyFailure(params, state, err)
		}

		state, err = s.syncFromCounterparty(ctx, logger, params, state, *counterpartyErr.LatestUpdate)
		if err != nil {
			return nil, err
		}
		u, next, err = s.prepare(ctx, params, state)
		if err != nil {
			return nil, err
		}
		resp, err = s.messaging.SendProtocolMessage(ctx, u, latestUpdate(state))
		if err != nil {
			logger.Warn().Err(err).Msg("counterparty rejected update after sync")
			return nil, counterpartyFailure(params, state, err)
		}
	}

	if err := verifyAck(u, resp, next); err != nil {
		logger.Warn().Err(err).Msg("counterparty returned bad update")
		return nil, protocol.NewOutboundError(protocol.OutboundBadSignatures, &params, state, nil).WithCause("signatureError", err)
	}
	next.LatestUpdate = resp.Update.Clone()

	if err := s.store.SaveChannelState(ctx, next); err != nil {
		logger.Error().Err(err).Msg("failed to save channel state")
		return nil, protocol.NewOutboundError(protocol.OutboundSaveFailed, &params, next, nil).WithCause("saveChannelError", err)
	}
	logger.Info().Uint64("nonce", next.Nonce).Msg("outbound update applied")
	s.notify(DirectionOutbound, false, next)
	return next, nil
}

func (s *Service) outboundAddress(params protocol.UpdateParams) string {
	if params.Type == protocol.UpdateTypeSetup && params.Details.Setup != nil {
		setup := params.Details.Setup
		return protocol.DeriveChannelAddress(s.signer.Identifier(), strings.TrimSpace(setup.CounterpartyIdentifier), setup.ChainID)
	}
	return params.ChannelAddress
}

// prepare validates params against state and generates the signed update.
func (s *Service) prepare(ctx context.Context, params protocol.UpdateParams, state *protocol.ChannelState) (protocol.ChannelUpdate, *protocol.ChannelState, error) {
	if err := s.validator.ValidateParams(ctx, params, state); err != nil {
		return protocol.ChannelUpdate{}, nil, protocol.NewOutboundError(protocol.OutboundInvalidParams, &params, state, nil).WithCause("validationError", err)
	}
	u, next, err := s.generator.Generate(ctx, params, state)
	if err != nil {
		var oe *protocol.OutboundError
		if errors.As(err, &oe) {
			return protocol.ChannelUpdate{}, nil, oe
		}
		return protocol.ChannelUpdate{}, nil, protocol.NewOutboundError(protocol.OutboundGenerationFailed, &params, state, nil).WithCause("generationError", err)
	}
	return u, next, nil
}

// syncFromCounterparty applies the counterparty's latest update when it is
// exactly one ahead of state.
func (s *Service) syncFromCounterparty(ctx context.Context, logger zerolog.Logger, params protocol.UpdateParams, state *protocol.ChannelState, latest protocol.ChannelUpdate) (*protocol.ChannelState, error) {
	current := storedNonce(state)
	if latest.Nonce != current+1 {
		logger.Warn().Uint64("stored_nonce", current).Uint64("counterparty_nonce", latest.Nonce).Msg("counterparty too far ahead")
		return nil, protocol.NewOutboundError(protocol.OutboundRestoreNeeded, &params, state, map[string]any{
			"storedNonce":       current,
			"counterpartyNonce": latest.Nonce,
		})
	}
	if !latest.IsDoubleSigned() {
		return nil, protocol.NewOutboundError(protocol.OutboundSyncFailure, &params, state, nil).
			WithCause("syncError", errors.New("counterparty update is not double signed"))
	}

	_, synced, err := s.validateApplyPersist(ctx, latest, state)
	if err != nil {
		logger.Warn().Err(err).Uint64("counterparty_nonce", latest.Nonce).Msg("failed to sync counterparty update")
		var ae *applyError
		if errors.As(err, &ae) && ae.stage == stageSave {
			return nil, protocol.NewOutboundError(protocol.OutboundSaveFailed, &params, state, nil).WithCause("saveChannelError", ae.err)
		}
		cause := err
		if ae != nil {
			cause = ae.err
		}
		return nil, protocol.NewOutboundError(protocol.OutboundSyncFailure, &params, state, nil).WithCause("syncError", cause)
	}
	logger.Info().Uint64("nonce", synced.Nonce).Msg("synced counterparty update")
	s.notify(DirectionOutbound, true, synced)
	return synced, nil
}

func counterpartyFailure(params protocol.UpdateParams, state *protocol.ChannelState, err error) error {
	out := protocol.NewOutboundError(protocol.OutboundCounterpartyFailure, &params, state, nil).WithCause("counterpartyError", err)
	var counterpartyErr *protocol.InboundError
	if errors.As(err, &counterpartyErr) {
		out.Context["counterpartyReason"] = string(counterpartyErr.Reason)
	}
	return out
}

// verifyAck checks the counterparty returned what was sent, signed by both.
func verifyAck(sent protocol.ChannelUpdate, resp *channel.ProtocolResponse, next *protocol.ChannelState) error {
	if resp == nil {
		return errors.New("empty response")
	}
	if !resp.Update.SameContent(sent) {
		return errors.New("returned update differs from proposal")
	}
	return resp.Update.VerifySignatures(next.Alice, next.Bob, true)
}
