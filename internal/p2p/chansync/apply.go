package chansync

import (
	"context"
	"fmt"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

type applyStage int

const (
	stageValidate applyStage = iota
	stageSave
)

// applyError tells callers which step of validateApplyPersist failed so
// each side can map it onto its own reason.
type applyError struct {
	stage applyStage
	err   error
}

func (e *applyError) Error() string {
	if e.stage == stageSave {
		return fmt.Sprintf("save channel: %v", e.err)
	}
	return fmt.Sprintf("validate update: %v", e.err)
}

func (e *applyError) Unwrap() error { return e.err }

// validateApplyPersist is the single transition step shared by the inbound
// processor and the outbound resync: validate u against state, apply and
// countersign it, then persist. Nothing is written when validation fails.
func (s *Service) validateApplyPersist(ctx context.Context, u protocol.ChannelUpdate, state *protocol.ChannelState) (protocol.ChannelUpdate, *protocol.ChannelState, error) {
	signed, next, err := s.validator.ValidateAndApplyInbound(ctx, u, state)
	if err != nil {
		return protocol.ChannelUpdate{}, nil, &applyError{stage: stageValidate, err: err}
	}
	if err := s.store.SaveChannelState(ctx, next); err != nil {
		return protocol.ChannelUpdate{}, nil, &applyError{stage: stageSave, err: err}
	}
	return signed, next, nil
}

func storedNonce(state *protocol.ChannelState) uint64 {
	if state == nil {
		return 0
	}
	return state.Nonce
}

func latestUpdate(state *protocol.ChannelState) *protocol.ChannelUpdate {
	if state == nil || state.LatestUpdate.IsEmpty() {
		return nil
	}
	latest := state.LatestUpdate.Clone()
	return &latest
}
