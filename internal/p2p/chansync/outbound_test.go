package chansync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/chanhub/chansync/internal/domain/channel"
	chmocks "github.com/chanhub/chansync/internal/p2p/chansync/mocks"
	"github.com/chanhub/chansync/internal/p2p/protocol"
	"github.com/chanhub/chansync/internal/p2p/validate"
)

func requireOutboundReason(t *testing.T, err error, reason protocol.OutboundReason) *protocol.OutboundError {
	t.Helper()
	require.Error(t, err)
	var oe *protocol.OutboundError
	require.True(t, errors.As(err, &oe), "expected *protocol.OutboundError, got %T", err)
	require.Equal(t, reason, oe.Reason)
	return oe
}

func TestOutbound_InvalidParams(t *testing.T) {
	h := newHarness(t)
	validator := chmocks.NewMockValidator(h.ctrl)
	svc := h.service(h.alice, WithValidator(validator))
	params := depositParams(h.states[2])

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	validator.EXPECT().ValidateParams(gomock.Any(), params, h.states[2]).Return(errors.New("nope"))

	_, err := svc.Outbound(context.Background(), params)

	oe := requireOutboundReason(t, err, protocol.OutboundInvalidParams)
	assert.Equal(t, "nope", oe.Context["validationError"])
}

func TestOutbound_RejectsBadParamsWithoutSending(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)
	params := createParams(h.states[2], "too-big", "x")
	params.Details.Create.Amount.SetInt64(1000)

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)

	_, err := svc.Outbound(context.Background(), params)

	requireOutboundReason(t, err, protocol.OutboundInvalidParams)
}

func TestOutbound_GenerationFails(t *testing.T) {
	h := newHarness(t)
	generator := chmocks.NewMockGenerator(h.ctrl)
	svc := h.service(h.alice, WithGenerator(generator))
	params := depositParams(h.states[2])
	genErr := protocol.NewOutboundError(protocol.OutboundChainReadFailed, &params, h.states[2], nil)

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	generator.EXPECT().Generate(gomock.Any(), params, h.states[2]).Return(protocol.ChannelUpdate{}, nil, genErr)

	_, err := svc.Outbound(context.Background(), params)

	require.Error(t, err)
	assert.Same(t, genErr, err)
}

func TestOutbound_CounterpartyFailure(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)
	counterpartyErr := errors.New("counterparty offline")

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(3), hasNonce(2)).Return(nil, counterpartyErr).Times(1)

	_, err := svc.Outbound(context.Background(), depositParams(h.states[2]))

	oe := requireOutboundReason(t, err, protocol.OutboundCounterpartyFailure)
	assert.Equal(t, map[string]any{"counterpartyError": counterpartyErr.Error()}, oe.Context)
}

func TestOutbound_InSync(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(3), hasNonce(2)).DoAndReturn(h.countersign(t, h.bob)).Times(1)
	h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(3)).Return(nil).Times(1)

	state, err := svc.Outbound(context.Background(), createParams(h.states[2], "t9", "p9"))

	require.NoError(t, err)
	assert.Equal(t, uint64(3), state.Nonce)
	require.NoError(t, state.LatestUpdate.VerifySignatures(state.Alice, state.Bob, true))
	_, ok := state.Transfer("t9")
	assert.True(t, ok)
}

func TestOutbound_Setup(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)
	params := protocol.UpdateParams{
		Type: protocol.UpdateTypeSetup,
		Details: protocol.ParamsDetails{Setup: &protocol.SetupParams{
			CounterpartyIdentifier: h.bob.Identifier(),
			ChainID:                1,
			Timeout:                3600,
		}},
	}

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(nil, nil)
	h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(1), nil).DoAndReturn(h.countersign(t, h.bob))
	h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(1)).Return(nil)

	state, err := svc.Outbound(context.Background(), params)

	require.NoError(t, err)
	assert.Equal(t, h.address(), state.ChannelAddress)
	assert.True(t, state.LatestUpdate.IsDoubleSigned())
}

func TestOutbound_SyncUpdateSingleSigned(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)
	latest, _ := h.propose(t, h.states[2], h.bob, createParams(h.states[2], "t5", "p5"))
	stale := protocol.NewInboundError(protocol.InboundStaleUpdate, nil, nil, nil)
	stale.LatestUpdate = &latest

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(3), hasNonce(2)).Return(nil, stale).Times(1)

	_, err := svc.Outbound(context.Background(), depositParams(h.states[2]))

	requireOutboundReason(t, err, protocol.OutboundSyncFailure)
}

func TestOutbound_SaveFails(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(h.countersign(t, h.bob))
	h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(3)).Return(errors.New("disk full"))

	_, err := svc.Outbound(context.Background(), depositParams(h.states[2]))

	requireOutboundReason(t, err, protocol.OutboundSaveFailed)
}

func TestOutbound_BadSignatures(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, u protocol.ChannelUpdate, _ *protocol.ChannelUpdate) (*channel.ProtocolResponse, error) {
			u.BobSignature = u.AliceSignature
			return &channel.ProtocolResponse{Update: u}, nil
		})

	_, err := svc.Outbound(context.Background(), depositParams(h.states[2]))

	requireOutboundReason(t, err, protocol.OutboundBadSignatures)
}

func TestOutbound_InvalidForSyncedChannel(t *testing.T) {
	h := newHarness(t)
	validator := chmocks.NewMockValidator(h.ctrl)
	delegate := validate.NewValidator(h.chain, nil, h.alice)
	svc := h.service(h.alice, WithValidator(validator))
	params := resolveParams(h.states[4], "t1", "p1")

	s5 := h.advance(t, h.states[4], h.alice, resolveParams(h.states[4], "t1", "p1"))
	stale := protocol.NewInboundError(protocol.InboundStaleUpdate, nil, nil, nil)
	stale.LatestUpdate = &s5.LatestUpdate

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[4], nil)
	gomock.InOrder(
		validator.EXPECT().ValidateParams(gomock.Any(), params, hasNonce(4)).DoAndReturn(delegate.ValidateParams),
		h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(5), hasNonce(4)).Return(nil, stale),
		validator.EXPECT().ValidateAndApplyInbound(gomock.Any(), hasNonce(5), hasNonce(4)).DoAndReturn(delegate.ValidateAndApplyInbound),
		h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(5)).Return(nil),
		validator.EXPECT().ValidateParams(gomock.Any(), params, hasNonce(5)).DoAndReturn(delegate.ValidateParams),
	)

	_, err := svc.Outbound(context.Background(), params)

	requireOutboundReason(t, err, protocol.OutboundInvalidParams)
}

func TestOutbound_SyncsAndRetries(t *testing.T) {
	for _, proposed := range syncKinds {
		for _, missed := range syncKinds {
			t.Run(string(proposed)+" after missed "+string(missed), func(t *testing.T) {
				h := newHarness(t)
				svc := h.service(h.alice)

				s5 := h.advance(t, h.states[4], h.alice, missedParams(h.states[4], missed))
				stale := protocol.NewInboundError(protocol.InboundStaleUpdate, nil, nil, nil)
				stale.LatestUpdate = &s5.LatestUpdate

				h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[4], nil)
				gomock.InOrder(
					h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(5), hasNonce(4)).Return(nil, stale),
					h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(5)).Return(nil),
					h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(6), hasNonce(5)).DoAndReturn(h.countersign(t, h.bob)),
					h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(6)).Return(nil),
				)

				state, err := svc.Outbound(context.Background(), proposedParams(h.states[4], proposed))

				require.NoError(t, err)
				assert.Equal(t, uint64(6), state.Nonce)
				assert.Equal(t, h.address(), state.ChannelAddress)
				assert.True(t, state.LatestUpdate.IsDoubleSigned())
			})
		}
	}
}

func TestOutbound_CounterpartyTooFarAhead(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)
	stale := protocol.NewInboundError(protocol.InboundStaleUpdate, nil, nil, nil)
	latest := h.states[4].LatestUpdate
	stale.LatestUpdate = &latest

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, stale)

	_, err := svc.Outbound(context.Background(), depositParams(h.states[2]))

	requireOutboundReason(t, err, protocol.OutboundRestoreNeeded)
}

func TestOutbound_RetryIsAttemptedOnce(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)
	stale := protocol.NewInboundError(protocol.InboundStaleUpdate, nil, nil, nil)
	latest := h.states[3].LatestUpdate
	stale.LatestUpdate = &latest
	again := protocol.NewInboundError(protocol.InboundStaleUpdate, nil, nil, nil)
	again.LatestUpdate = &h.states[4].LatestUpdate

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	gomock.InOrder(
		h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(3), gomock.Any()).Return(nil, stale),
		h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(3)).Return(nil),
		h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(4), gomock.Any()).Return(nil, again),
	)

	_, err := svc.Outbound(context.Background(), depositParams(h.states[2]))

	oe := requireOutboundReason(t, err, protocol.OutboundCounterpartyFailure)
	assert.Equal(t, string(protocol.InboundStaleUpdate), oe.Context["counterpartyReason"])
}

func TestOutbound_ChannelNotFound(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(nil, nil)

	_, err := svc.Outbound(context.Background(), depositParams(h.states[2]))

	requireOutboundReason(t, err, protocol.OutboundChannelNotFound)
}

func TestOutbound_StoreReadFails(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.alice)

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(nil, errors.New("conn refused"))

	_, err := svc.Outbound(context.Background(), depositParams(h.states[2]))

	requireOutboundReason(t, err, protocol.OutboundStoreFailure)
}

func TestOutbound_NotifiesObserver(t *testing.T) {
	h := newHarness(t)
	var applied []Applied
	svc := h.service(h.alice, WithObserver(func(a Applied) {
		applied = append(applied, a)
	}))

	s5 := h.advance(t, h.states[4], h.bob, depositParams(h.states[4]))
	stale := protocol.NewInboundError(protocol.InboundStaleUpdate, nil, nil, nil)
	stale.LatestUpdate = &s5.LatestUpdate

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[4], nil)
	gomock.InOrder(
		h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(5), hasNonce(4)).Return(nil, stale),
		h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(5)).Return(nil),
		h.messaging.EXPECT().SendProtocolMessage(gomock.Any(), hasNonce(6), hasNonce(5)).DoAndReturn(h.countersign(t, h.bob)),
		h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(6)).Return(nil),
	)

	_, err := svc.Outbound(context.Background(), depositParams(h.states[4]))
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, DirectionOutbound, applied[0].Direction)
	assert.True(t, applied[0].Synced)
	assert.Equal(t, uint64(5), applied[0].State.Nonce)
	assert.False(t, applied[1].Synced)
	assert.Equal(t, uint64(6), applied[1].State.Nonce)
	assert.True(t, applied[1].State.LatestUpdate.IsDoubleSigned())
}
