package chansync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	chmocks "github.com/chanhub/chansync/internal/p2p/chansync/mocks"
	"github.com/chanhub/chansync/internal/p2p/protocol"
	"github.com/chanhub/chansync/internal/p2p/validate"
)

const inbox = "inbox-1"

func requireInboundReason(t *testing.T, err error, reason protocol.InboundReason) *protocol.InboundError {
	t.Helper()
	require.Error(t, err)
	var ie *protocol.InboundError
	require.True(t, errors.As(err, &ie), "expected *protocol.InboundError, got %T", err)
	require.Equal(t, reason, ie.Reason)
	return ie
}

func TestInbound_StaleChannel(t *testing.T) {
	h := newHarness(t)
	validator := chmocks.NewMockValidator(h.ctrl)
	svc := h.service(h.bob, WithValidator(validator))

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[1], nil)

	state, err := svc.Inbound(context.Background(), h.states[4].LatestUpdate, nil, inbox)

	assert.Nil(t, state)
	requireInboundReason(t, err, protocol.InboundStaleChannel)
}

func TestInbound_ValidationFails(t *testing.T) {
	h := newHarness(t)
	validator := chmocks.NewMockValidator(h.ctrl)
	svc := h.service(h.bob, WithValidator(validator))
	proposal, _ := h.propose(t, h.states[1], h.alice, depositParams(h.states[1]))

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[1], nil)
	validator.EXPECT().ValidateAndApplyInbound(gomock.Any(), proposal, h.states[1]).
		Return(protocol.ChannelUpdate{}, nil, errors.New("fail"))
	h.messaging.EXPECT().RespondWithProtocolError(gomock.Any(), inbox, gomock.Any()).Return(nil)

	_, err := svc.Inbound(context.Background(), proposal, nil, inbox)

	ie := requireInboundReason(t, err, protocol.InboundValidationFailed)
	assert.Equal(t, "fail", ie.Context["validationError"])
}

func TestInbound_SaveFails(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.bob)
	proposal, _ := h.propose(t, h.states[1], h.alice, depositParams(h.states[1]))

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[1], nil)
	h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(2)).Return(errors.New("disk full"))

	_, err := svc.Inbound(context.Background(), proposal, nil, inbox)

	ie := requireInboundReason(t, err, protocol.InboundSaveFailed)
	assert.Equal(t, "disk full", ie.Context["saveChannelError"])
}

func TestInbound_InvalidUpdateAfterSync(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.bob)
	proposal, _ := h.propose(t, h.states[2], h.alice, depositParams(h.states[2]))
	proposal.Balance = protocol.NewBalance(100, 0)

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[1], nil)
	h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(2)).Return(nil)
	h.messaging.EXPECT().RespondWithProtocolError(gomock.Any(), inbox, gomock.Any()).Return(nil)

	prior := h.states[2].LatestUpdate
	_, err := svc.Inbound(context.Background(), proposal, &prior, inbox)

	requireInboundReason(t, err, protocol.InboundValidationFailed)
}

func TestInbound_SyncsPriorUpdate(t *testing.T) {
	for _, proposed := range syncKinds {
		for _, missed := range syncKinds {
			t.Run(string(proposed)+" after missed "+string(missed), func(t *testing.T) {
				h := newHarness(t)
				validator := chmocks.NewMockValidator(h.ctrl)
				delegate := validate.NewValidator(h.chain, nil, h.bob)
				svc := h.service(h.bob, WithValidator(validator))

				s5 := h.advance(t, h.states[4], h.alice, missedParams(h.states[4], missed))
				proposal, _ := h.propose(t, s5, h.alice, proposedParams(s5, proposed))
				prior := s5.LatestUpdate

				h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[4], nil)
				gomock.InOrder(
					validator.EXPECT().ValidateAndApplyInbound(gomock.Any(), hasNonce(5), gomock.Any()).DoAndReturn(delegate.ValidateAndApplyInbound),
					h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(5)).Return(nil),
					validator.EXPECT().ValidateAndApplyInbound(gomock.Any(), hasNonce(6), hasNonce(5)).DoAndReturn(delegate.ValidateAndApplyInbound),
					h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(6)).Return(nil),
					h.messaging.EXPECT().RespondToProtocolMessage(gomock.Any(), inbox, hasNonce(6), hasNonce(5)).
						DoAndReturn(func(_ context.Context, _ string, u protocol.ChannelUpdate, _ *protocol.ChannelUpdate) error {
							assert.True(t, u.IsDoubleSigned())
							return nil
						}),
				)

				state, err := svc.Inbound(context.Background(), proposal, &prior, inbox)

				require.NoError(t, err)
				assert.Equal(t, uint64(6), state.Nonce)
				assert.True(t, state.LatestUpdate.IsDoubleSigned())
				assert.True(t, state.LatestUpdate.SameContent(proposal))
			})
		}
	}
}

func TestInbound_SetupWithoutStoredState(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.bob)
	setup := h.states[1].LatestUpdate.Clone()
	setup.BobSignature = ""

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(nil, nil)
	h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(1)).Return(nil)
	h.messaging.EXPECT().RespondToProtocolMessage(gomock.Any(), inbox, hasNonce(1), nil).Return(nil)

	state, err := svc.Inbound(context.Background(), setup, nil, inbox)

	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.Nonce)
	assert.Equal(t, h.alice.Identifier(), state.Alice)
	assert.Equal(t, h.bob.Identifier(), state.Bob)
	assert.True(t, state.LatestUpdate.IsDoubleSigned())
}

func TestInbound_UpdateDoesNotAdvance(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.bob)
	old := h.states[1].LatestUpdate

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	h.messaging.EXPECT().RespondWithProtocolError(gomock.Any(), inbox, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, protocolErr *protocol.InboundError) error {
			require.NotNil(t, protocolErr.LatestUpdate)
			assert.Equal(t, h.states[2].LatestUpdate, *protocolErr.LatestUpdate)
			return nil
		})

	_, err := svc.Inbound(context.Background(), old, nil, inbox)

	requireInboundReason(t, err, protocol.InboundStaleUpdate)
}

func TestInbound_InSync(t *testing.T) {
	h := newHarness(t)
	var applied []Applied
	svc := h.service(h.bob, WithObserver(func(a Applied) { applied = append(applied, a) }))
	proposal, _ := h.propose(t, h.states[1], h.alice, depositParams(h.states[1]))

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[1], nil)
	h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(2)).Return(nil)
	h.messaging.EXPECT().RespondToProtocolMessage(gomock.Any(), inbox, hasNonce(2), hasNonce(1)).Return(nil)

	state, err := svc.Inbound(context.Background(), proposal, nil, inbox)

	require.NoError(t, err)
	assert.Equal(t, uint64(2), state.Nonce)
	require.NoError(t, state.LatestUpdate.VerifySignatures(state.Alice, state.Bob, true))
	require.Len(t, applied, 1)
	assert.Equal(t, DirectionInbound, applied[0].Direction)
	assert.False(t, applied[0].Synced)
}

func TestInbound_BehindWithoutPrior(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.bob)
	proposal, _ := h.propose(t, h.states[2], h.alice, depositParams(h.states[2]))

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[1], nil)
	h.messaging.EXPECT().RespondWithProtocolError(gomock.Any(), inbox, gomock.Any()).Return(nil)

	_, err := svc.Inbound(context.Background(), proposal, nil, inbox)

	requireInboundReason(t, err, protocol.InboundRestoreNeeded)
}

func TestInbound_FailedSyncStopsBeforeUpdate(t *testing.T) {
	h := newHarness(t)
	validator := chmocks.NewMockValidator(h.ctrl)
	svc := h.service(h.bob, WithValidator(validator))
	proposal, _ := h.propose(t, h.states[2], h.alice, depositParams(h.states[2]))
	prior := h.states[2].LatestUpdate

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[1], nil)
	validator.EXPECT().ValidateAndApplyInbound(gomock.Any(), hasNonce(2), gomock.Any()).
		Return(protocol.ChannelUpdate{}, nil, errors.New("bad prior"))
	h.messaging.EXPECT().RespondWithProtocolError(gomock.Any(), inbox, gomock.Any()).Return(nil)

	_, err := svc.Inbound(context.Background(), proposal, &prior, inbox)

	ie := requireInboundReason(t, err, protocol.InboundValidationFailed)
	assert.Equal(t, uint64(2), ie.Update.Nonce)
}

func TestInbound_Retransmission(t *testing.T) {
	h := newHarness(t)
	notified := false
	svc := h.service(h.bob, WithObserver(func(Applied) { notified = true }))
	retransmitted := h.states[2].LatestUpdate.Clone()
	retransmitted.BobSignature = ""

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	h.store.EXPECT().SaveChannelState(gomock.Any(), hasNonce(2)).Return(nil)
	h.messaging.EXPECT().RespondToProtocolMessage(gomock.Any(), inbox, h.states[2].LatestUpdate, nil).Return(nil)

	state, err := svc.Inbound(context.Background(), retransmitted, nil, inbox)

	require.NoError(t, err)
	assert.Equal(t, uint64(2), state.Nonce)
	assert.False(t, notified)
}

func TestInbound_ConflictingUpdateAtStoredNonce(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.bob)
	proposal, _ := h.propose(t, h.states[1], h.alice, depositParams(h.states[1]))
	proposal.AssetID = "0x1"

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(h.states[2], nil)
	h.messaging.EXPECT().RespondWithProtocolError(gomock.Any(), inbox, gomock.Any()).Return(nil)

	_, err := svc.Inbound(context.Background(), proposal, nil, inbox)

	ie := requireInboundReason(t, err, protocol.InboundStaleUpdate)
	assert.Equal(t, h.states[2].LatestUpdate, *ie.LatestUpdate)
}

func TestInbound_StoreReadFails(t *testing.T) {
	h := newHarness(t)
	svc := h.service(h.bob)
	proposal, _ := h.propose(t, h.states[1], h.alice, depositParams(h.states[1]))

	h.store.EXPECT().GetChannelState(gomock.Any(), h.address()).Return(nil, errors.New("conn refused"))

	_, err := svc.Inbound(context.Background(), proposal, nil, inbox)

	requireInboundReason(t, err, protocol.InboundStoreFailure)
}
