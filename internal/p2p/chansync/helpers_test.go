package chansync

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/domain/channel/mocks"
	"github.com/chanhub/chansync/internal/p2p/protocol"
	"github.com/chanhub/chansync/internal/p2p/update"
)

const assetID = "0x0000000000000000000000000000000000000000"

// harness holds two identities and a channel history between them:
// 1 setup, 2 deposit, 3 bob creates t1, 4 bob creates t2.
type harness struct {
	ctrl      *gomock.Controller
	alice     *protocol.KeySigner
	bob       *protocol.KeySigner
	chain     *mocks.MockChainReader
	store     *mocks.MockRepository
	messaging *mocks.MockMessaging
	states    map[uint64]*protocol.ChannelState
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	h := &harness{
		ctrl:      ctrl,
		chain:     mocks.NewMockChainReader(ctrl),
		store:     mocks.NewMockRepository(ctrl),
		messaging: mocks.NewMockMessaging(ctrl),
		states:    map[uint64]*protocol.ChannelState{},
	}
	var err error
	h.alice, err = protocol.GenerateSigner()
	require.NoError(t, err)
	h.bob, err = protocol.GenerateSigner()
	require.NoError(t, err)

	h.chain.EXPECT().GetTotalDepositedAlice(gomock.Any(), gomock.Any(), assetID).Return(big.NewInt(10), nil).AnyTimes()
	h.chain.EXPECT().GetChannelOnchainBalance(gomock.Any(), gomock.Any(), assetID).Return(big.NewInt(25), nil).AnyTimes()

	s1 := h.advance(t, nil, h.alice, protocol.UpdateParams{
		Type: protocol.UpdateTypeSetup,
		Details: protocol.ParamsDetails{Setup: &protocol.SetupParams{
			CounterpartyIdentifier: h.bob.Identifier(),
			ChainID:                1,
			Timeout:                3600,
		}},
	})
	s2 := h.advance(t, s1, h.alice, depositParams(s1))
	s3 := h.advance(t, s2, h.bob, createParams(s2, "t1", "p1"))
	s4 := h.advance(t, s3, h.bob, createParams(s3, "t2", "p2"))
	for _, s := range []*protocol.ChannelState{s1, s2, s3, s4} {
		h.states[s.Nonce] = s
	}
	return h
}

func (h *harness) address() string {
	return h.states[1].ChannelAddress
}

func (h *harness) other(s *protocol.KeySigner) *protocol.KeySigner {
	if s == h.alice {
		return h.bob
	}
	return h.alice
}

// propose returns a single-signed update and the proposer's resulting state.
func (h *harness) propose(t *testing.T, prev *protocol.ChannelState, proposer *protocol.KeySigner, params protocol.UpdateParams) (protocol.ChannelUpdate, *protocol.ChannelState) {
	t.Helper()
	u, next, err := update.NewGenerator(h.chain, proposer).Generate(context.Background(), params, prev)
	require.NoError(t, err)
	return u, next
}

// advance returns the double-signed state following prev.
func (h *harness) advance(t *testing.T, prev *protocol.ChannelState, proposer *protocol.KeySigner, params protocol.UpdateParams) *protocol.ChannelState {
	t.Helper()
	u, next := h.propose(t, prev, proposer, params)
	require.NoError(t, u.AddSignature(h.other(proposer), next.Alice, next.Bob))
	next.LatestUpdate = u
	return next
}

// countersign plays the counterparty acknowledging a proposal.
func (h *harness) countersign(t *testing.T, signer *protocol.KeySigner) func(context.Context, protocol.ChannelUpdate, *protocol.ChannelUpdate) (*channel.ProtocolResponse, error) {
	return func(_ context.Context, u protocol.ChannelUpdate, previous *protocol.ChannelUpdate) (*channel.ProtocolResponse, error) {
		s := h.states[1]
		require.NoError(t, u.AddSignature(signer, s.Alice, s.Bob))
		return &channel.ProtocolResponse{Update: u, PreviousUpdate: previous}, nil
	}
}

func (h *harness) service(signer *protocol.KeySigner, opts ...Option) *Service {
	return NewService(h.store, h.chain, h.messaging, nil, signer, zerolog.Nop(), opts...)
}

func depositParams(s *protocol.ChannelState) protocol.UpdateParams {
	return protocol.UpdateParams{
		ChannelAddress: s.ChannelAddress,
		Type:           protocol.UpdateTypeDeposit,
		Details:        protocol.ParamsDetails{Deposit: &protocol.DepositParams{AssetID: assetID}},
	}
}

func createParams(s *protocol.ChannelState, transferID, preImage string) protocol.UpdateParams {
	return protocol.UpdateParams{
		ChannelAddress: s.ChannelAddress,
		Type:           protocol.UpdateTypeCreate,
		Details: protocol.ParamsDetails{Create: &protocol.CreateParams{
			TransferID: transferID,
			AssetID:    assetID,
			Amount:     big.NewInt(2),
			LockHash:   protocol.HashPreImage(preImage),
		}},
	}
}

func resolveParams(s *protocol.ChannelState, transferID, preImage string) protocol.UpdateParams {
	return protocol.UpdateParams{
		ChannelAddress: s.ChannelAddress,
		Type:           protocol.UpdateTypeResolve,
		Details: protocol.ParamsDetails{Resolve: &protocol.ResolveParams{
			TransferID: transferID,
			PreImage:   preImage,
		}},
	}
}

// missedParams builds the update at nonce 5 that one side did not store.
func missedParams(s *protocol.ChannelState, kind protocol.UpdateType) protocol.UpdateParams {
	switch kind {
	case protocol.UpdateTypeCreate:
		return createParams(s, "t3", "p3")
	case protocol.UpdateTypeResolve:
		return resolveParams(s, "t1", "p1")
	default:
		return depositParams(s)
	}
}

// proposedParams builds the update alice proposes at nonce 6.
func proposedParams(s *protocol.ChannelState, kind protocol.UpdateType) protocol.UpdateParams {
	switch kind {
	case protocol.UpdateTypeCreate:
		return createParams(s, "t4", "p4")
	case protocol.UpdateTypeResolve:
		return resolveParams(s, "t2", "p2")
	default:
		return depositParams(s)
	}
}

var syncKinds = []protocol.UpdateType{
	protocol.UpdateTypeDeposit,
	protocol.UpdateTypeCreate,
	protocol.UpdateTypeResolve,
}

// hasNonce matches updates and states by nonce.
type hasNonce uint64

func (m hasNonce) Matches(x any) bool {
	switch v := x.(type) {
	case protocol.ChannelUpdate:
		return v.Nonce == uint64(m)
	case *protocol.ChannelUpdate:
		return v != nil && v.Nonce == uint64(m)
	case *protocol.ChannelState:
		return v != nil && v.Nonce == uint64(m)
	}
	return false
}

func (m hasNonce) String() string {
	return fmt.Sprintf("has nonce %d", uint64(m))
}
