package update

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/chanhub/chansync/internal/domain/channel/mocks"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

const assetID = "0x0000000000000000000000000000000000000000"

type fixture struct {
	alice *protocol.KeySigner
	bob   *protocol.KeySigner
	chain *mocks.MockChainReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	alice, err := protocol.GenerateSigner()
	require.NoError(t, err)
	bob, err := protocol.GenerateSigner()
	require.NoError(t, err)
	ctrl := gomock.NewController(t)
	return &fixture{alice: alice, bob: bob, chain: mocks.NewMockChainReader(ctrl)}
}

func (f *fixture) setup(t *testing.T) *protocol.ChannelState {
	t.Helper()
	gen := NewGenerator(f.chain, f.alice)
	_, state, err := gen.Generate(context.Background(), protocol.UpdateParams{
		Type: protocol.UpdateTypeSetup,
		Details: protocol.ParamsDetails{Setup: &protocol.SetupParams{
			CounterpartyIdentifier: f.bob.Identifier(),
			ChainID:                1337,
			Timeout:                86400,
		}},
	}, nil)
	require.NoError(t, err)
	return state
}

func (f *fixture) deposit(t *testing.T, state *protocol.ChannelState, totalAlice, onchain int64) (protocol.ChannelUpdate, *protocol.ChannelState) {
	t.Helper()
	f.chain.EXPECT().GetTotalDepositedAlice(gomock.Any(), state.ChannelAddress, assetID).Return(big.NewInt(totalAlice), nil)
	f.chain.EXPECT().GetChannelOnchainBalance(gomock.Any(), state.ChannelAddress, assetID).Return(big.NewInt(onchain), nil)
	gen := NewGenerator(f.chain, f.alice)
	u, next, err := gen.Generate(context.Background(), protocol.UpdateParams{
		ChannelAddress: state.ChannelAddress,
		Type:           protocol.UpdateTypeDeposit,
		Details:        protocol.ParamsDetails{Deposit: &protocol.DepositParams{AssetID: assetID}},
	}, state)
	require.NoError(t, err)
	return u, next
}

func TestGenerate_Setup(t *testing.T) {
	f := newFixture(t)
	state := f.setup(t)

	assert.Equal(t, uint64(1), state.Nonce)
	assert.Equal(t, f.alice.Identifier(), state.Alice)
	assert.Equal(t, f.bob.Identifier(), state.Bob)
	assert.Equal(t, protocol.DeriveChannelAddress(f.alice.Identifier(), f.bob.Identifier(), 1337), state.ChannelAddress)
	assert.Equal(t, protocol.EmptyRoot, state.MerkleRoot)

	latest := state.LatestUpdate
	assert.Equal(t, protocol.UpdateTypeSetup, latest.Type)
	assert.NotEmpty(t, latest.AliceSignature)
	assert.Empty(t, latest.BobSignature)
	require.NoError(t, latest.VerifySignatures(state.Alice, state.Bob, false))
}

func TestGenerate_Deposit(t *testing.T) {
	f := newFixture(t)
	state := f.setup(t)

	u, state := f.deposit(t, state, 10, 15)
	assert.Equal(t, uint64(2), u.Nonce)
	assert.True(t, u.Balance.Equal(protocol.NewBalance(10, 5)))
	assert.Equal(t, int64(10), state.ProcessedDepositsA[0].Int64())
	assert.Equal(t, int64(5), state.ProcessedDepositsB[0].Int64())

	u, state = f.deposit(t, state, 12, 20)
	assert.Equal(t, uint64(3), u.Nonce)
	assert.True(t, state.Balances[0].Equal(protocol.NewBalance(12, 8)))
	assert.True(t, u.SameContent(state.LatestUpdate))
}

func TestGenerate_DepositChainFailure(t *testing.T) {
	f := newFixture(t)
	state := f.setup(t)
	f.chain.EXPECT().GetTotalDepositedAlice(gomock.Any(), state.ChannelAddress, assetID).Return(nil, errors.New("rpc down"))

	gen := NewGenerator(f.chain, f.alice)
	_, _, err := gen.Generate(context.Background(), protocol.UpdateParams{
		ChannelAddress: state.ChannelAddress,
		Type:           protocol.UpdateTypeDeposit,
		Details:        protocol.ParamsDetails{Deposit: &protocol.DepositParams{AssetID: assetID}},
	}, state)

	require.Error(t, err)
	assert.True(t, protocol.IsOutboundReason(err, protocol.OutboundChainReadFailed))
}

func TestGenerate_ChannelNotFound(t *testing.T) {
	f := newFixture(t)
	gen := NewGenerator(f.chain, f.alice)
	_, _, err := gen.Generate(context.Background(), protocol.UpdateParams{
		ChannelAddress: "0xmissing",
		Type:           protocol.UpdateTypeDeposit,
		Details:        protocol.ParamsDetails{Deposit: &protocol.DepositParams{AssetID: assetID}},
	}, nil)

	require.Error(t, err)
	assert.True(t, protocol.IsOutboundReason(err, protocol.OutboundChannelNotFound))
}

func TestGenerate_CreateAndResolve(t *testing.T) {
	f := newFixture(t)
	state := f.setup(t)
	_, state = f.deposit(t, state, 10, 15)

	preImage := "secret"
	create, state := generate(t, NewGenerator(f.chain, f.alice), state, protocol.UpdateParams{
		ChannelAddress: state.ChannelAddress,
		Type:           protocol.UpdateTypeCreate,
		Details: protocol.ParamsDetails{Create: &protocol.CreateParams{
			AssetID:  assetID,
			Amount:   big.NewInt(4),
			LockHash: protocol.HashPreImage(preImage),
		}},
	})
	require.Len(t, state.ActiveTransfers, 1)
	transferID := create.Details.Create.Transfer.TransferID
	assert.NotEmpty(t, transferID)
	assert.Equal(t, f.bob.Identifier(), create.Details.Create.Transfer.Responder)
	assert.True(t, state.Balances[0].Equal(protocol.NewBalance(6, 5)))
	assert.NotEqual(t, protocol.EmptyRoot, state.MerkleRoot)
	assert.Equal(t, state.MerkleRoot, create.Details.Create.MerkleRoot)

	t.Run("wrong pre-image", func(t *testing.T) {
		_, _, err := NewGenerator(f.chain, f.bob).Generate(context.Background(), resolveParams(state, transferID, "nope"), state)
		require.Error(t, err)
		assert.True(t, protocol.IsOutboundReason(err, protocol.OutboundGenerationFailed))
	})

	t.Run("responder unlocks", func(t *testing.T) {
		u, next := generate(t, NewGenerator(f.chain, f.bob), state, resolveParams(state, transferID, preImage))
		assert.Equal(t, f.bob.Identifier(), u.FromIdentifier)
		assert.NotEmpty(t, u.BobSignature)
		assert.Empty(t, next.ActiveTransfers)
		assert.Equal(t, protocol.EmptyRoot, next.MerkleRoot)
		assert.True(t, next.Balances[0].Equal(protocol.NewBalance(6, 9)))
	})

	t.Run("cancel refunds initiator", func(t *testing.T) {
		_, next := generate(t, NewGenerator(f.chain, f.bob), state, resolveParams(state, transferID, ""))
		assert.True(t, next.Balances[0].Equal(protocol.NewBalance(10, 5)))
	})
}

func TestGenerate_CreateInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	state := f.setup(t)
	_, state = f.deposit(t, state, 1, 1)

	_, _, err := NewGenerator(f.chain, f.alice).Generate(context.Background(), protocol.UpdateParams{
		ChannelAddress: state.ChannelAddress,
		Type:           protocol.UpdateTypeCreate,
		Details: protocol.ParamsDetails{Create: &protocol.CreateParams{
			AssetID:  assetID,
			Amount:   big.NewInt(2),
			LockHash: protocol.HashPreImage("x"),
		}},
	}, state)
	require.Error(t, err)
	assert.True(t, protocol.IsOutboundReason(err, protocol.OutboundGenerationFailed))
}

func TestApplyUpdate(t *testing.T) {
	f := newFixture(t)
	setupState := f.setup(t)
	u, expected := f.deposit(t, setupState, 10, 15)

	t.Run("matches generator", func(t *testing.T) {
		next, err := ApplyUpdate(setupState, u)
		require.NoError(t, err)
		assert.Equal(t, expected.Nonce, next.Nonce)
		assert.True(t, expected.Balances[0].Equal(next.Balances[0]))
		assert.Equal(t, expected.MerkleRoot, next.MerkleRoot)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		_, err := ApplyUpdate(setupState, u)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), setupState.Nonce)
		assert.Empty(t, setupState.Balances)
	})

	t.Run("nonce gap", func(t *testing.T) {
		bad := u.Clone()
		bad.Nonce = 3
		_, err := ApplyUpdate(setupState, bad)
		require.Error(t, err)
	})

	t.Run("balance mismatch", func(t *testing.T) {
		bad := u.Clone()
		bad.Balance = protocol.NewBalance(11, 5)
		_, err := ApplyUpdate(setupState, bad)
		require.Error(t, err)
	})

	t.Run("outsider", func(t *testing.T) {
		bad := u.Clone()
		bad.FromIdentifier = "someone-else"
		_, err := ApplyUpdate(setupState, bad)
		require.Error(t, err)
	})

	t.Run("setup twice", func(t *testing.T) {
		_, err := ApplyUpdate(setupState, setupState.LatestUpdate)
		require.Error(t, err)
	})
}

func generate(t *testing.T, gen *Generator, state *protocol.ChannelState, params protocol.UpdateParams) (protocol.ChannelUpdate, *protocol.ChannelState) {
	t.Helper()
	u, next, err := gen.Generate(context.Background(), params, state)
	require.NoError(t, err)
	return u, next
}

func resolveParams(state *protocol.ChannelState, transferID, preImage string) protocol.UpdateParams {
	return protocol.UpdateParams{
		ChannelAddress: state.ChannelAddress,
		Type:           protocol.UpdateTypeResolve,
		Details: protocol.ParamsDetails{Resolve: &protocol.ResolveParams{
			TransferID: transferID,
			PreImage:   preImage,
		}},
	}
}
