package update

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// Generator turns update params into an update signed by the local signer
// together with the state it produces.
type Generator struct {
	chain  channel.ChainReader
	signer protocol.Signer
}

func NewGenerator(chain channel.ChainReader, signer protocol.Signer) *Generator {
	return &Generator{chain: chain, signer: signer}
}

// Generate does not touch the store or the network except for chain reads
// on deposit. Errors are *protocol.OutboundError.
func (g *Generator) Generate(ctx context.Context, params protocol.UpdateParams, state *protocol.ChannelState) (protocol.ChannelUpdate, *protocol.ChannelState, error) {
	if params.Type != protocol.UpdateTypeSetup && (state == nil || state.Nonce == 0) {
		return protocol.ChannelUpdate{}, nil, protocol.NewOutboundError(protocol.OutboundChannelNotFound, &params, state, map[string]any{
			"channelAddress": params.ChannelAddress,
		})
	}

	if err := params.ValidateBasic(); err != nil {
		return protocol.ChannelUpdate{}, nil, g.failure(params, state, err)
	}

	var (
		u   protocol.ChannelUpdate
		err error
	)
	switch params.Type {
	case protocol.UpdateTypeSetup:
		u, err = g.setupUpdate(params)
	case protocol.UpdateTypeDeposit:
		u, err = g.depositUpdate(ctx, params, state)
	case protocol.UpdateTypeCreate:
		u, err = g.createUpdate(params, state)
	case protocol.UpdateTypeResolve:
		u, err = g.resolveUpdate(params, state)
	default:
		err = fmt.Errorf("unsupported update type: %s", params.Type)
	}
	if err != nil {
		return protocol.ChannelUpdate{}, nil, g.failure(params, state, err)
	}

	next, err := transition(state, u)
	if err != nil {
		return protocol.ChannelUpdate{}, nil, g.failure(params, state, err)
	}
	if u.Type != protocol.UpdateTypeSetup {
		u.Balance = next.Balances[next.AssetIndex(u.AssetID)].Clone()
	}
	switch u.Type {
	case protocol.UpdateTypeCreate:
		u.Details.Create.MerkleRoot = next.MerkleRoot
	case protocol.UpdateTypeResolve:
		u.Details.Resolve.MerkleRoot = next.MerkleRoot
	}
	if err := u.AddSignature(g.signer, next.Alice, next.Bob); err != nil {
		return protocol.ChannelUpdate{}, nil, g.failure(params, state, fmt.Errorf("sign update: %w", err))
	}
	next.LatestUpdate = u.Clone()
	return u, next, nil
}

func (g *Generator) failure(params protocol.UpdateParams, state *protocol.ChannelState, err error) error {
	var oe *protocol.OutboundError
	if errors.As(err, &oe) {
		return oe
	}
	return protocol.NewOutboundError(protocol.OutboundGenerationFailed, &params, state, nil).WithCause("generationError", err)
}

func (g *Generator) setupUpdate(params protocol.UpdateParams) (protocol.ChannelUpdate, error) {
	details := params.Details.Setup
	alice := g.signer.Identifier()
	bob := strings.TrimSpace(details.CounterpartyIdentifier)
	return protocol.ChannelUpdate{
		ChannelAddress: protocol.DeriveChannelAddress(alice, bob, details.ChainID),
		FromIdentifier: alice,
		ToIdentifier:   bob,
		Type:           protocol.UpdateTypeSetup,
		Nonce:          1,
		Balance:        protocol.NewBalance(0, 0),
		Details: protocol.UpdateDetails{Setup: &protocol.SetupDetails{
			ChainID: details.ChainID,
			Timeout: details.Timeout,
		}},
	}, nil
}

func (g *Generator) depositUpdate(ctx context.Context, params protocol.UpdateParams, state *protocol.ChannelState) (protocol.ChannelUpdate, error) {
	assetID := params.Details.Deposit.AssetID
	totalAlice, err := g.chain.GetTotalDepositedAlice(ctx, state.ChannelAddress, assetID)
	if err != nil {
		return protocol.ChannelUpdate{}, protocol.NewOutboundError(protocol.OutboundChainReadFailed, &params, state, nil).WithCause("chainError", err)
	}
	onchain, err := g.chain.GetChannelOnchainBalance(ctx, state.ChannelAddress, assetID)
	if err != nil {
		return protocol.ChannelUpdate{}, protocol.NewOutboundError(protocol.OutboundChainReadFailed, &params, state, nil).WithCause("chainError", err)
	}
	totalAlice = orZero(totalAlice)
	totalBob := new(big.Int).Sub(orZero(onchain), totalAlice)
	if totalBob.Sign() < 0 {
		return protocol.ChannelUpdate{}, fmt.Errorf("onchain balance %s below alice deposits %s", onchain, totalAlice)
	}
	return g.baseUpdate(state, protocol.UpdateTypeDeposit, assetID, protocol.UpdateDetails{
		Deposit: &protocol.DepositDetails{
			TotalDepositsAlice: new(big.Int).Set(totalAlice),
			TotalDepositsBob:   totalBob,
		},
	}), nil
}

func (g *Generator) createUpdate(params protocol.UpdateParams, state *protocol.ChannelState) (protocol.ChannelUpdate, error) {
	details := params.Details.Create
	transferID := strings.TrimSpace(details.TransferID)
	if transferID == "" {
		transferID = uuid.New().String()
	}
	initiator := g.signer.Identifier()
	transfer := protocol.Transfer{
		TransferID:     transferID,
		ChannelAddress: state.ChannelAddress,
		AssetID:        details.AssetID,
		Amount:         new(big.Int).Set(details.Amount),
		Initiator:      initiator,
		Responder:      state.Counterparty(initiator),
		LockHash:       strings.ToLower(details.LockHash),
		Expiry:         details.Expiry,
	}
	return g.baseUpdate(state, protocol.UpdateTypeCreate, details.AssetID, protocol.UpdateDetails{
		Create: &protocol.CreateDetails{Transfer: transfer},
	}), nil
}

func (g *Generator) resolveUpdate(params protocol.UpdateParams, state *protocol.ChannelState) (protocol.ChannelUpdate, error) {
	details := params.Details.Resolve
	transfer, ok := state.Transfer(details.TransferID)
	if !ok {
		return protocol.ChannelUpdate{}, fmt.Errorf("transfer not active: %s", details.TransferID)
	}
	return g.baseUpdate(state, protocol.UpdateTypeResolve, transfer.AssetID, protocol.UpdateDetails{
		Resolve: &protocol.ResolveDetails{
			TransferID: transfer.TransferID,
			PreImage:   details.PreImage,
		},
	}), nil
}

func (g *Generator) baseUpdate(state *protocol.ChannelState, updateType protocol.UpdateType, assetID string, details protocol.UpdateDetails) protocol.ChannelUpdate {
	from := g.signer.Identifier()
	return protocol.ChannelUpdate{
		ChannelAddress: state.ChannelAddress,
		FromIdentifier: from,
		ToIdentifier:   state.Counterparty(from),
		Type:           updateType,
		Nonce:          state.Nonce + 1,
		AssetID:        assetID,
		Details:        details,
	}
}
