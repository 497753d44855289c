package validate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/p2p/protocol"
	"github.com/chanhub/chansync/internal/p2p/update"
)

// Validator checks params before generation and inbound updates before
// they are applied. Errors are plain; callers classify them.
type Validator struct {
	chain    channel.ChainReader
	external channel.ExternalValidation
	signer   protocol.Signer
}

// NewValidator builds a validator for the signer's side of its channels.
// chain and external may be nil.
func NewValidator(chain channel.ChainReader, external channel.ExternalValidation, signer protocol.Signer) *Validator {
	return &Validator{chain: chain, external: external, signer: signer}
}

// ValidateParams runs the structural and business checks for a local
// proposal, then the external outbound rules.
func (v *Validator) ValidateParams(ctx context.Context, params protocol.UpdateParams, state *protocol.ChannelState) error {
	if err := params.ValidateBasic(); err != nil {
		return err
	}
	me := v.signer.Identifier()

	if params.Type == protocol.UpdateTypeSetup {
		details := params.Details.Setup
		if state != nil && state.Nonce > 0 {
			return fmt.Errorf("channel already set up: %s", state.ChannelAddress)
		}
		if details.CounterpartyIdentifier == me {
			return errors.New("cannot set up a channel with yourself")
		}
		if details.ChainID == 0 {
			return errors.New("chain_id is required")
		}
		if details.Timeout == 0 {
			return errors.New("timeout is required")
		}
		return v.validateOutbound(ctx, params, state, nil)
	}

	if state == nil || state.Nonce == 0 {
		return fmt.Errorf("channel not found: %s", params.ChannelAddress)
	}
	if !strings.EqualFold(state.ChannelAddress, params.ChannelAddress) {
		return errors.New("params channel address does not match state")
	}
	if !state.IsParticipant(me) {
		return errors.New("signer is not a channel participant")
	}

	var transfer *protocol.Transfer
	switch params.Type {
	case protocol.UpdateTypeCreate:
		details := params.Details.Create
		idx := state.AssetIndex(details.AssetID)
		if idx < 0 {
			return fmt.Errorf("asset %s has no balance", details.AssetID)
		}
		own := state.Balances[idx].AmountB
		if me == state.Alice {
			own = state.Balances[idx].AmountA
		}
		if own == nil || own.Cmp(details.Amount) < 0 {
			return errors.New("insufficient balance for transfer")
		}
		if details.TransferID != "" {
			if _, exists := state.Transfer(details.TransferID); exists {
				return fmt.Errorf("transfer already exists: %s", details.TransferID)
			}
		}
	case protocol.UpdateTypeResolve:
		details := params.Details.Resolve
		active, ok := state.Transfer(details.TransferID)
		if !ok {
			return fmt.Errorf("transfer not active: %s", details.TransferID)
		}
		if err := checkResolution(active, me, details.PreImage); err != nil {
			return err
		}
		transfer = &active
	}
	return v.validateOutbound(ctx, params, state, transfer)
}

// ValidateAndApplyInbound validates a counterparty update against state,
// applies it, and countersigns it. It returns the double-signed update and
// the resulting state. A retransmission of the stored latest update yields
// the stored update and state unchanged.
func (v *Validator) ValidateAndApplyInbound(ctx context.Context, u protocol.ChannelUpdate, state *protocol.ChannelState) (protocol.ChannelUpdate, *protocol.ChannelState, error) {
	if err := u.ValidateBasic(); err != nil {
		return protocol.ChannelUpdate{}, nil, err
	}
	me := v.signer.Identifier()

	if state != nil && state.Nonce > 0 && u.Nonce == state.Nonce {
		if !u.SameContent(state.LatestUpdate) {
			return protocol.ChannelUpdate{}, nil, errors.New("update conflicts with stored latest update")
		}
		if err := u.VerifySignatures(state.Alice, state.Bob, false); err != nil {
			return protocol.ChannelUpdate{}, nil, err
		}
		return state.LatestUpdate.Clone(), state.Clone(), nil
	}

	alice, bob := u.FromIdentifier, u.ToIdentifier
	if u.Type != protocol.UpdateTypeSetup {
		if state == nil || state.Nonce == 0 {
			return protocol.ChannelUpdate{}, nil, fmt.Errorf("channel not found: %s", u.ChannelAddress)
		}
		alice, bob = state.Alice, state.Bob
	}
	if me != alice && me != bob {
		return protocol.ChannelUpdate{}, nil, errors.New("signer is not a channel participant")
	}
	if state != nil && state.Nonce > 0 && u.Nonce != state.Nonce+1 {
		return protocol.ChannelUpdate{}, nil, fmt.Errorf("nonce %d does not follow %d", u.Nonce, state.Nonce)
	}

	// Double-signed updates arrive during sync and may have been proposed by
	// either side. Fresh proposals must come from the counterparty.
	if !u.IsDoubleSigned() {
		if u.ToIdentifier != me {
			return protocol.ChannelUpdate{}, nil, errors.New("update is not addressed to this node")
		}
		proposerSig := u.BobSignature
		if u.FromIdentifier == alice {
			proposerSig = u.AliceSignature
		}
		if strings.TrimSpace(proposerSig) == "" {
			return protocol.ChannelUpdate{}, nil, errors.New("update is not signed by its proposer")
		}
	}
	if err := u.VerifySignatures(alice, bob, false); err != nil {
		return protocol.ChannelUpdate{}, nil, err
	}

	transfer, err := v.checkInbound(ctx, u, state)
	if err != nil {
		return protocol.ChannelUpdate{}, nil, err
	}
	if v.external != nil {
		if err := v.external.ValidateInbound(ctx, u, state, transfer); err != nil {
			return protocol.ChannelUpdate{}, nil, fmt.Errorf("external validation: %w", err)
		}
	}

	next, err := update.ApplyUpdate(state, u)
	if err != nil {
		return protocol.ChannelUpdate{}, nil, err
	}
	signed := u.Clone()
	if !signed.IsDoubleSigned() {
		if err := signed.AddSignature(v.signer, next.Alice, next.Bob); err != nil {
			return protocol.ChannelUpdate{}, nil, fmt.Errorf("countersign: %w", err)
		}
	}
	if err := signed.VerifySignatures(next.Alice, next.Bob, true); err != nil {
		return protocol.ChannelUpdate{}, nil, err
	}
	next.LatestUpdate = signed.Clone()
	return signed, next, nil
}

func (v *Validator) checkInbound(ctx context.Context, u protocol.ChannelUpdate, state *protocol.ChannelState) (*protocol.Transfer, error) {
	switch u.Type {
	case protocol.UpdateTypeDeposit:
		if v.chain == nil {
			return nil, nil
		}
		totalAlice, err := v.chain.GetTotalDepositedAlice(ctx, u.ChannelAddress, u.AssetID)
		if err != nil {
			return nil, fmt.Errorf("read alice deposits: %w", err)
		}
		onchain, err := v.chain.GetChannelOnchainBalance(ctx, u.ChannelAddress, u.AssetID)
		if err != nil {
			return nil, fmt.Errorf("read onchain balance: %w", err)
		}
		totalAlice = orZero(totalAlice)
		totalBob := new(big.Int).Sub(orZero(onchain), totalAlice)
		details := u.Details.Deposit
		if orZero(details.TotalDepositsAlice).Cmp(totalAlice) > 0 || orZero(details.TotalDepositsBob).Cmp(totalBob) > 0 {
			return nil, errors.New("deposit totals exceed onchain deposits")
		}
		return nil, nil
	case protocol.UpdateTypeCreate:
		transfer := u.Details.Create.Transfer.Clone()
		return &transfer, nil
	case protocol.UpdateTypeResolve:
		active, ok := state.Transfer(u.Details.Resolve.TransferID)
		if !ok {
			return nil, fmt.Errorf("transfer not active: %s", u.Details.Resolve.TransferID)
		}
		if err := checkResolution(active, u.FromIdentifier, u.Details.Resolve.PreImage); err != nil {
			return nil, err
		}
		return &active, nil
	}
	return nil, nil
}

// checkResolution: a pre-image must unlock the transfer, and only the
// responder may cancel it.
func checkResolution(t protocol.Transfer, resolver, preImage string) error {
	if preImage == "" {
		if resolver != t.Responder {
			return errors.New("only the responder may cancel a transfer")
		}
		return nil
	}
	if !strings.EqualFold(protocol.HashPreImage(preImage), t.LockHash) {
		return errors.New("pre-image does not unlock transfer")
	}
	return nil
}

func (v *Validator) validateOutbound(ctx context.Context, params protocol.UpdateParams, state *protocol.ChannelState, transfer *protocol.Transfer) error {
	if v.external == nil {
		return nil
	}
	if err := v.external.ValidateOutbound(ctx, params, state, transfer); err != nil {
		return fmt.Errorf("external validation: %w", err)
	}
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
