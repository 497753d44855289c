package update

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// ApplyUpdate returns the state that results from applying u to prev. prev
// is nil for setup. The update's balance and merkle root must match the
// computed result. Signatures are not checked here.
func ApplyUpdate(prev *protocol.ChannelState, u protocol.ChannelUpdate) (*protocol.ChannelState, error) {
	next, err := transition(prev, u)
	if err != nil {
		return nil, err
	}
	if u.Type != protocol.UpdateTypeSetup {
		idx := next.AssetIndex(u.AssetID)
		if !next.Balances[idx].Equal(u.Balance) {
			return nil, errors.New("update balance does not match computed balance")
		}
	}
	switch u.Type {
	case protocol.UpdateTypeCreate:
		if u.Details.Create.MerkleRoot != next.MerkleRoot {
			return nil, errors.New("merkle root mismatch")
		}
	case protocol.UpdateTypeResolve:
		if u.Details.Resolve.MerkleRoot != next.MerkleRoot {
			return nil, errors.New("merkle root mismatch")
		}
	}
	next.LatestUpdate = u.Clone()
	return next, nil
}

// transition computes the next state without checking the update's derived
// fields. The generator uses it to fill them in.
func transition(prev *protocol.ChannelState, u protocol.ChannelUpdate) (*protocol.ChannelState, error) {
	if u.Type == protocol.UpdateTypeSetup {
		return applySetup(prev, u)
	}
	if prev == nil || prev.Nonce == 0 {
		return nil, fmt.Errorf("channel %s is not set up", u.ChannelAddress)
	}
	if !strings.EqualFold(prev.ChannelAddress, u.ChannelAddress) {
		return nil, fmt.Errorf("update for %s applied to channel %s", u.ChannelAddress, prev.ChannelAddress)
	}
	if u.Nonce != prev.Nonce+1 {
		return nil, fmt.Errorf("nonce %d does not follow %d", u.Nonce, prev.Nonce)
	}
	if !prev.IsParticipant(u.FromIdentifier) || prev.Counterparty(u.FromIdentifier) != u.ToIdentifier {
		return nil, errors.New("update parties are not the channel participants")
	}

	next := prev.Clone()
	next.Nonce = u.Nonce

	var err error
	switch u.Type {
	case protocol.UpdateTypeDeposit:
		err = applyDeposit(next, u)
	case protocol.UpdateTypeCreate:
		err = applyCreate(next, u)
	case protocol.UpdateTypeResolve:
		err = applyResolve(next, u)
	default:
		err = fmt.Errorf("unsupported update type: %s", u.Type)
	}
	if err != nil {
		return nil, err
	}
	next.MerkleRoot = protocol.TransferRoot(next.ActiveTransfers)
	return next, nil
}

func applySetup(prev *protocol.ChannelState, u protocol.ChannelUpdate) (*protocol.ChannelState, error) {
	if prev != nil && prev.Nonce != 0 {
		return nil, fmt.Errorf("channel already set up: %s", prev.ChannelAddress)
	}
	if u.Nonce != 1 {
		return nil, errors.New("setup nonce must be 1")
	}
	details := u.Details.Setup
	if details == nil {
		return nil, errors.New("setup details are required")
	}
	expected := protocol.DeriveChannelAddress(u.FromIdentifier, u.ToIdentifier, details.ChainID)
	if !strings.EqualFold(expected, u.ChannelAddress) {
		return nil, fmt.Errorf("channel address %s does not match participants", u.ChannelAddress)
	}
	return &protocol.ChannelState{
		ChannelAddress:     expected,
		Alice:              u.FromIdentifier,
		Bob:                u.ToIdentifier,
		ChainID:            details.ChainID,
		Timeout:            details.Timeout,
		Nonce:              1,
		AssetIDs:           []string{},
		Balances:           []protocol.Balance{},
		ProcessedDepositsA: []*big.Int{},
		ProcessedDepositsB: []*big.Int{},
		ActiveTransfers:    []protocol.Transfer{},
		MerkleRoot:         protocol.EmptyRoot,
	}, nil
}

func applyDeposit(next *protocol.ChannelState, u protocol.ChannelUpdate) error {
	details := u.Details.Deposit
	if details == nil {
		return errors.New("deposit details are required")
	}
	idx := ensureAsset(next, u.AssetID)
	totalA := orZero(details.TotalDepositsAlice)
	totalB := orZero(details.TotalDepositsBob)
	deltaA := new(big.Int).Sub(totalA, next.ProcessedDepositsA[idx])
	deltaB := new(big.Int).Sub(totalB, next.ProcessedDepositsB[idx])
	if deltaA.Sign() < 0 || deltaB.Sign() < 0 {
		return errors.New("deposit totals are below processed deposits")
	}
	next.Balances[idx].AmountA.Add(next.Balances[idx].AmountA, deltaA)
	next.Balances[idx].AmountB.Add(next.Balances[idx].AmountB, deltaB)
	next.ProcessedDepositsA[idx] = new(big.Int).Set(totalA)
	next.ProcessedDepositsB[idx] = new(big.Int).Set(totalB)
	return nil
}

func applyCreate(next *protocol.ChannelState, u protocol.ChannelUpdate) error {
	details := u.Details.Create
	if details == nil {
		return errors.New("create details are required")
	}
	transfer := details.Transfer.Clone()
	if strings.TrimSpace(transfer.TransferID) == "" {
		return errors.New("transfer_id is required")
	}
	if _, exists := next.Transfer(transfer.TransferID); exists {
		return fmt.Errorf("transfer already exists: %s", transfer.TransferID)
	}
	if !strings.EqualFold(transfer.AssetID, u.AssetID) {
		return errors.New("transfer asset does not match update asset")
	}
	if !strings.EqualFold(transfer.ChannelAddress, next.ChannelAddress) {
		return errors.New("transfer channel does not match")
	}
	if transfer.Initiator != u.FromIdentifier || transfer.Responder != u.ToIdentifier {
		return errors.New("transfer must be initiated by the proposer")
	}
	if transfer.Amount.Sign() <= 0 {
		return errors.New("transfer amount must be positive")
	}
	if transfer.PreImage != "" {
		return errors.New("transfer pre-image must not be set on create")
	}
	idx := next.AssetIndex(u.AssetID)
	if idx < 0 {
		return fmt.Errorf("asset %s has no balance", u.AssetID)
	}
	side := sideOf(next, transfer.Initiator)
	if side.Cmp(transfer.Amount, next.Balances[idx]) < 0 {
		return errors.New("insufficient balance for transfer")
	}
	side.Sub(&next.Balances[idx], transfer.Amount)
	next.ActiveTransfers = append(next.ActiveTransfers, transfer)
	return nil
}

func applyResolve(next *protocol.ChannelState, u protocol.ChannelUpdate) error {
	details := u.Details.Resolve
	if details == nil {
		return errors.New("resolve details are required")
	}
	transfer, ok := next.Transfer(details.TransferID)
	if !ok {
		return fmt.Errorf("transfer not active: %s", details.TransferID)
	}
	if !strings.EqualFold(transfer.AssetID, u.AssetID) {
		return errors.New("transfer asset does not match update asset")
	}
	idx := next.AssetIndex(transfer.AssetID)
	if idx < 0 {
		return fmt.Errorf("asset %s has no balance", transfer.AssetID)
	}
	payee := transfer.Initiator
	if details.PreImage != "" {
		if !strings.EqualFold(protocol.HashPreImage(details.PreImage), transfer.LockHash) {
			return errors.New("pre-image does not unlock transfer")
		}
		payee = transfer.Responder
	}
	sideOf(next, payee).Add(&next.Balances[idx], transfer.Amount)

	remaining := make([]protocol.Transfer, 0, len(next.ActiveTransfers)-1)
	for _, t := range next.ActiveTransfers {
		if t.TransferID != transfer.TransferID {
			remaining = append(remaining, t)
		}
	}
	next.ActiveTransfers = remaining
	return nil
}

func ensureAsset(s *protocol.ChannelState, assetID string) int {
	if idx := s.AssetIndex(assetID); idx >= 0 {
		return idx
	}
	s.AssetIDs = append(s.AssetIDs, assetID)
	s.Balances = append(s.Balances, protocol.NewBalance(0, 0))
	s.ProcessedDepositsA = append(s.ProcessedDepositsA, new(big.Int))
	s.ProcessedDepositsB = append(s.ProcessedDepositsB, new(big.Int))
	return len(s.AssetIDs) - 1
}

// side addresses alice's or bob's half of a balance.
type side bool

const (
	sideAlice side = true
	sideBob   side = false
)

func sideOf(s *protocol.ChannelState, identifier string) side {
	if identifier == s.Alice {
		return sideAlice
	}
	return sideBob
}

func (sd side) amount(b protocol.Balance) *big.Int {
	if sd == sideAlice {
		return orZero(b.AmountA)
	}
	return orZero(b.AmountB)
}

// Cmp compares this side's amount in b against v.
func (sd side) Cmp(v *big.Int, b protocol.Balance) int {
	return sd.amount(b).Cmp(v)
}

func (sd side) Add(b *protocol.Balance, v *big.Int) {
	sd.set(b, new(big.Int).Add(sd.amount(*b), v))
}

func (sd side) Sub(b *protocol.Balance, v *big.Int) {
	sd.set(b, new(big.Int).Sub(sd.amount(*b), v))
}

func (sd side) set(b *protocol.Balance, v *big.Int) {
	if sd == sideAlice {
		b.AmountA = v
		return
	}
	b.AmountB = v
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
