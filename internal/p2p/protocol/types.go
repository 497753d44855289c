package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// UpdateType defines supported channel state transitions.
type UpdateType string

const (
	UpdateTypeSetup   UpdateType = "setup"
	UpdateTypeDeposit UpdateType = "deposit"
	UpdateTypeCreate  UpdateType = "create"
	UpdateTypeResolve UpdateType = "resolve"
)

var validTypes = map[UpdateType]struct{}{
	UpdateTypeSetup:   {},
	UpdateTypeDeposit: {},
	UpdateTypeCreate:  {},
	UpdateTypeResolve: {},
}

// Valid reports whether t is a known update type.
func (t UpdateType) Valid() bool {
	_, ok := validTypes[t]
	return ok
}

// Balance holds the amounts owned by alice and bob for one asset.
type Balance struct {
	AmountA *big.Int `json:"amountA"`
	AmountB *big.Int `json:"amountB"`
}

func NewBalance(a, b int64) Balance {
	return Balance{AmountA: big.NewInt(a), AmountB: big.NewInt(b)}
}

func (b Balance) Clone() Balance {
	return Balance{AmountA: cloneInt(b.AmountA), AmountB: cloneInt(b.AmountB)}
}

func (b Balance) Equal(o Balance) bool {
	return cloneInt(b.AmountA).Cmp(cloneInt(o.AmountA)) == 0 &&
		cloneInt(b.AmountB).Cmp(cloneInt(o.AmountB)) == 0
}

// Total returns the sum of both sides.
func (b Balance) Total() *big.Int {
	return new(big.Int).Add(cloneInt(b.AmountA), cloneInt(b.AmountB))
}

// Transfer is a conditional hashlock payment locked inside a channel.
type Transfer struct {
	TransferID     string   `json:"transferId"`
	ChannelAddress string   `json:"channelAddress"`
	AssetID        string   `json:"assetId"`
	Amount         *big.Int `json:"amount"`
	Initiator      string   `json:"initiator"`
	Responder      string   `json:"responder"`
	LockHash       string   `json:"lockHash"`
	Expiry         uint64   `json:"expiry,omitempty"`
	PreImage       string   `json:"preImage,omitempty"`
}

func (t Transfer) Clone() Transfer {
	t.Amount = cloneInt(t.Amount)
	return t
}

type SetupDetails struct {
	ChainID uint64 `json:"chainId"`
	Timeout uint64 `json:"timeout"`
}

type DepositDetails struct {
	TotalDepositsAlice *big.Int `json:"totalDepositsAlice"`
	TotalDepositsBob   *big.Int `json:"totalDepositsBob"`
}

type CreateDetails struct {
	Transfer   Transfer `json:"transfer"`
	MerkleRoot string   `json:"merkleRoot"`
}

type ResolveDetails struct {
	TransferID string `json:"transferId"`
	PreImage   string `json:"preImage,omitempty"`
	MerkleRoot string `json:"merkleRoot"`
}

// UpdateDetails is a tagged union keyed by ChannelUpdate.Type. Exactly one
// member is set and it must match the update type.
type UpdateDetails struct {
	Setup   *SetupDetails   `json:"setup,omitempty"`
	Deposit *DepositDetails `json:"deposit,omitempty"`
	Create  *CreateDetails  `json:"create,omitempty"`
	Resolve *ResolveDetails `json:"resolve,omitempty"`
}

func (d UpdateDetails) tag() (UpdateType, error) {
	var (
		found UpdateType
		count int
	)
	if d.Setup != nil {
		found, count = UpdateTypeSetup, count+1
	}
	if d.Deposit != nil {
		found, count = UpdateTypeDeposit, count+1
	}
	if d.Create != nil {
		found, count = UpdateTypeCreate, count+1
	}
	if d.Resolve != nil {
		found, count = UpdateTypeResolve, count+1
	}
	if count != 1 {
		return "", fmt.Errorf("expected exactly one details member, got %d", count)
	}
	return found, nil
}

func (d UpdateDetails) Clone() UpdateDetails {
	out := UpdateDetails{}
	if d.Setup != nil {
		cp := *d.Setup
		out.Setup = &cp
	}
	if d.Deposit != nil {
		out.Deposit = &DepositDetails{
			TotalDepositsAlice: cloneInt(d.Deposit.TotalDepositsAlice),
			TotalDepositsBob:   cloneInt(d.Deposit.TotalDepositsBob),
		}
	}
	if d.Create != nil {
		out.Create = &CreateDetails{Transfer: d.Create.Transfer.Clone(), MerkleRoot: d.Create.MerkleRoot}
	}
	if d.Resolve != nil {
		cp := *d.Resolve
		out.Resolve = &cp
	}
	return out
}

// ChannelUpdate is a proposed or applied channel state transition.
type ChannelUpdate struct {
	ChannelAddress string        `json:"channelAddress"`
	FromIdentifier string        `json:"fromIdentifier"`
	ToIdentifier   string        `json:"toIdentifier"`
	Type           UpdateType    `json:"type"`
	Nonce          uint64        `json:"nonce"`
	AssetID        string        `json:"assetId,omitempty"`
	Balance        Balance       `json:"balance"`
	Details        UpdateDetails `json:"details"`
	AliceSignature string        `json:"aliceSignature,omitempty"`
	BobSignature   string        `json:"bobSignature,omitempty"`
}

type updateSignable struct {
	ChannelAddress string        `json:"channelAddress"`
	FromIdentifier string        `json:"fromIdentifier"`
	ToIdentifier   string        `json:"toIdentifier"`
	Type           UpdateType    `json:"type"`
	Nonce          uint64        `json:"nonce"`
	AssetID        string        `json:"assetId,omitempty"`
	Balance        Balance       `json:"balance"`
	Details        UpdateDetails `json:"details"`
}

// CanonicalBytes returns the deterministic signing payload. Signatures are
// excluded and nil amounts are encoded as zero.
func (u ChannelUpdate) CanonicalBytes() ([]byte, error) {
	signable := updateSignable{
		ChannelAddress: strings.ToLower(strings.TrimSpace(u.ChannelAddress)),
		FromIdentifier: strings.TrimSpace(u.FromIdentifier),
		ToIdentifier:   strings.TrimSpace(u.ToIdentifier),
		Type:           u.Type,
		Nonce:          u.Nonce,
		AssetID:        strings.TrimSpace(u.AssetID),
		Balance:        u.Balance.Clone(),
		Details:        u.Details.Clone(),
	}
	return json.Marshal(signable)
}

// Digest is the keccak-256 hash of the canonical bytes; both parties sign it.
func (u ChannelUpdate) Digest() ([]byte, error) {
	payload, err := u.CanonicalBytes()
	if err != nil {
		return nil, err
	}
	return Keccak256(payload), nil
}

// SameContent reports whether two updates describe the same transition,
// ignoring signatures.
func (u ChannelUpdate) SameContent(o ChannelUpdate) bool {
	a, err := u.Digest()
	if err != nil {
		return false
	}
	b, err := o.Digest()
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

func (u ChannelUpdate) IsDoubleSigned() bool {
	return strings.TrimSpace(u.AliceSignature) != "" && strings.TrimSpace(u.BobSignature) != ""
}

func (u ChannelUpdate) IsEmpty() bool {
	return u.ChannelAddress == "" && u.Nonce == 0 && u.Type == ""
}

func (u ChannelUpdate) Clone() ChannelUpdate {
	u.Balance = u.Balance.Clone()
	u.Details = u.Details.Clone()
	return u
}

// ValidateBasic checks required immutable update fields.
func (u ChannelUpdate) ValidateBasic() error {
	if strings.TrimSpace(u.ChannelAddress) == "" {
		return errors.New("channel_address is required")
	}
	if strings.TrimSpace(u.FromIdentifier) == "" {
		return errors.New("from_identifier is required")
	}
	if strings.TrimSpace(u.ToIdentifier) == "" {
		return errors.New("to_identifier is required")
	}
	if u.FromIdentifier == u.ToIdentifier {
		return errors.New("from and to identifiers must differ")
	}
	if !u.Type.Valid() {
		return fmt.Errorf("unsupported update type: %s", u.Type)
	}
	if u.Nonce == 0 {
		return errors.New("nonce must be positive")
	}
	tag, err := u.Details.tag()
	if err != nil {
		return err
	}
	if tag != u.Type {
		return fmt.Errorf("details for %s do not match update type %s", tag, u.Type)
	}
	if u.Type != UpdateTypeSetup && strings.TrimSpace(u.AssetID) == "" {
		return errors.New("asset_id is required")
	}
	if isNegative(u.Balance.AmountA) || isNegative(u.Balance.AmountB) {
		return errors.New("balance must not be negative")
	}
	if strings.TrimSpace(u.AliceSignature) == "" && strings.TrimSpace(u.BobSignature) == "" {
		return errors.New("at least one signature is required")
	}
	return nil
}

// AddSignature fills the signature slot that belongs to signer.
func (u *ChannelUpdate) AddSignature(signer Signer, alice, bob string) error {
	digest, err := u.Digest()
	if err != nil {
		return err
	}
	sig, err := signer.Sign(digest)
	if err != nil {
		return err
	}
	switch signer.Identifier() {
	case alice:
		u.AliceSignature = sig
	case bob:
		u.BobSignature = sig
	default:
		return fmt.Errorf("signer %s is not a channel participant", signer.Identifier())
	}
	return nil
}

// VerifySignatures checks every present signature against the channel
// participants. With requireBoth the update must be double-signed.
func (u ChannelUpdate) VerifySignatures(alice, bob string, requireBoth bool) error {
	if requireBoth && !u.IsDoubleSigned() {
		return errors.New("update is not double signed")
	}
	digest, err := u.Digest()
	if err != nil {
		return err
	}
	if strings.TrimSpace(u.AliceSignature) != "" {
		if err := VerifySignature(alice, digest, u.AliceSignature); err != nil {
			return fmt.Errorf("alice signature: %w", err)
		}
	}
	if strings.TrimSpace(u.BobSignature) != "" {
		if err := VerifySignature(bob, digest, u.BobSignature); err != nil {
			return fmt.Errorf("bob signature: %w", err)
		}
	}
	return nil
}

// ChannelState is the authoritative versioned snapshot of a channel.
type ChannelState struct {
	ChannelAddress     string        `json:"channelAddress"`
	Alice              string        `json:"alice"`
	Bob                string        `json:"bob"`
	ChainID            uint64        `json:"chainId"`
	Timeout            uint64        `json:"timeout"`
	Nonce              uint64        `json:"nonce"`
	AssetIDs           []string      `json:"assetIds"`
	Balances           []Balance     `json:"balances"`
	ProcessedDepositsA []*big.Int    `json:"processedDepositsA"`
	ProcessedDepositsB []*big.Int    `json:"processedDepositsB"`
	ActiveTransfers    []Transfer    `json:"activeTransfers"`
	MerkleRoot         string        `json:"merkleRoot"`
	LatestUpdate       ChannelUpdate `json:"latestUpdate"`
}

func (s *ChannelState) Clone() *ChannelState {
	if s == nil {
		return nil
	}
	out := *s
	out.AssetIDs = append([]string(nil), s.AssetIDs...)
	out.Balances = make([]Balance, len(s.Balances))
	for i, b := range s.Balances {
		out.Balances[i] = b.Clone()
	}
	out.ProcessedDepositsA = cloneInts(s.ProcessedDepositsA)
	out.ProcessedDepositsB = cloneInts(s.ProcessedDepositsB)
	out.ActiveTransfers = make([]Transfer, len(s.ActiveTransfers))
	for i, t := range s.ActiveTransfers {
		out.ActiveTransfers[i] = t.Clone()
	}
	out.LatestUpdate = s.LatestUpdate.Clone()
	return &out
}

// AssetIndex returns the balance index of assetID, or -1.
func (s *ChannelState) AssetIndex(assetID string) int {
	for i, id := range s.AssetIDs {
		if strings.EqualFold(id, assetID) {
			return i
		}
	}
	return -1
}

// Transfer returns the active transfer with the given id.
func (s *ChannelState) Transfer(transferID string) (Transfer, bool) {
	for _, t := range s.ActiveTransfers {
		if t.TransferID == transferID {
			return t, true
		}
	}
	return Transfer{}, false
}

func (s *ChannelState) IsParticipant(identifier string) bool {
	return identifier != "" && (identifier == s.Alice || identifier == s.Bob)
}

// Counterparty returns the other participant, or "" if identifier is not one.
func (s *ChannelState) Counterparty(identifier string) string {
	switch identifier {
	case s.Alice:
		return s.Bob
	case s.Bob:
		return s.Alice
	default:
		return ""
	}
}

type SetupParams struct {
	CounterpartyIdentifier string `json:"counterpartyIdentifier"`
	ChainID                uint64 `json:"chainId"`
	Timeout                uint64 `json:"timeout"`
}

type DepositParams struct {
	AssetID string `json:"assetId"`
}

type CreateParams struct {
	TransferID string   `json:"transferId,omitempty"`
	AssetID    string   `json:"assetId"`
	Amount     *big.Int `json:"amount"`
	LockHash   string   `json:"lockHash"`
	Expiry     uint64   `json:"expiry,omitempty"`
}

type ResolveParams struct {
	TransferID string `json:"transferId"`
	PreImage   string `json:"preImage,omitempty"`
}

// ParamsDetails is the tagged union of per-type update parameters.
type ParamsDetails struct {
	Setup   *SetupParams   `json:"setup,omitempty"`
	Deposit *DepositParams `json:"deposit,omitempty"`
	Create  *CreateParams  `json:"create,omitempty"`
	Resolve *ResolveParams `json:"resolve,omitempty"`
}

// UpdateParams is a caller's intent, consumed once by the generator.
type UpdateParams struct {
	ChannelAddress string        `json:"channelAddress"`
	Type           UpdateType    `json:"type"`
	Details        ParamsDetails `json:"details"`
}

// ValidateBasic checks that the params carry the member matching Type.
func (p UpdateParams) ValidateBasic() error {
	if !p.Type.Valid() {
		return fmt.Errorf("unsupported update type: %s", p.Type)
	}
	if p.Type != UpdateTypeSetup && strings.TrimSpace(p.ChannelAddress) == "" {
		return errors.New("channel_address is required")
	}
	switch p.Type {
	case UpdateTypeSetup:
		if p.Details.Setup == nil {
			return errors.New("setup details are required")
		}
		if strings.TrimSpace(p.Details.Setup.CounterpartyIdentifier) == "" {
			return errors.New("counterparty_identifier is required")
		}
	case UpdateTypeDeposit:
		if p.Details.Deposit == nil {
			return errors.New("deposit details are required")
		}
		if strings.TrimSpace(p.Details.Deposit.AssetID) == "" {
			return errors.New("asset_id is required")
		}
	case UpdateTypeCreate:
		if p.Details.Create == nil {
			return errors.New("create details are required")
		}
		if strings.TrimSpace(p.Details.Create.AssetID) == "" {
			return errors.New("asset_id is required")
		}
		if p.Details.Create.Amount == nil || p.Details.Create.Amount.Sign() <= 0 {
			return errors.New("amount must be positive")
		}
		if !isHash(p.Details.Create.LockHash) {
			return errors.New("lock_hash must be a 32 byte hex string")
		}
	case UpdateTypeResolve:
		if p.Details.Resolve == nil {
			return errors.New("resolve details are required")
		}
		if strings.TrimSpace(p.Details.Resolve.TransferID) == "" {
			return errors.New("transfer_id is required")
		}
	}
	return nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func cloneInts(in []*big.Int) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, v := range in {
		out[i] = cloneInt(v)
	}
	return out
}

func isNegative(v *big.Int) bool {
	return v != nil && v.Sign() < 0
}
