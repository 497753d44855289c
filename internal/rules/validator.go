package rules

import (
	"context"
	"math/big"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// ExpressionValidator checks proposals against operator supplied
// expressions. Outbound rules run before a local proposal is generated;
// inbound rules run before a counterparty proposal is applied.
//
// Expressions see these parameters:
//
//	type, channelAddress, assetId, nonce, chainId, timeout,
//	amount, balanceAlice, balanceBob, activeTransfers, preImageProvided
//
// Amounts are float64; missing values are zero.
type ExpressionValidator struct {
	inbound  []compiledRule
	outbound []compiledRule
}

func NewExpressionValidator(inbound, outbound []Rule) (*ExpressionValidator, error) {
	in, err := compile(inbound)
	if err != nil {
		return nil, err
	}
	out, err := compile(outbound)
	if err != nil {
		return nil, err
	}
	return &ExpressionValidator{inbound: in, outbound: out}, nil
}

func (v *ExpressionValidator) ValidateOutbound(_ context.Context, params protocol.UpdateParams, state *protocol.ChannelState, transfer *protocol.Transfer) error {
	if len(v.outbound) == 0 {
		return nil
	}
	values := baseParams(state)
	values["type"] = string(params.Type)
	values["channelAddress"] = params.ChannelAddress
	values["nonce"] = float64(stateNonce(state) + 1)

	d := params.Details
	switch {
	case d.Setup != nil:
		values["chainId"] = float64(d.Setup.ChainID)
		values["timeout"] = float64(d.Setup.Timeout)
	case d.Deposit != nil:
		setAsset(values, state, d.Deposit.AssetID)
	case d.Create != nil:
		setAsset(values, state, d.Create.AssetID)
		values["amount"] = toFloat(d.Create.Amount)
	case d.Resolve != nil:
		values["preImageProvided"] = d.Resolve.PreImage != ""
	}
	if transfer != nil {
		setAsset(values, state, transfer.AssetID)
		values["amount"] = toFloat(transfer.Amount)
	}
	return evaluate(v.outbound, params.Type, values)
}

func (v *ExpressionValidator) ValidateInbound(_ context.Context, update protocol.ChannelUpdate, state *protocol.ChannelState, transfer *protocol.Transfer) error {
	if len(v.inbound) == 0 {
		return nil
	}
	values := baseParams(state)
	values["type"] = string(update.Type)
	values["channelAddress"] = update.ChannelAddress
	values["nonce"] = float64(update.Nonce)

	if update.Type != protocol.UpdateTypeSetup {
		values["assetId"] = update.AssetID
		values["balanceAlice"] = toFloat(update.Balance.AmountA)
		values["balanceBob"] = toFloat(update.Balance.AmountB)
	}
	d := update.Details
	switch {
	case d.Setup != nil:
		values["chainId"] = float64(d.Setup.ChainID)
		values["timeout"] = float64(d.Setup.Timeout)
	case d.Resolve != nil:
		values["preImageProvided"] = d.Resolve.PreImage != ""
	}
	if transfer != nil {
		values["amount"] = toFloat(transfer.Amount)
	}
	return evaluate(v.inbound, update.Type, values)
}

func baseParams(state *protocol.ChannelState) map[string]interface{} {
	values := map[string]interface{}{
		"type":             "",
		"channelAddress":   "",
		"assetId":          "",
		"nonce":            0.0,
		"chainId":          0.0,
		"timeout":          0.0,
		"amount":           0.0,
		"balanceAlice":     0.0,
		"balanceBob":       0.0,
		"activeTransfers":  0.0,
		"preImageProvided": false,
	}
	if state != nil {
		values["chainId"] = float64(state.ChainID)
		values["timeout"] = float64(state.Timeout)
		values["activeTransfers"] = float64(len(state.ActiveTransfers))
	}
	return values
}

func setAsset(values map[string]interface{}, state *protocol.ChannelState, assetID string) {
	values["assetId"] = assetID
	if state == nil {
		return
	}
	if idx := state.AssetIndex(assetID); idx >= 0 {
		values["balanceAlice"] = toFloat(state.Balances[idx].AmountA)
		values["balanceBob"] = toFloat(state.Balances[idx].AmountB)
	}
}

func stateNonce(state *protocol.ChannelState) uint64 {
	if state == nil {
		return 0
	}
	return state.Nonce
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
