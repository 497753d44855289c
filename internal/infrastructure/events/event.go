package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// Type names a protocol event.
type Type string

const (
	TypeChannelSetup      Type = "CHANNEL_SETUP"
	TypeDepositReconciled Type = "DEPOSIT_RECONCILED"
	TypeTransferCreated   Type = "TRANSFER_CREATED"
	TypeTransferResolved  Type = "TRANSFER_RESOLVED"
)

// TypeForUpdate maps an update type to the event emitted once it is
// double signed and stored.
func TypeForUpdate(t protocol.UpdateType) (Type, bool) {
	switch t {
	case protocol.UpdateTypeSetup:
		return TypeChannelSetup, true
	case protocol.UpdateTypeDeposit:
		return TypeDepositReconciled, true
	case protocol.UpdateTypeCreate:
		return TypeTransferCreated, true
	case protocol.UpdateTypeResolve:
		return TypeTransferResolved, true
	default:
		return "", false
	}
}

// Event is delivered to subscribers of the local identity it concerns.
type Event struct {
	ID             string          `json:"id"`
	Type           Type            `json:"type"`
	Identifier     string          `json:"identifier"`
	ChannelAddress string          `json:"channelAddress"`
	Nonce          uint64          `json:"nonce"`
	Data           json.RawMessage `json:"data"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Payload is the data carried by every channel event.
type Payload struct {
	Update   protocol.ChannelUpdate `json:"update"`
	Balances []protocol.Balance     `json:"balances"`
	AssetIDs []string               `json:"assetIds"`
	Transfer *protocol.Transfer     `json:"transfer,omitempty"`
}

// NewChannelEvent builds the event for an applied update as seen by the
// local identity.
func NewChannelEvent(identifier string, state *protocol.ChannelState) (*Event, error) {
	update := state.LatestUpdate
	t, ok := TypeForUpdate(update.Type)
	if !ok {
		return nil, fmt.Errorf("no event for update type %q", update.Type)
	}
	payload := Payload{
		Update:   update,
		Balances: state.Balances,
		AssetIDs: state.AssetIDs,
	}
	switch {
	case update.Details.Create != nil:
		tr := update.Details.Create.Transfer.Clone()
		payload.Transfer = &tr
	case update.Details.Resolve != nil:
		payload.Transfer = &protocol.Transfer{
			TransferID:     update.Details.Resolve.TransferID,
			ChannelAddress: update.ChannelAddress,
			PreImage:       update.Details.Resolve.PreImage,
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:             uuid.New().String(),
		Type:           t,
		Identifier:     identifier,
		ChannelAddress: update.ChannelAddress,
		Nonce:          update.Nonce,
		Data:           data,
		Timestamp:      time.Now().UTC(),
	}, nil
}
