package transport

import (
	"errors"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// ProtocolMessage is a proposal sent to the counterparty.
type ProtocolMessage struct {
	Update         protocol.ChannelUpdate  `json:"update"`
	PreviousUpdate *protocol.ChannelUpdate `json:"previousUpdate,omitempty"`
}

// ProtocolReply is the counterparty's answer: either the countersigned
// update or the error it rejected the proposal with.
type ProtocolReply struct {
	Update         *protocol.ChannelUpdate `json:"update,omitempty"`
	PreviousUpdate *protocol.ChannelUpdate `json:"previousUpdate,omitempty"`
	Error          *protocol.InboundError  `json:"error,omitempty"`
}

func (r *ProtocolReply) response() (*channel.ProtocolResponse, error) {
	if r.Error != nil {
		return nil, r.Error
	}
	if r.Update == nil {
		return nil, errors.New("empty protocol reply")
	}
	return &channel.ProtocolResponse{Update: *r.Update, PreviousUpdate: r.PreviousUpdate}, nil
}
