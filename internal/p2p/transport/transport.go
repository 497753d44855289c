package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

const ProtocolPath = "/v1/protocol"

var (
	ErrUnknownRecipient = errors.New("unknown recipient")
	ErrUnknownPeer      = errors.New("no address for peer")
	ErrUnknownInbox     = errors.New("unknown inbox")
	ErrAlreadyAnswered  = errors.New("inbox already answered")
	ErrNoReply          = errors.New("counterparty did not reply")
)

// ProtocolHandler processes a proposal addressed to a local identity and
// answers through the inbox.
type ProtocolHandler interface {
	HandleProtocolMessage(ctx context.Context, u protocol.ChannelUpdate, previous *protocol.ChannelUpdate, inbox string) error
}

// Resolver finds the handler of a local identity.
type Resolver func(identifier string) (ProtocolHandler, bool)

// Transport implements channel.Messaging. Proposals to identities hosted in
// this process are delivered directly; others are posted to the peer's
// protocol endpoint. Replies are correlated through per-request inboxes.
type Transport struct {
	resolve Resolver
	client  *http.Client

	mu      sync.RWMutex
	peers   map[string]string
	inboxes map[string]chan *ProtocolReply

	logger zerolog.Logger
}

func New(resolve Resolver, peers map[string]string, timeout time.Duration, logger zerolog.Logger) *Transport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	t := &Transport{
		resolve: resolve,
		client:  &http.Client{Timeout: timeout},
		peers:   map[string]string{},
		inboxes: map[string]chan *ProtocolReply{},
		logger:  logger.With().Str("component", "transport").Logger(),
	}
	for id, url := range peers {
		t.peers[id] = strings.TrimRight(url, "/")
	}
	return t
}

// AddPeer records the base URL serving identifier.
func (t *Transport) AddPeer(identifier, baseURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[identifier] = strings.TrimRight(baseURL, "/")
}

func (t *Transport) SendProtocolMessage(ctx context.Context, u protocol.ChannelUpdate, previous *protocol.ChannelUpdate) (*channel.ProtocolResponse, error) {
	msg := ProtocolMessage{Update: u, PreviousUpdate: previous}

	var (
		reply *ProtocolReply
		err   error
	)
	if _, local := t.resolve(u.ToIdentifier); local {
		reply, err = t.Deliver(ctx, msg)
	} else {
		reply, err = t.post(ctx, msg)
	}
	if err != nil {
		return nil, err
	}
	return reply.response()
}

// Deliver hands msg to the local recipient and waits for its answer.
func (t *Transport) Deliver(ctx context.Context, msg ProtocolMessage) (*ProtocolReply, error) {
	handler, ok := t.resolve(msg.Update.ToIdentifier)
	if !ok {
		return nil, ErrUnknownRecipient
	}
	inbox, replies := t.open()
	defer t.close(inbox)

	handleErr := handler.HandleProtocolMessage(ctx, msg.Update, msg.PreviousUpdate, inbox)
	select {
	case reply := <-replies:
		return reply, nil
	default:
	}
	if handleErr == nil {
		handleErr = ErrNoReply
	}
	return nil, handleErr
}

func (t *Transport) RespondToProtocolMessage(_ context.Context, inbox string, u protocol.ChannelUpdate, previous *protocol.ChannelUpdate) error {
	return t.answer(inbox, &ProtocolReply{Update: &u, PreviousUpdate: previous})
}

func (t *Transport) RespondWithProtocolError(_ context.Context, inbox string, protocolErr *protocol.InboundError) error {
	return t.answer(inbox, &ProtocolReply{Error: protocolErr})
}

func (t *Transport) open() (string, chan *ProtocolReply) {
	inbox := uuid.New().String()
	replies := make(chan *ProtocolReply, 1)
	t.mu.Lock()
	t.inboxes[inbox] = replies
	t.mu.Unlock()
	return inbox, replies
}

func (t *Transport) close(inbox string) {
	t.mu.Lock()
	delete(t.inboxes, inbox)
	t.mu.Unlock()
}

func (t *Transport) answer(inbox string, reply *ProtocolReply) error {
	t.mu.RLock()
	replies, ok := t.inboxes[inbox]
	t.mu.RUnlock()
	if !ok {
		return ErrUnknownInbox
	}
	select {
	case replies <- reply:
		return nil
	default:
		return ErrAlreadyAnswered
	}
}

func (t *Transport) post(ctx context.Context, msg ProtocolMessage) (*ProtocolReply, error) {
	t.mu.RLock()
	baseURL, ok := t.peers[msg.Update.ToIdentifier]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, msg.Update.ToIdentifier)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal protocol message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+ProtocolPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create protocol request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("protocol request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read protocol reply: %w", err)
	}
	t.logger.Debug().
		Str("peer", baseURL).
		Str("channel", msg.Update.ChannelAddress).
		Uint64("nonce", msg.Update.Nonce).
		Int("status_code", resp.StatusCode).
		Msg("protocol message delivered")

	var reply ProtocolReply
	if err := json.Unmarshal(raw, &reply); err != nil || (reply.Update == nil && reply.Error == nil) {
		return nil, fmt.Errorf("unexpected protocol reply status %d", resp.StatusCode)
	}
	return &reply, nil
}
