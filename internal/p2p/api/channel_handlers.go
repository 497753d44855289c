package api

import (
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/chanhub/chansync/internal/infrastructure/chain"
	"github.com/chanhub/chansync/internal/p2p/engine"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

type nodeResponse struct {
	Identifier string `json:"identifier"`
	Channels   int    `json:"channels"`
}

type resolveTransferRequest struct {
	PreImage string `json:"preImage,omitempty"`
}

type chainDepositRequest struct {
	ChannelAddress string   `json:"channelAddress"`
	AssetID        string   `json:"assetId"`
	Participant    string   `json:"participant"`
	Amount         *big.Int `json:"amount"`
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	engines := s.registry.Engines()
	out := make([]nodeResponse, 0, len(engines))
	for _, e := range engines {
		states, err := e.GetChannelStates(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
			return
		}
		out = append(out, nodeResponse{Identifier: e.Identifier(), Channels: len(states)})
	}
	respondJSON(w, http.StatusOK, map[string]any{"nodes": out})
}

// listAllChannels returns the channels of every hosted identity keyed by
// identifier.
func (s *Server) listAllChannels(w http.ResponseWriter, r *http.Request) {
	out := map[string][]*protocol.ChannelState{}
	for _, e := range s.registry.Engines() {
		states, err := e.GetChannelStates(r.Context())
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
			return
		}
		if states == nil {
			states = []*protocol.ChannelState{}
		}
		out[e.Identifier()] = states
	}
	respondJSON(w, http.StatusOK, map[string]any{"channels": out})
}

// getChannelEverywhere returns the copy of a channel held by each hosted
// identity that is a participant.
func (s *Server) getChannelEverywhere(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	out := map[string]*protocol.ChannelState{}
	for _, e := range s.registry.Engines() {
		state, err := e.GetChannelState(r.Context(), address)
		if errors.Is(err, engine.ErrChannelNotFound) {
			continue
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
			return
		}
		out[e.Identifier()] = state
	}
	if len(out) == 0 {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "channel not found", map[string]any{"channelAddress": address})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"channels": out})
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	states, err := e.GetChannelStates(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
		return
	}
	if states == nil {
		states = []*protocol.ChannelState{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"channels": states})
}

func (s *Server) getChannel(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	state, err := e.GetChannelState(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) listUpdates(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	address := chi.URLParam(r, "address")
	if _, err := e.GetChannelState(r.Context(), address); err != nil {
		respondEngineError(w, err)
		return
	}
	updates, err := e.GetChannelUpdates(r.Context(), address)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"updates": updates})
}

func (s *Server) listTransfers(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	transfers, err := e.GetActiveTransfers(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	transfer, err := e.GetTransfer(r.Context(), chi.URLParam(r, "address"), chi.URLParam(r, "transferId"))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transfer)
}

func (s *Server) setup(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	var req protocol.SetupParams
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	state, err := e.Setup(r.Context(), strings.TrimSpace(req.CounterpartyIdentifier), req.ChainID, req.Timeout)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, state)
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	var req protocol.DepositParams
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	state, err := e.Deposit(r.Context(), chi.URLParam(r, "address"), req.AssetID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) createTransfer(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	var req protocol.CreateParams
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	state, err := e.CreateTransfer(r.Context(), chi.URLParam(r, "address"), req)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, state)
}

func (s *Server) resolveTransfer(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engineFor(w, r)
	if !ok {
		return
	}
	var req resolveTransferRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
			return
		}
	}
	state, err := e.ResolveTransfer(r.Context(), chi.URLParam(r, "address"), chi.URLParam(r, "transferId"), req.PreImage)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// chainDeposit records an onchain deposit on the static chain. Participant
// is "alice" or "bob".
func (s *Server) chainDeposit(w http.ResponseWriter, r *http.Request) {
	var req chainDepositRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	var byAlice bool
	switch strings.ToLower(strings.TrimSpace(req.Participant)) {
	case "alice":
		byAlice = true
	case "bob":
	default:
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "participant must be alice or bob", nil)
		return
	}
	if req.ChannelAddress == "" || req.AssetID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "channelAddress and assetId are required", nil)
		return
	}
	if err := s.chain.Deposit(req.ChannelAddress, req.AssetID, byAlice, req.Amount); err != nil {
		if errors.Is(err, chain.ErrInvalidAmount) {
			respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
		return
	}
	aliceTotal, _ := s.chain.GetTotalDepositedAlice(r.Context(), req.ChannelAddress, req.AssetID)
	balance, _ := s.chain.GetChannelOnchainBalance(r.Context(), req.ChannelAddress, req.AssetID)
	respondJSON(w, http.StatusOK, map[string]any{
		"channelAddress":      req.ChannelAddress,
		"assetId":             req.AssetID,
		"totalDepositedAlice": aliceTotal,
		"onchainBalance":      balance,
	})
}

var outboundStatus = map[protocol.OutboundReason]int{
	protocol.OutboundInvalidParams:       http.StatusBadRequest,
	protocol.OutboundChannelNotFound:     http.StatusNotFound,
	protocol.OutboundSyncFailure:         http.StatusConflict,
	protocol.OutboundRestoreNeeded:       http.StatusConflict,
	protocol.OutboundCounterpartyFailure: http.StatusBadGateway,
	protocol.OutboundBadSignatures:       http.StatusBadGateway,
	protocol.OutboundChainReadFailed:     http.StatusServiceUnavailable,
}

func respondEngineError(w http.ResponseWriter, err error) {
	var outboundErr *protocol.OutboundError
	switch {
	case errors.As(err, &outboundErr):
		status, ok := outboundStatus[outboundErr.Reason]
		if !ok {
			status = http.StatusInternalServerError
		}
		respondError(w, status, string(outboundErr.Reason), err.Error(), map[string]any{
			"context": outboundErr.Context,
		})
	case errors.Is(err, engine.ErrChannelNotFound), errors.Is(err, engine.ErrTransferNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, engine.ErrHistoryUnavailable):
		respondError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", err.Error(), nil)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
	}
}
