package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/chanhub/chansync/internal/infrastructure/chain"
	"github.com/chanhub/chansync/internal/infrastructure/events"
	"github.com/chanhub/chansync/internal/infrastructure/metrics"
	"github.com/chanhub/chansync/internal/p2p/engine"
	"github.com/chanhub/chansync/internal/p2p/protocol"
	"github.com/chanhub/chansync/internal/p2p/transport"
)

// Server exposes the protocol endpoint used by counterparties and the
// operator API of the locally hosted identities.
type Server struct {
	registry  *engine.Registry
	transport *transport.Transport
	hub       *events.Hub
	chain     *chain.StaticReader
	gatherer  prometheus.Gatherer
	logger    zerolog.Logger
}

type Option func(*Server)

// WithStaticChain enables the deposit endpoint backed by a static chain.
func WithStaticChain(c *chain.StaticReader) Option {
	return func(s *Server) { s.chain = c }
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func NewServer(registry *engine.Registry, tr *transport.Transport, hub *events.Hub, logger zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		registry:  registry,
		transport: tr,
		hub:       hub,
		logger:    logger.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))
	}
	// event streams stay open past the request timeout
	r.Get("/v1/events", s.streamEvents)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Post(transport.ProtocolPath, s.protocolMessage)

		r.Get("/v1/channels", s.listAllChannels)
		r.Get("/v1/channels/{address}", s.getChannelEverywhere)

		r.Route("/v1/nodes", func(r chi.Router) {
			r.Get("/", s.listNodes)
			r.Route("/{identifier}", func(r chi.Router) {
				r.Post("/setup", s.setup)
				r.Get("/channels", s.listChannels)
				r.Get("/channels/{address}", s.getChannel)
				r.Get("/channels/{address}/updates", s.listUpdates)
				r.Post("/channels/{address}/deposit", s.deposit)
				r.Get("/channels/{address}/transfers", s.listTransfers)
				r.Get("/channels/{address}/transfers/{transferId}", s.getTransfer)
				r.Post("/channels/{address}/transfers", s.createTransfer)
				r.Post("/channels/{address}/transfers/{transferId}/resolve", s.resolveTransfer)
			})
		})

		if s.chain != nil {
			r.Post("/v1/chain/deposits", s.chainDeposit)
		}
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"identifiers": s.identifiers(),
		"subscribers": s.hub.GetClientCount(),
	})
}

// protocolMessage receives a counterparty proposal. A countersigned update
// is answered with 200; a protocol error with 409 when the local side
// replied and 502 when it did not.
func (s *Server) protocolMessage(w http.ResponseWriter, r *http.Request) {
	var msg transport.ProtocolMessage
	if err := decodeBody(r, &msg); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error(), nil)
		return
	}
	reply, err := s.transport.Deliver(r.Context(), msg)
	if err == nil {
		status := http.StatusOK
		if reply.Error != nil {
			status = http.StatusConflict
		}
		respondJSON(w, status, reply)
		return
	}

	var protocolErr *protocol.InboundError
	switch {
	case errors.Is(err, transport.ErrUnknownRecipient):
		respondError(w, http.StatusNotFound, "UNKNOWN_RECIPIENT", err.Error(), map[string]any{
			"identifier": msg.Update.ToIdentifier,
		})
	case errors.As(err, &protocolErr):
		respondJSON(w, http.StatusBadGateway, transport.ProtocolReply{Error: protocolErr})
	default:
		s.logger.Error().Err(err).Str("channel", msg.Update.ChannelAddress).Msg("protocol message failed")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
	}
}

func (s *Server) identifiers() []string {
	engines := s.registry.Engines()
	out := make([]string, 0, len(engines))
	for _, e := range engines {
		out = append(out, e.Identifier())
	}
	return out
}

// engineFor resolves the {identifier} path parameter. Identifiers are
// base64 and arrive path-escaped.
func (s *Server) engineFor(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	raw := chi.URLParam(r, "identifier")
	identifier, err := url.PathUnescape(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid identifier", nil)
		return nil, false
	}
	e, err := s.registry.Get(strings.TrimSpace(identifier))
	if err != nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "identity not hosted here", nil)
		return nil, false
	}
	return e, true
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	out := map[string]any{
		"error":   code,
		"message": message,
	}
	for k, v := range extra {
		out[k] = v
	}
	respondJSON(w, status, out)
}
