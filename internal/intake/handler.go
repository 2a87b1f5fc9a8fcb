// Package intake is the HTTP frontend the mining client talks to. The
// client routes everything through a single URL and selects the action
// with an Action header, so this is one handler dispatching on headers
// rather than a route table.
package intake

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/purepool/purepool/internal/config"
	"github.com/purepool/purepool/internal/database/postgres"
	"github.com/purepool/purepool/internal/messaging"
	"github.com/purepool/purepool/internal/miner"
	"github.com/purepool/purepool/internal/wire"
	"github.com/purepool/purepool/pkg/log"
)

// MinerDirectory resolves or creates the miner and worker behind a
// client supplied identifier.
type MinerDirectory interface {
	GetOrCreateMinerWorker(ctx context.Context, network, minerField string) (minerID, workerID string, err error)
}

// WorkIssuer grants work tickets.
type WorkIssuer interface {
	Issue(ctx context.Context, network, workerID, threadID, ip, os, agent string) (*postgres.Work, error)
}

// Publisher hands submitted solutions to the validation pipeline.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, msg any) error
}

// Handler serves the mining client protocol.
type Handler struct {
	networks  map[string]*config.NetworkConfig
	directory MinerDirectory
	issuer    WorkIssuer
	publisher Publisher
	logger    *log.Logger
}

// NewHandler creates the intake handler.
func NewHandler(networks map[string]*config.NetworkConfig, directory MinerDirectory, issuer WorkIssuer, publisher Publisher, logger *log.Logger) *Handler {
	return &Handler{
		networks:  networks,
		directory: directory,
		issuer:    issuer,
		publisher: publisher,
		logger:    logger.WithComponent("intake"),
	}
}

// ServeHTTP dispatches on the Action header the way the pool protocol
// has always worked.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	action := headerField(r, "Action", "EMPTY")

	switch action {
	case "readytomine2":
		h.readyToMine(w, r)
	case "solution":
		h.solution(w, r)
	default:
		writeText(w, wire.ErrorResponse("UNKNOWN ACTION "+action))
	}
}

// readyToMine grants a fresh work ticket to an enabled miner, creating
// the miner and worker rows on first contact.
func (h *Handler) readyToMine(w http.ResponseWriter, r *http.Request) {
	network, ok := h.network(r)
	if !ok {
		writeText(w, wire.ErrorResponse("Invalid network"))
		return
	}

	minerField := headerField(r, "Miner", "")
	if minerField == "" {
		writeText(w, wire.ErrorResponse("WorkerID is missing"))
		return
	}

	minerID, workerID, err := h.directory.GetOrCreateMinerWorker(r.Context(), network, minerField)
	if err != nil {
		address := strings.SplitN(minerField, "/", 2)[0]
		switch err {
		case miner.ErrMinerDisabled:
			writeText(w, wire.ErrorResponse("Miner "+address+" is disabled"))
		case miner.ErrInvalidAddress, wire.ErrInvalidWorkerID:
			writeText(w, wire.ErrorResponse("WorkerID "+address+" is invalid"))
		default:
			h.logger.WithError(err).Error("failed to resolve miner", "network", network)
			writeText(w, wire.ErrorResponse("Internal error"))
		}
		return
	}

	threadID := headerField(r, "ThreadID", "1")
	os := headerField(r, "OS", "UNKNOWN")
	agent := headerField(r, "Agent", "UNKNOWN")

	work, err := h.issuer.Issue(r.Context(), network, workerID, threadID, clientIP(r), os, agent)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue work", "network", network, "worker_id", workerID)
		writeText(w, wire.ErrorResponse("Internal error"))
		return
	}

	writeText(w, wire.WorkResponse(h.networks[network].PoolAddress, work.HashTarget, minerID, work.ID))
}

// solution acknowledges a submission immediately and queues it for
// asynchronous validation. Acceptance is never decided inline; a fake
// solution costs the pool one queue message, not a daemon round trip.
func (h *Handler) solution(w http.ResponseWriter, r *http.Request) {
	network, ok := h.network(r)
	if !ok {
		writeText(w, wire.ErrorResponse("Invalid network"))
		return
	}

	raw := headerField(r, "Solution", "")
	if raw == "" {
		writeText(w, wire.ErrorResponse("Solution is missing"))
		return
	}

	parsed, err := wire.ParseSolution(raw)
	if err != nil {
		writeText(w, wire.ErrorResponse("Invalid solution"))
		return
	}

	msg := &messaging.SolutionMessage{
		Network:    network,
		MinerField: headerField(r, "Miner", ""),
		Solution:   raw,
		RemoteAddr: clientIP(r),
		OS:         headerField(r, "OS", "UNKNOWN"),
		Agent:      headerField(r, "Agent", "UNKNOWN"),
		ReceivedAt: time.Now(),
	}
	if err := h.publisher.Publish(r.Context(), messaging.TopicSolutions, parsed.MinerID, msg); err != nil {
		h.logger.WithError(err).Error("failed to queue solution", "network", network)
		writeText(w, wire.ErrorResponse("Internal error"))
		return
	}

	writeText(w, wire.SolutionResponse(parsed.WorkID))
}

// network reads and validates the NetworkID header.
func (h *Handler) network(r *http.Request) (string, bool) {
	network := headerField(r, "NetworkID", "")
	if _, ok := h.networks[network]; !ok {
		return "", false
	}
	return network, true
}

// headerField reads a client header with a fallback default. The miner
// sends plain header names; net/http canonicalizes them on arrival.
func headerField(r *http.Request, field, fallback string) string {
	if value := r.Header.Get(field); value != "" {
		return value
	}
	return fallback
}

// clientIP prefers the first forwarded address so pools behind a proxy
// still record the miner's real origin.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.SplitN(forwarded, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}
