// Package websocket serves the live task event stream.
package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/taskman/taskman/internal/adapter/metrics"
	"github.com/taskman/taskman/internal/auth"
	"github.com/taskman/taskman/internal/broadcast"
	"github.com/taskman/taskman/internal/domain"
	"github.com/taskman/taskman/internal/platform/correlation"
)

type Verifier interface {
	Verify(ctx context.Context, r *http.Request) (domain.UserID, error)
}

type Registry interface {
	Join(groupKey string, member *broadcast.Member) error
	Leave(groupKey string, member *broadcast.Member)
}

type HandlerConfig struct {
	AllowedOrigins []string
	IsDevelopment  bool
	MaxConnections int
	MailboxSize    int
}

// Handler upgrades authenticated requests to WebSocket connections joined
// to their user's broadcast group.
type Handler struct {
	verifier    Verifier
	registry    Registry
	limiter     *ConnectionLimiter
	checkOrigin func(*http.Request) bool
	upgrader    websocket.Upgrader
	mailboxSize int
	clock       clockwork.Clock
	metrics     *metrics.WebSocketMetrics

	// active counts handshakes and connections that have not finished closing.
	active sync.WaitGroup
}

func NewHandler(cfg HandlerConfig, verifier Verifier, registry Registry, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Handler {
	checkOrigin := NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment)
	return &Handler{
		verifier:    verifier,
		registry:    registry,
		limiter:     NewConnectionLimiter(cfg.MaxConnections),
		checkOrigin: checkOrigin,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		mailboxSize: cfg.MailboxSize,
		clock:       clock,
		metrics:     m,
	}
}

// ServeHTTP runs the handshake (verify, join, accept) and then serves the
// connection until it closes. A failed verification answers 403 with no
// body and leaves no trace in the registry.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.active.Add(1)
	defer h.active.Done()

	ctx := r.Context()

	if !h.checkOrigin(r) {
		h.reject(ctx, w, http.StatusForbidden, "origin")
		return
	}

	if !h.limiter.Acquire() {
		h.reject(ctx, w, http.StatusServiceUnavailable, "capacity")
		return
	}

	userID, err := h.verifier.Verify(ctx, r)
	if err != nil {
		h.limiter.Release()
		var authErr *auth.Error
		if errors.As(err, &authErr) {
			slog.InfoContext(ctx, "WebSocket authentication failed", "reason", string(authErr.Reason), "error", err)
			h.reject(ctx, w, http.StatusForbidden, string(authErr.Reason))
			return
		}
		slog.ErrorContext(ctx, "WebSocket authentication could not complete", "error", err)
		h.reject(ctx, w, http.StatusForbidden, "lookup_error")
		return
	}
	ctx = correlation.WithUserID(ctx, int64(userID))

	member := broadcast.NewMember(h.mailboxSize)
	groupKey := broadcast.GroupKey(userID)
	if err := h.registry.Join(groupKey, member); err != nil {
		// A timed out join may still be applied by the registry later.
		h.registry.Leave(groupKey, member)
		h.limiter.Release()
		slog.ErrorContext(ctx, "Failed to join group", "group", groupKey, "error", err)
		h.reject(ctx, w, http.StatusServiceUnavailable, "join_failed")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.registry.Leave(groupKey, member)
		h.limiter.Release()
		h.metrics.Rejected.WithLabelValues("upgrade").Inc()
		slog.WarnContext(ctx, "WebSocket upgrade failed", "error", err)
		return
	}

	c := newConn(ws, userID, groupKey, member, h.registry, h.clock, h.metrics, h.limiter.Release)
	c.serve(ctx)
}

// Wait blocks until every connection has run its close path, or ctx ends.
// Call it after the HTTP server has shut down and the registry has stopped.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, status int, reason string) {
	h.metrics.Rejected.WithLabelValues(reason).Inc()
	slog.DebugContext(ctx, "WebSocket handshake rejected", "status", status, "reason", reason)
	w.WriteHeader(status)
}
