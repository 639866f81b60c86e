// Package api serves the read-only HTTP status API and the metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	types "github.com/sebas/callbridge/api/types/v1"
	"github.com/sebas/callbridge/services/callbridge/coordinator"
	"github.com/sebas/callbridge/services/callbridge/procctx"
	"github.com/sebas/callbridge/services/callbridge/session"
)

// Server provides the HTTP API for the bridge
type Server struct {
	addr       string
	httpServer *http.Server
	coord      *coordinator.Coordinator
	pc         *procctx.Context
	nodeID     string
	startTime  time.Time
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(addr string, coord *coordinator.Coordinator, metrics http.Handler, nodeID string) *Server {
	s := &Server{
		addr:      addr,
		coord:     coord,
		pc:        coord.Context(),
		nodeID:    nodeID,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()

	// Health and stats
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)

	// Calls
	mux.HandleFunc("/api/v1/calls", s.handleCalls)
	mux.HandleFunc("/api/v1/calls/", s.handleCallByID)
	mux.HandleFunc("/api/v1/conferences", s.handleConferences)

	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("[API] Starting HTTP API server", "addr", lis.Addr().String())
	if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- Health & Stats ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, types.HealthResponse{
		Status: "ok",
		Uptime: int64(time.Since(s.startTime).Seconds()),
		NodeID: s.nodeID,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	state := s.pc.Reachability.State()
	s.writeJSON(w, http.StatusOK, types.StatsResponse{
		ActiveSessions:       s.pc.Registry.Len(),
		Conferences:          s.pc.Conferences.Len(),
		AccountRegistered:    s.pc.Accounts.Registered(),
		AccountActive:        s.pc.Accounts.HasActiveAccount(),
		ForegroundActive:     s.coord.ForegroundActive(),
		Wakeups:              s.pc.Waker.Count(),
		ReachabilityTimeouts: s.pc.Reachability.Timeouts(),
		EventSubscribers:     s.pc.Events.SubscriberCount(),
		PendingEvents:        s.pc.Events.Pending(),
		Reachability: types.Reachability{
			Available:   state.Available,
			Initialized: state.Initialized,
			Reachable:   state.Reachable,
			Status:      s.pc.Reachability.Status().String(),
		},
	})
}

// --- Calls ---

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	infos := s.coord.Snapshots()
	calls := make([]types.Call, 0, len(infos))
	for _, info := range infos {
		calls = append(calls, s.toCall(info))
	}
	s.writeJSON(w, http.StatusOK, calls)
}

func (s *Server) handleCallByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Extract call ID from path: /api/v1/calls/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/calls/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "call id required")
		return
	}
	id, err := url.PathUnescape(path)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid call id encoding")
		return
	}

	info, ok := s.coord.Lookup(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.writeJSON(w, http.StatusOK, s.toCall(info))
}

func (s *Server) handleConferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	groups := s.pc.Conferences.List()
	out := make([]types.Conference, 0, len(groups))
	for _, g := range groups {
		out = append(out, types.Conference{
			ID:        g.ID,
			Members:   g.Members,
			Merges:    g.Merges,
			CreatedAt: g.CreatedAt.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) toCall(info session.Info) types.Call {
	c := types.Call{
		CallID:    info.ID,
		Handle:    info.Handle,
		Name:      info.Name,
		Direction: info.Direction.String(),
		State:     info.State.String(),
		Audio: types.Audio{
			Muted:           info.Audio.Muted,
			Route:           info.Audio.Route.String(),
			SupportedRoutes: int(info.Audio.SupportedRoutes),
		},
		Capabilities: info.Capabilities.String(),
		SelfManaged:  info.SelfManaged,
		Extras:       info.Extras,
		Duration:     int(time.Since(info.CreatedAt).Seconds()),
		CreatedAt:    info.CreatedAt.Format(time.RFC3339),
	}
	if !info.AnsweredAt.IsZero() {
		c.AnsweredAt = info.AnsweredAt.Format(time.RFC3339)
	}
	if g, ok := s.pc.Conferences.GroupOf(info.ID); ok {
		c.Conference = g.ID
	}
	return c
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode JSON", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, types.ErrorResponse{Error: msg})
}
