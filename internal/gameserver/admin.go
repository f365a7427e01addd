package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/game/gameerr"
	"github.com/cory-johannsen/smuggle/internal/game/room"
	"github.com/cory-johannsen/smuggle/internal/game/session"
	"github.com/cory-johannsen/smuggle/internal/moderation"
	"github.com/cory-johannsen/smuggle/internal/protocol"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Admin serves the operator HTTP API.
type Admin struct {
	addr       string
	rooms      *room.Manager
	sessions   *session.Registry
	moderation *moderation.Service
	checks     map[string]HealthCheck
	level      atomic.Pointer[zap.AtomicLevel]
	logger     *zap.Logger
	http       *http.Server
}

// NewAdmin creates an Admin.
//
// Precondition: rooms, sessions, mod and logger must be non-nil.
func NewAdmin(addr string, rooms *room.Manager, sessions *session.Registry, mod *moderation.Service, logger *zap.Logger) *Admin {
	a := &Admin{
		addr:       addr,
		rooms:      rooms,
		sessions:   sessions,
		moderation: mod,
		checks:     make(map[string]HealthCheck),
		logger:     logger,
	}
	a.http = &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return a
}

// AddCheck registers a dependency check reported by /healthz. Call before serving.
func (a *Admin) AddCheck(name string, check HealthCheck) {
	a.checks[name] = check
}

// SetLogLevel exposes level at /loglevel.
func (a *Admin) SetLogLevel(level zap.AtomicLevel) {
	a.level.Store(&level)
}

// Handler returns the admin routes.
func (a *Admin) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.healthz)
	mux.HandleFunc("GET /rooms", a.listRooms)
	mux.HandleFunc("GET /blacklist", a.listBlacklist)
	mux.HandleFunc("PUT /blacklist/{playerID}", a.block)
	mux.HandleFunc("DELETE /blacklist/{playerID}", a.unblock)
	mux.HandleFunc("/loglevel", a.logLevel)
	return mux
}

// Serve serves on lis until Stop.
func (a *Admin) Serve(lis net.Listener) error {
	a.logger.Info("admin HTTP listening", zap.String("addr", lis.Addr().String()))
	if err := a.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving admin HTTP: %w", err)
	}
	return nil
}

// Start listens on the configured address and serves until Stop.
func (a *Admin) Start() error {
	lis, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.addr, err)
	}
	return a.Serve(lis)
}

// Stop shuts the HTTP server down.
func (a *Admin) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.http.Shutdown(ctx); err != nil {
		a.logger.Warn("admin shutdown", zap.Error(err))
	}
}

type healthResponse struct {
	Status   string            `json:"status"`
	Rooms    int               `json:"rooms"`
	Sessions int               `json:"sessions"`
	Checks   map[string]string `json:"checks,omitempty"`
}

func (a *Admin) healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Rooms:    a.rooms.Count(),
		Sessions: a.sessions.Count(),
	}
	status := http.StatusOK
	if len(a.checks) > 0 {
		resp.Checks = make(map[string]string, len(a.checks))
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, check := range a.checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	a.writeJSON(w, status, resp)
}

func (a *Admin) logLevel(w http.ResponseWriter, r *http.Request) {
	level := a.level.Load()
	if level == nil {
		http.NotFound(w, r)
		return
	}
	level.ServeHTTP(w, r)
}

func (a *Admin) listRooms(w http.ResponseWriter, r *http.Request) {
	infos := a.rooms.List(r.Context())
	out := make([]protocol.RoomInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Wire())
	}
	a.writeJSON(w, http.StatusOK, protocol.RoomListPayload{Rooms: out})
}

type blacklistEntry struct {
	PlayerID  int64     `json:"player_id"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

func (a *Admin) listBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := a.moderation.List(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]blacklistEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, blacklistEntry{PlayerID: e.PlayerID, Reason: e.Reason, BlockedAt: e.BlockedAt})
	}
	a.writeJSON(w, http.StatusOK, out)
}

type blockRequest struct {
	Reason string `json:"reason"`
}

func (a *Admin) block(w http.ResponseWriter, r *http.Request) {
	playerID, err := pathPlayerID(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	var req blockRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		a.writeError(w, gameerr.Argumentf("malformed body: %v", err))
		return
	}
	if err := a.moderation.Block(r.Context(), playerID, req.Reason); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Admin) unblock(w http.ResponseWriter, r *http.Request) {
	playerID, err := pathPlayerID(r)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if err := a.moderation.Unblock(r.Context(), playerID); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathPlayerID(r *http.Request) (int64, error) {
	raw := r.PathValue("playerID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, gameerr.Argumentf("player id %q must be a positive integer", raw)
	}
	return id, nil
}

type errorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func (a *Admin) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, moderation.ErrNotBlocked):
		status = http.StatusNotFound
	case errors.Is(err, gameerr.ErrArgument):
		status = http.StatusBadRequest
	case errors.Is(err, gameerr.ErrState):
		status = http.StatusConflict
	default:
		a.logger.Error("admin request failed", zap.Error(err))
	}
	a.writeJSON(w, status, errorResponse{Kind: gameerr.Kind(err), Error: err.Error()})
}

func (a *Admin) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("writing admin response", zap.Error(err))
	}
}
