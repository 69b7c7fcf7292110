package operator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/declansx/odds-maximizer-betting-bot/internal/coreerr"
	"github.com/declansx/odds-maximizer-betting-bot/internal/refdata"
	"github.com/declansx/odds-maximizer-betting-bot/pkg/types"
)

// Controller is the narrow contract the operator surface needs from the
// Position Controller. internal/controller.Controller satisfies this
// structurally.
type Controller interface {
	CreatePosition(ctx context.Context, spec types.PositionSpec) (uuid.UUID, error)
	GetPosition(id uuid.UUID) (types.Position, bool)
	ListPositions() []types.Position
	EditPosition(ctx context.Context, id uuid.UUID, patch types.PositionPatch) error
	ClosePosition(ctx context.Context, id uuid.UUID) error
}

// RefdataClient is the narrow contract the market-search helper needs.
// internal/refdata.Client satisfies this structurally. A nil RefdataClient
// is valid: the helper endpoint responds 501 in that case, same as
// shutdown when no ShutdownFunc is wired.
type RefdataClient interface {
	ListSports(ctx context.Context) ([]refdata.Sport, error)
	ListLeagues(ctx context.Context, sportID string) ([]refdata.League, error)
	ListFixtures(ctx context.Context, leagueID string) ([]refdata.Fixture, error)
	ListMarkets(ctx context.Context, fixtureID string) ([]refdata.Market, error)
}

// ShutdownFunc is invoked by POST /api/shutdown. Typically cancels every
// active order and signals the process to exit after the HTTP response is
// flushed.
type ShutdownFunc func(ctx context.Context) error

type handlers struct {
	controller Controller
	shutdown   ShutdownFunc
	hub        *Hub
	refdata    RefdataClient
	cfg        AllowedOrigins
	logger     *slog.Logger
}

func newHandlers(controller Controller, shutdown ShutdownFunc, hub *Hub, refdataClient RefdataClient, cfg AllowedOrigins, logger *slog.Logger) *handlers {
	return &handlers{
		controller: controller,
		shutdown:   shutdown,
		hub:        hub,
		refdata:    refdataClient,
		cfg:        cfg,
		logger:     logger.With("component", "operator-handlers"),
	}
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req createPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.controller.CreatePosition(r.Context(), req.toSpec())
	if err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

func (h *handlers) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.controller.ListPositions()
	views := make([]positionView, len(positions))
	for i, p := range positions {
		views[i] = newPositionView(p)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) handleGetPosition(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	p, ok := h.controller.GetPosition(id)
	if !ok {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, newPositionView(p))
}

func (h *handlers) handleEditPosition(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req editPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.controller.EditPosition(r.Context(), id, req.toPatch()); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleClosePosition(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if err := h.controller.ClosePosition(r.Context(), id); err != nil {
		writeControllerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if h.shutdown == nil {
		writeError(w, http.StatusNotImplemented, "shutdown not wired")
		return
	}
	if err := h.shutdown(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
}

// marketSearchRequest drills one level at a time: the caller narrows from
// sport to league to fixture to market, passing whichever id it has picked
// so far. An empty request returns the sport list.
type marketSearchRequest struct {
	SportID   string `json:"sportId"`
	LeagueID  string `json:"leagueId"`
	FixtureID string `json:"fixtureId"`
}

func (h *handlers) handleMarketSearch(w http.ResponseWriter, r *http.Request) {
	if h.refdata == nil {
		writeError(w, http.StatusNotImplemented, "reference data not wired")
		return
	}

	var req marketSearchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	ctx := r.Context()
	var (
		result interface{}
		err    error
	)
	switch {
	case req.FixtureID != "":
		result, err = h.refdata.ListMarkets(ctx, req.FixtureID)
	case req.LeagueID != "":
		result, err = h.refdata.ListFixtures(ctx, req.LeagueID)
	case req.SportID != "":
		result, err = h.refdata.ListLeagues(ctx, req.SportID)
	default:
		result, err = h.refdata.ListSports(ctx)
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg, req.Host)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "err", err)
		return
	}
	newWSClient(h.hub, conn)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coreerr.ErrConfigInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coreerr.ErrPositionGone):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// AllowedOrigins mirrors the dashboard CORS allowlist.
type AllowedOrigins []string

func isOriginAllowed(origin string, allowed AllowedOrigins, reqHost string) bool {
	if origin == "" {
		return true
	}
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}
