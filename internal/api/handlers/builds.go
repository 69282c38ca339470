package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/embedforge/buildplane/internal/ci"
	"github.com/embedforge/buildplane/internal/models"
	"github.com/embedforge/buildplane/internal/orchestrator"
	"github.com/embedforge/buildplane/internal/store"
	"github.com/embedforge/buildplane/pkg/logger"
)

// BuildOrchestrator is the orchestration surface the handler needs.
type BuildOrchestrator interface {
	Invoke(ctx context.Context, userID, projectID, buildID string, sendNotification, rebuild bool) (*models.StageTracker, error)
	StopBuild(ctx context.Context, buildID string) error
}

// BuildHandler handles build-related HTTP requests.
type BuildHandler struct {
	store        store.Store
	orchestrator BuildOrchestrator
	logger       *logger.Logger
}

// NewBuildHandler creates a build handler.
func NewBuildHandler(st store.Store, orch BuildOrchestrator, log *logger.Logger) *BuildHandler {
	return &BuildHandler{
		store:        st,
		orchestrator: orch,
		logger:       log,
	}
}

// invokeRequest is the body for POST /api/v1/builds/{buildID}/invoke.
type invokeRequest struct {
	UserID           string `json:"user_id"`
	ProjectID        string `json:"project_id"`
	SendNotification bool   `json:"send_notification"`
	Rebuild          bool   `json:"rebuild"`
}

// Invoke handles POST /api/v1/builds/{buildID}/invoke.
func (h *BuildHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")
	if buildID == "" {
		WriteBadRequest(w, "Build ID is required")
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.UserID == "" || req.ProjectID == "" {
		WriteBadRequest(w, "user_id and project_id are required")
		return
	}

	ctx := logger.ContextWithBuildID(logger.ContextWithUserID(r.Context(), req.UserID), buildID)
	tracker, err := h.orchestrator.Invoke(ctx, req.UserID, req.ProjectID, buildID, req.SendNotification, req.Rebuild)
	if err != nil {
		h.writeOrchestratorError(ctx, w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, tracker)
}

// Stop handles POST /api/v1/builds/{buildID}/stop.
func (h *BuildHandler) Stop(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")
	if buildID == "" {
		WriteBadRequest(w, "Build ID is required")
		return
	}

	ctx := logger.ContextWithBuildID(r.Context(), buildID)
	if err := h.orchestrator.StopBuild(ctx, buildID); err != nil {
		h.writeOrchestratorError(ctx, w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// ListActive handles GET /api/v1/builds?user_id=.
func (h *BuildHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteBadRequest(w, "user_id query parameter is required")
		return
	}

	builds, err := h.store.Builds().ListActive(r.Context(), userID)
	if err != nil {
		h.logger.WithContext(r.Context()).Error("failed to list active builds", "error", err, "user_id", userID)
		WriteInternalError(w, "Failed to list builds")
		return
	}

	WriteJSON(w, http.StatusOK, builds)
}

// ListQueued handles GET /api/v1/builds/queued.
func (h *BuildHandler) ListQueued(w http.ResponseWriter, r *http.Request) {
	builds, err := h.store.Builds().ListQueued(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error("failed to list queued builds", "error", err)
		WriteInternalError(w, "Failed to list queued builds")
		return
	}

	WriteJSON(w, http.StatusOK, builds)
}

// Stages handles GET /api/v1/builds/{buildID}/stages.
func (h *BuildHandler) Stages(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")
	if buildID == "" {
		WriteBadRequest(w, "Build ID is required")
		return
	}

	tracker, err := h.store.Stages().GetByBuild(r.Context(), buildID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteNotFound(w, "No stage tracker for build")
			return
		}
		h.logger.WithContext(r.Context()).Error("failed to load stage tracker", "error", err, "build_id", buildID)
		WriteInternalError(w, "Failed to load stages")
		return
	}

	WriteJSON(w, http.StatusOK, tracker)
}

// writeOrchestratorError maps orchestration errors onto HTTP statuses.
// Internal details never reach the client.
func (h *BuildHandler) writeOrchestratorError(ctx context.Context, w http.ResponseWriter, err error) {
	var invalid *orchestrator.InvalidOperationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, "Build not found")
	case errors.As(err, &invalid):
		WriteConflict(w, invalid.Reason)
	case errors.Is(err, ci.ErrTimeout):
		WriteGatewayTimeout(w, "CI engine did not settle in time")
	default:
		h.logger.WithContext(ctx).Error("build operation failed", "error", err)
		WriteInternalError(w, "Build operation failed")
	}
}
