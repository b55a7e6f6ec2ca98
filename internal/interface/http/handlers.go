package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/feed-hub/feed-recommender/internal/application/command"
	"github.com/feed-hub/feed-recommender/internal/application/query"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/scoring"
	"github.com/feed-hub/feed-recommender/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports overall service health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":       "ok",
		"model_loaded": s.deps.Model != nil && s.deps.Model.IsLoaded(),
		"time":         time.Now().UTC(),
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady reports readiness: the service serves only with a loaded model.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Model == nil || !s.deps.Model.IsLoaded() {
		writeJSONError(w, http.StatusServiceUnavailable, "model_not_loaded", "Model artifact has not been loaded yet")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive is the liveness probe.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMENDATIONS HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// handleGetRecommendations serves GET /post/recommendations/.
//
// Query parameters:
//   - id: user ID (required)
//   - limit: number of posts to return (optional, default 5)
//   - candidates: comma-separated post IDs (optional; defaults to the
//     full post catalog, which is what the feed sends in practice)
func (s *Server) handleGetRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || userID <= 0 {
		writeJSONError(w, http.StatusBadRequest, "invalid_user_id", "Parameter 'id' must be a positive integer")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid_limit", "Parameter 'limit' must be a non-negative integer")
			return
		}
	}

	candidates, err := s.candidatePool(r.URL.Query().Get("candidates"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_candidates", err.Error())
		return
	}

	result, err := s.deps.GetRecommendations.Handle(r.Context(), query.GetRecommendationsQuery{
		UserID:           userID,
		CandidatePostIDs: candidates,
		Limit:            limit,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// candidatePool parses the candidates parameter, falling back to the full
// post catalog.
func (s *Server) candidatePool(raw string) ([]int64, error) {
	if raw == "" {
		ids := s.deps.Posts.PostIDs()
		out := make([]int64, len(ids))
		for i, id := range ids {
			out[i] = id.Int64()
		}
		return out, nil
	}

	parts := strings.Split(raw, ",")
	if s.config.MaxCandidates > 0 && len(parts) > s.config.MaxCandidates {
		return nil, errTooManyCandidates
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, errBadCandidateID
		}
		out = append(out, id)
	}
	return out, nil
}

var (
	errTooManyCandidates = &paramError{"candidate list exceeds the configured maximum"}
	errBadCandidateID    = &paramError{"candidate IDs must be integers"}
)

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

// writeDomainError maps a domain error to an HTTP status.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsScorerFailure(err):
		s.logger.Error("scorer failed",
			logger.String("request_id", getRequestID(r.Context())), logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "scoring_failed", "Scoring failed for this request")
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsPrecondition(err):
		// Unknown user with unknown age: nothing to fall back to.
		writeJSONError(w, http.StatusUnprocessableEntity, "precondition_failed", err.Error())
	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Recommendation request failed")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MODEL HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetModel serves GET /api/v1/model.
func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Model == nil || !s.deps.Model.IsLoaded() {
		writeJSONError(w, http.StatusServiceUnavailable, "model_not_loaded", "Model artifact has not been loaded yet")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"variant":   string(s.deps.Model.Scorer().Variant()),
		"loaded_at": s.deps.Model.LoadedAt(),
	})
}

// reloadModelRequest is the POST /api/v1/model/reload body.
type reloadModelRequest struct {
	ArtifactPath string `json:"artifact_path"`
	Variant      string `json:"variant"`
}

// handleReloadModel serves POST /api/v1/model/reload.
func (s *Server) handleReloadModel(w http.ResponseWriter, r *http.Request) {
	var req reloadModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be JSON with artifact_path and variant")
		return
	}

	variant, err := scoring.ParseVariant(req.Variant)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_variant", err.Error())
		return
	}

	result, err := s.deps.ReloadModel.Handle(r.Context(), command.ReloadModelCommand{
		ArtifactPath: req.ArtifactPath,
		Variant:      variant,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}
