package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feed-hub/feed-recommender/internal/application/command"
	"github.com/feed-hub/feed-recommender/internal/application/query"
	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
	"github.com/feed-hub/feed-recommender/internal/scoring"
)

// newTestServer wires a full serving stack over fixture tables and a
// bundle written to a temp dir, and returns the server and artifact path.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	users, err := catalog.NewUserStore([]catalog.UserAttributes{
		{UserID: 1, Gender: "M", Age: 25},
	})
	require.NoError(t, err)
	posts, err := catalog.NewPostStore([]catalog.PostAttributes{
		{PostID: 101, Text: "match report", Topic: "sport"},
		{PostID: 102, Text: "gadget news", Topic: "tech"},
		{PostID: 103, Text: "derby preview", Topic: "sport"},
	})
	require.NoError(t, err)

	artifactPath := filepath.Join(t.TempDir(), "bundle.json")
	bundle := scoring.Bundle{
		Variant: scoring.VariantV2,
		BuiltAt: time.Now().UTC(),
		Scorer: scoring.Ensemble{
			Trees: []scoring.Tree{{
				Splits:     []scoring.Split{{Feature: "topic=sport", Threshold: 0.5}},
				LeafValues: []float64{-1, 1},
			}},
		},
		Stats: stats.Snapshot{
			UserStats: []stats.UserStat{{UserID: 1, LikesToViewsRatio: 0.4}},
			AgeStats:  []stats.AgeBucketStat{{Age: 14, MeanLikesToViewsRatio: 0.2}},
		},
	}
	require.NoError(t, scoring.SaveBundle(artifactPath, bundle))

	handle := command.NewModelHandle()
	reload := command.NewReloadModelHandler(handle, users, posts, nil, nil, nil)
	_, err = reload.Handle(context.Background(), command.ReloadModelCommand{
		ArtifactPath: artifactPath,
		Variant:      scoring.VariantV2,
	})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.MaxCandidates = 5
	server := NewServer(cfg, Dependencies{
		GetRecommendations: query.NewGetRecommendationsHandler(handle, nil, nil),
		Model:              handle,
		ReloadModel:        reload,
		Posts:              posts,
	})
	return server, artifactPath
}

func doRequest(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHealthEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	rec, resp := doRequest(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.RequestID)

	rec, _ = doRequest(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doRequest(t, s, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReady_WithoutModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	s := NewServer(cfg, Dependencies{Model: command.NewModelHandle()})

	rec, resp := doRequest(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "model_not_loaded", resp.Error.Code)
}

func TestGetRecommendations(t *testing.T) {
	s, _ := newTestServer(t)

	rec, resp := doRequest(t, s, http.MethodGet,
		"/post/recommendations/?id=1&limit=2&candidates=101,102,103", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var result query.GetRecommendationsResult
	require.NoError(t, json.Unmarshal(data, &result))

	require.Len(t, result.Recommendations, 2)
	// Sport posts score above the tech post; presentation order breaks
	// the sport-sport tie.
	assert.Equal(t, int64(101), result.Recommendations[0].ID)
	assert.Equal(t, int64(103), result.Recommendations[1].ID)
	assert.Equal(t, "v2", result.ModelVariant)
}

func TestGetRecommendations_DefaultsToFullCatalog(t *testing.T) {
	s, _ := newTestServer(t)

	rec, resp := doRequest(t, s, http.MethodGet, "/post/recommendations/?id=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data, _ := json.Marshal(resp.Data)
	var result query.GetRecommendationsResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Len(t, result.Recommendations, 3)
}

func TestGetRecommendations_ParamValidation(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		code   string
	}{
		{"missing id", "/post/recommendations/", "invalid_user_id"},
		{"non-numeric id", "/post/recommendations/?id=abc", "invalid_user_id"},
		{"zero id", "/post/recommendations/?id=0", "invalid_user_id"},
		{"negative limit", "/post/recommendations/?id=1&limit=-1", "invalid_limit"},
		{"bad candidate", "/post/recommendations/?id=1&candidates=1,x", "invalid_candidates"},
		{"too many candidates", "/post/recommendations/?id=1&candidates=1,2,3,4,5,6", "invalid_candidates"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := doRequest(t, s, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestGetRecommendations_UnknownUserWithoutAge(t *testing.T) {
	s, _ := newTestServer(t)

	rec, resp := doRequest(t, s, http.MethodGet, "/post/recommendations/?id=999", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "precondition_failed", resp.Error.Code)
}

func TestGetModel(t *testing.T) {
	s, _ := newTestServer(t)

	rec, resp := doRequest(t, s, http.MethodGet, "/api/v1/model", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data, _ := json.Marshal(resp.Data)
	var info map[string]any
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, "v2", info["variant"])
}

func TestReloadModel(t *testing.T) {
	s, artifactPath := newTestServer(t)

	body := `{"artifact_path": "` + artifactPath + `", "variant": "v2"}`
	rec, resp := doRequest(t, s, http.MethodPost, "/api/v1/model/reload", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
}

func TestReloadModel_BadRequests(t *testing.T) {
	s, artifactPath := newTestServer(t)

	rec, resp := doRequest(t, s, http.MethodPost, "/api/v1/model/reload", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", resp.Error.Code)

	body := `{"artifact_path": "` + artifactPath + `", "variant": "v7"}`
	rec, resp = doRequest(t, s, http.MethodPost, "/api/v1/model/reload", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_variant", resp.Error.Code)

	// Mismatched variant: the artifact was built for v2.
	body = `{"artifact_path": "` + artifactPath + `", "variant": "v1"}`
	rec, _ = doRequest(t, s, http.MethodPost, "/api/v1/model/reload", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	s := NewServer(cfg, Dependencies{Model: command.NewModelHandle()})
	s.router.HandleFunc("GET /panic", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec, resp := doRequest(t, s, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, resp.Error)
}
