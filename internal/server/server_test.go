package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/roundup/internal/config"
	"github.com/agenthands/roundup/internal/core/common"
	"github.com/agenthands/roundup/internal/core/community"
	"github.com/agenthands/roundup/internal/core/model"
	"github.com/agenthands/roundup/internal/core/rounds"
)

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	cfg.Paths.WorkDir = t.TempDir()
	s := NewServer(cfg, zerolog.Nop())
	return s, s.SetupRouter()
}

func get(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	_, r := newTestServer(t)
	w := get(r, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestNothingYet(t *testing.T) {
	_, r := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, get(r, "/state").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/report").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/communities").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/communities?round=zero").Code)

	w := get(r, "/decisions")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"decisions":null}`, w.Body.String())
}

func TestServesRunFiles(t *testing.T) {
	s, r := newTestServer(t)
	cfg := s.Config

	st := model.NewRoundState("run-1", 3)
	st.CurrentRound = 2
	require.NoError(t, s.State.Save(st))

	export := &model.Export{Communities: []model.Cluster{{ID: "COMM-001", Category: "bug", Members: []string{"A", "B"}, Size: 2}}}
	require.NoError(t, community.WriteExport(community.ExportPath(cfg.Paths.WorkDir, 2), export))
	require.NoError(t, common.WriteJSONAtomic(cfg.Path(cfg.Paths.Report), &rounds.Report{RunID: "run-1", StopReason: rounds.StopConvergence}))
	require.NoError(t, s.Log.Append(model.DecisionRecord{
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		User:      "roundup",
		EntryID:   "B",
		Action:    model.ActionMerge,
		TargetID:  "A",
	}))

	w := get(r, "/state")
	require.Equal(t, http.StatusOK, w.Code)
	var gotState model.RoundState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gotState))
	assert.Equal(t, "run-1", gotState.RunID)

	w = get(r, "/communities")
	require.Equal(t, http.StatusOK, w.Code)
	var gotExport model.Export
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &gotExport))
	assert.Equal(t, "COMM-001", gotExport.Communities[0].ID)

	assert.Equal(t, http.StatusNotFound, get(r, "/communities?round=1").Code)

	w = get(r, "/report")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"stop_reason":"convergence"`)

	w = get(r, "/decisions")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"B"`)
}
