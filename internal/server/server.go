package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/agenthands/roundup/internal/config"
	"github.com/agenthands/roundup/internal/core/common"
	"github.com/agenthands/roundup/internal/core/community"
	"github.com/agenthands/roundup/internal/core/rounds"
	"github.com/agenthands/roundup/internal/core/state"
)

// Server exposes the files of a run read-only over HTTP.
type Server struct {
	Config *config.Config
	State  *state.Store
	Log    *state.DecisionLog
	logger zerolog.Logger
}

func NewServer(cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{
		Config: cfg,
		State:  state.NewStore(cfg.Path(cfg.Paths.StateFile)),
		Log:    state.NewDecisionLog(cfg.Path(cfg.Paths.DecisionLog)),
		logger: logger.With().Str("component", "server").Logger(),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Health)
	r.GET("/state", s.GetState)
	r.GET("/report", s.GetReport)
	r.GET("/communities", s.GetCommunities)
	r.GET("/decisions", s.GetDecisions)

	return r
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) GetState(c *gin.Context) {
	st, err := s.State.Load()
	if errors.Is(err, state.ErrNoState) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run has started"})
		return
	}
	if err != nil {
		s.fail(c, err, "Failed to load state")
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) GetReport(c *gin.Context) {
	var report rounds.Report
	err := common.ReadJSON(s.Config.Path(s.Config.Paths.Report), &report)
	if errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report yet"})
		return
	}
	if err != nil {
		s.fail(c, err, "Failed to read report")
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetCommunities serves the export of ?round=N, defaulting to the current
// round of the saved state.
func (s *Server) GetCommunities(c *gin.Context) {
	round := 0
	if q := c.Query("round"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "round must be a positive integer"})
			return
		}
		round = n
	}
	if round == 0 {
		st, err := s.State.Load()
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no run has started"})
			return
		}
		round = st.CurrentRound
	}

	path := community.ExportPath(s.Config.Paths.WorkDir, round)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no export for round " + strconv.Itoa(round)})
		return
	}
	export, err := community.ReadExport(path)
	if err != nil {
		s.fail(c, err, "Failed to read export")
		return
	}
	c.JSON(http.StatusOK, export)
}

func (s *Server) GetDecisions(c *gin.Context) {
	records, err := s.Log.ReadAll()
	if err != nil {
		s.fail(c, err, "Failed to read decision log")
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": records})
}

func (s *Server) fail(c *gin.Context, err error, msg string) {
	s.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg(msg)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
