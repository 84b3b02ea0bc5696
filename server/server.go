package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/zeu5/studybreak-rl/metrics"
	"github.com/zeu5/studybreak-rl/types"
)

type Config struct {
	Addr            string
	Mode            string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	MetricsPath     string
}

// Server exposes the session through a json API
type Server struct {
	config  Config
	session *Session
	metrics *metrics.Metrics
	log     *logrus.Entry

	engine *gin.Engine
	server *http.Server
}

func New(config Config, session *Session, m *metrics.Metrics, log *logrus.Entry) *Server {
	if config.Mode == "" {
		config.Mode = gin.ReleaseMode
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{
		config:  config,
		session: session,
		metrics: m,
		log:     log,
	}

	gin.SetMode(config.Mode)
	r := gin.New()
	r.Use(s.recovery(), s.logRequests())

	r.GET("/health", s.handleHealth)
	if config.MetricsEnabled {
		r.GET(config.MetricsPath, gin.WrapH(m.Handler()))
	}

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/preferences", s.handleGetPreferences)
	api.POST("/preferences", s.handleSetPreferences)
	api.POST("/action", s.handleAction)
	api.GET("/recommendation", s.handleRecommendation)
	api.POST("/train", s.handleTrain)
	api.GET("/training-status", s.handleTrainingStatus)
	api.POST("/reset", s.handleReset)
	api.GET("/stats", s.handleStats)
	api.GET("/learning-stats", s.handleLearningStats)
	api.GET("/policy", s.handlePolicy)

	s.engine = r
	s.server = &http.Server{
		Addr:    config.Addr,
		Handler: r,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the context is cancelled and then shuts the server down
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.config.Addr).Info("starting server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		s.metrics.ObserveRequest(route, c.Writer.Status(), duration)
		s.log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": duration.String(),
		}).Debug("request")
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err interface{}) {
		s.log.WithField("panic", err).Error("request failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// bind the optional json body, an empty body leaves the request untouched
func bindOptionalJSON(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Status())
}

func (s *Server) handleGetPreferences(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Preferences())
}

type preferencesRequest struct {
	FatigueSensitivity *string `json:"fatigue_sensitivity"`
	BreakBias          *string `json:"break_bias"`
}

func (s *Server) handleSetPreferences(c *gin.Context) {
	req := preferencesRequest{}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid preference values"})
		return
	}
	fatigue, bias := "medium", "study"
	if req.FatigueSensitivity != nil {
		fatigue = *req.FatigueSensitivity
	}
	if req.BreakBias != nil {
		bias = *req.BreakBias
	}
	resp, err := s.session.SetPreferences(fatigue, bias)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid preference values"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

type actionRequest struct {
	// raw to tell an absent action (continue) from an explicit null
	Action json.RawMessage `json:"action"`
}

// actionIndex returns the requested action, Continue when the field is absent
func (r actionRequest) actionIndex() (int, bool) {
	if len(r.Action) == 0 {
		return int(types.Continue), true
	}
	var raw *int
	if err := json.Unmarshal(r.Action, &raw); err != nil || raw == nil {
		return 0, false
	}
	return *raw, true
}

func (s *Server) handleAction(c *gin.Context) {
	req := actionRequest{}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	raw, ok := req.actionIndex()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	action, ok := types.ParseAction(raw)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	resp, err := s.session.TakeAction(c.Request.Context(), action)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecommendation(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Recommendation())
}

type trainRequest struct {
	Episodes *int `json:"episodes"`
}

func (s *Server) handleTrain(c *gin.Context) {
	req := trainRequest{}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid number of episodes"})
		return
	}
	episodes := s.session.DefaultEpisodes()
	if req.Episodes != nil {
		episodes = *req.Episodes
	}
	status, err := s.session.Train(c.Request.Context(), episodes)
	if errors.Is(err, ErrInvalidEpisodes) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid number of episodes"})
		return
	} else if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) handleTrainingStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.TrainingStatus())
}

func (s *Server) handleReset(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Reset(c.Request.Context()))
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Stats())
}

func (s *Server) handleLearningStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.LearningStats())
}

func (s *Server) handlePolicy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"states": s.session.Policy()})
}
