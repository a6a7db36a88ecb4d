package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"campaign-planner/backend/internal/ai"
	"campaign-planner/backend/internal/campaign"
	"campaign-planner/backend/internal/flow"
	"campaign-planner/backend/internal/ranking"
	"campaign-planner/backend/internal/store"
	"campaign-planner/backend/internal/util"
	"campaign-planner/backend/internal/wizard"
)

// Config defines server dependencies.
type Config struct {
	DBPath         string
	AllowedOrigins []string
	SilentDB       bool
	AIConfig       ai.Config
}

// session bundles the per-session workflow engines. They are lazily
// constructed so persisted drafts and answers survive process restarts.
type session struct {
	wizard *wizard.Wizard
	flow   *flow.Engine
}

// Server wires HTTP handlers with persistence and the planner client.
type Server struct {
	db             *store.Database
	client         *ai.Client
	allowedOrigins []string
	notifier       *SessionNotifier

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	client, err := ai.NewClient(cfg.AIConfig)
	if err != nil {
		return nil, fmt.Errorf("planner client: %w", err)
	}

	return &Server{
		db:             db,
		client:         client,
		allowedOrigins: cfg.AllowedOrigins,
		notifier:       NewSessionNotifier(),
		sessions:       make(map[string]*session),
	}, nil
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Session-ID"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.POST("/session", s.handleCreateSession)
		api.GET("/wizard", s.handleWizardState)
		api.POST("/wizard/field", s.handleWizardField)
		api.POST("/wizard/toggle", s.handleWizardToggle)
		api.POST("/wizard/next", s.handleWizardNext)
		api.POST("/wizard/back", s.handleWizardBack)
		api.POST("/wizard/submit", s.handleWizardSubmit)
		api.GET("/campaign", s.handleCampaign)
		api.GET("/recommendations", s.handleRecommendations)
		api.POST("/script/platform", s.handleSelectPlatform)
		api.POST("/script/adtype", s.handleSelectAdType)
		api.POST("/script/answer", s.handleAnswer)
		api.POST("/script/next", s.handleNext)
		api.POST("/script/resume", s.handleResume)
		api.POST("/script/generate", s.handleGenerateScript)
		api.GET("/script/state", s.handleFlowState)
		api.GET("/script", s.handleScript)
		api.GET("/stream", s.handleStream)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	s.mu.Lock()
	active := len(s.sessions)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"steps":           wizard.Titles(),
		"active_sessions": active,
	})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	id := uuid.NewString()
	s.session(id)
	c.JSON(http.StatusOK, SessionResponse{SessionID: id})
}

// session returns the workflow engines for an id, constructing them on
// first use.
func (s *Server) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[id]; ok {
		return existing
	}
	sess := &session{
		wizard: wizard.New(id, s.db, s.client),
		flow:   flow.New(id, s.db, s.client),
	}
	s.sessions[id] = sess
	return sess
}

// sessionID extracts the caller's session identifier.
func sessionID(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader("X-Session-ID"))
	if id == "" {
		id = strings.TrimSpace(c.Query("session"))
	}
	return id, id != ""
}

func (s *Server) sessionFor(c *gin.Context) (*session, string, bool) {
	id, ok := sessionID(c)
	if !ok {
		s.renderError(c, http.StatusBadRequest, errors.New("missing session id"))
		return nil, "", false
	}
	return s.session(id), id, true
}

func (s *Server) handleWizardState(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, wizardState(sess.wizard))
}

func wizardState(w *wizard.Wizard) WizardStateDTO {
	step := w.Step()
	return WizardStateDTO{
		Step:       int(step),
		StepTitle:  step.String(),
		StepTitles: wizard.Titles(),
		Errors:     w.Errors(),
		Draft:      w.Draft(),
	}
}

func (s *Server) handleWizardField(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	var req FieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if err := sess.wizard.UpdateField(req.Field, req.Value); err != nil {
		s.renderWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleWizardToggle(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	var req ToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if err := sess.wizard.ToggleSetMember(req.Field, req.Value); err != nil {
		s.renderWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleWizardNext(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	if !sess.wizard.Advance() {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "step validation failed",
			Fields: sess.wizard.Errors(),
		})
		return
	}
	c.JSON(http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleWizardBack(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	sess.wizard.Retreat()
	c.JSON(http.StatusOK, wizardState(sess.wizard))
}

func (s *Server) handleWizardSubmit(c *gin.Context) {
	sess, id, ok := s.sessionFor(c)
	if !ok {
		return
	}
	timer := util.StartTimer()
	pkg, err := sess.wizard.Submit(c.Request.Context())
	if err != nil {
		s.renderWorkflowError(c, err)
		return
	}

	elapsed := timer.ElapsedMs()
	logrus.WithFields(logrus.Fields{
		"session":     id,
		"duration_ms": elapsed,
	}).Info("campaign package committed")
	s.notifier.Broadcast(SessionEvent{
		Type:      EventPackageCommitted,
		SessionID: id,
		ElapsedMs: elapsed,
	})

	c.Data(http.StatusOK, "application/json", pkg.Raw)
}

func (s *Server) handleCampaign(c *gin.Context) {
	_, id, ok := s.sessionFor(c)
	if !ok {
		return
	}
	raw, found := s.db.Get(id, store.KeyCampaignData)
	if !found {
		s.renderError(c, http.StatusNotFound, errors.New("no campaign package yet"))
		return
	}
	c.Data(http.StatusOK, "application/json", []byte(raw))
}

func (s *Server) handleRecommendations(c *gin.Context) {
	_, id, ok := s.sessionFor(c)
	if !ok {
		return
	}
	raw, found := s.db.Get(id, store.KeyCampaignData)
	if !found {
		s.renderError(c, http.StatusNotFound, errors.New("no campaign package yet"))
		return
	}
	pkg, err := campaign.ParsePackage([]byte(raw))
	if err != nil {
		// Treat a corrupt stored package like absence rather than crashing
		// the view; the user can regenerate.
		logrus.WithError(err).WithField("session", id).Warn("stored package unreadable")
		s.renderError(c, http.StatusNotFound, errors.New("no campaign package yet"))
		return
	}

	c.JSON(http.StatusOK, RecommendationsResponse{
		Recommended:    RankedFromModel(ranking.Rank(pkg.RecommendedPlatforms, true)),
		NotRecommended: RankedFromModel(ranking.Rank(pkg.NotRecommendedPlatforms, false)),
		Keywords:       pkg.Keywords,
		Competitors:    pkg.Competitors,
		StrategyTips:   pkg.StrategyTips,
		LocalContext:   pkg.LocalContext,
	})
}

func (s *Server) handleSelectPlatform(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	var req PlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	types, err := sess.flow.SelectPlatform(c.Request.Context(), req.Platform)
	if err != nil {
		s.renderWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, AdTypesResponse{Platform: sess.flow.Platform(), RecommendedAdTypes: types})
}

func (s *Server) handleSelectAdType(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	var req AdTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if _, err := sess.flow.SelectAdType(c.Request.Context(), req.AdType); err != nil {
		s.renderWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, flowState(sess.flow))
}

func (s *Server) handleAnswer(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if err := sess.flow.AnswerCurrent(req.Answer); err != nil {
		s.renderWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, flowState(sess.flow))
}

func (s *Server) handleNext(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	if !sess.flow.GoNext() {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "current question has no answer"})
		return
	}
	c.JSON(http.StatusOK, flowState(sess.flow))
}

func (s *Server) handleResume(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	if err := sess.flow.Resume(c.Request.Context()); err != nil {
		s.renderWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, flowState(sess.flow))
}

func (s *Server) handleGenerateScript(c *gin.Context) {
	sess, id, ok := s.sessionFor(c)
	if !ok {
		return
	}
	timer := util.StartTimer()
	script, err := sess.flow.GenerateScript(c.Request.Context())
	if err != nil {
		s.renderWorkflowError(c, err)
		return
	}

	elapsed := timer.ElapsedMs()
	logrus.WithFields(logrus.Fields{
		"session":     id,
		"duration_ms": elapsed,
	}).Info("ad script generated")
	s.notifier.Broadcast(SessionEvent{
		Type:      EventScriptGenerated,
		SessionID: id,
		ElapsedMs: elapsed,
	})

	c.JSON(http.StatusOK, ScriptResponse{Script: script})
}

func (s *Server) handleFlowState(c *gin.Context) {
	sess, _, ok := s.sessionFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, flowState(sess.flow))
}

func flowState(e *flow.Engine) FlowStateDTO {
	dto := FlowStateDTO{
		Platform:      e.Platform(),
		AdType:        e.AdType(),
		QuestionCount: len(e.Schema()),
		CurrentIndex:  e.Index(),
		Answers:       e.Answers(),
		Complete:      e.IsComplete(),
	}
	if q := e.CurrentQuestion(); q != nil {
		dto.CurrentQuestion = q.Text
	}
	return dto
}

func (s *Server) handleScript(c *gin.Context) {
	_, id, ok := s.sessionFor(c)
	if !ok {
		return
	}
	script, found := s.db.Get(id, store.KeyGeneratedScript)
	if !found {
		s.renderError(c, http.StatusNotFound, errors.New("no generated script yet"))
		return
	}
	c.JSON(http.StatusOK, ScriptResponse{Script: script})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleStream(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		s.renderError(c, http.StatusBadRequest, errors.New("missing session id"))
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade")
		return
	}
	client := s.notifier.Register(conn, id)
	defer s.notifier.Unregister(client)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// renderWorkflowError maps workflow failures onto the API taxonomy:
// validation problems block with 422, state-machine conflicts with 409,
// upstream failures surface as 502 and leave session state retryable.
func (s *Server) renderWorkflowError(c *gin.Context, err error) {
	var vErr *campaign.ValidationError
	var sErr *ai.StatusError
	switch {
	case errors.Is(err, wizard.ErrSubmitInFlight),
		errors.Is(err, wizard.ErrNotAtReview),
		errors.Is(err, flow.ErrNoPlatform),
		errors.Is(err, flow.ErrSelectionChanged),
		errors.Is(err, flow.ErrIncomplete):
		s.renderError(c, http.StatusConflict, err)
	case errors.As(err, &vErr):
		// Covers both bad local input and an incomplete planner response;
		// the draft and stored package are untouched either way.
		s.renderError(c, http.StatusUnprocessableEntity, err)
	case errors.As(err, &sErr):
		s.renderError(c, http.StatusBadGateway, err)
	default:
		s.renderError(c, http.StatusBadGateway, err)
	}
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).Error("request failed")
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}
