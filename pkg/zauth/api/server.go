// Package api provides the HTTP admin API for an authentication handler
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ZentaChain/zsock-node/pkg/logging"
	"github.com/ZentaChain/zsock-node/pkg/zauth"
)

// Server exposes handler status, credential management and metrics
// over HTTP
type Server struct {
	handler    *zauth.Handler
	store      zauth.CredentialStore
	registry   *prometheus.Registry
	router     *gin.Engine
	addr       string
	httpServer *http.Server
	logger     *zap.SugaredLogger
}

// Config holds server configuration
type Config struct {
	Addr         string
	EnableCORS   bool
	RateLimit    int // Requests per minute
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Registry serves /metrics when set
	Registry *prometheus.Registry
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:         ":8081",
		EnableCORS:   true,
		RateLimit:    100,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ErrorResponse is the JSON shape of every API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NewServer creates the admin API server for a handler and its store
func NewServer(handler *zauth.Handler, store zauth.CredentialStore, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	server := &Server{
		handler:  handler,
		store:    store,
		registry: config.Registry,
		router:   router,
		addr:     config.Addr,
		logger:   logging.Logger("zauth/api"),
	}

	server.setupMiddleware(config)
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(config *Config) {
	if config.EnableCORS {
		s.router.Use(CORSMiddleware())
	}
	s.router.Use(RateLimitMiddleware(config.RateLimit))
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(gin.Recovery())
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)

		users := v1.Group("/users")
		{
			users.GET("", s.handleListUsers)
			users.PUT("/:username", s.handleSetUser)
			users.DELETE("/:username", s.handleRemoveUser)
		}

		keys := v1.Group("/keys")
		{
			keys.PUT("/:key", s.handleAllowKey)
			keys.DELETE("/:key", s.handleRemoveKey)
		}

		rules := v1.Group("/rules")
		{
			rules.POST("/allow", s.handleAllow)
			rules.POST("/deny", s.handleDeny)
			rules.GET("/check", s.handleCheckAddress)
		}
	}

	if s.registry != nil {
		s.router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	// Health check endpoint (outside versioning)
	s.router.GET("/health", s.handleHealth)
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Infow("admin api listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorw("admin api server error", "error", err)
		}
	}()

	<-ctx.Done()

	s.logger.Info("shutting down admin api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// StatusResponse reports the handler's state and counters
type StatusResponse struct {
	Running  bool        `json:"running"`
	Endpoint string      `json:"endpoint"`
	Stats    zauth.Stats `json:"stats"`
}

// handleStatus handles GET /api/v1/status
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Running:  s.handler.Running(),
		Endpoint: s.handler.Endpoint(),
		Stats:    s.handler.Stats(),
	})
}

// UsersResponse lists the configured PLAIN usernames
type UsersResponse struct {
	Users []string `json:"users"`
}

// handleListUsers handles GET /api/v1/users
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.store.PlainUsernames()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Listing users failed",
			Message: err.Error(),
		})
		return
	}
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, UsersResponse{Users: users})
}

// SetUserRequest carries the password for a PLAIN user
type SetUserRequest struct {
	Password string `json:"password" binding:"required"`
}

// handleSetUser handles PUT /api/v1/users/:username
func (s *Server) handleSetUser(c *gin.Context) {
	username := c.Param("username")

	var req SetUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: "A non-empty password field is required",
		})
		return
	}

	if err := s.store.SetPlain(username, req.Password); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Storing user failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "username": username})
}

// handleRemoveUser handles DELETE /api/v1/users/:username
func (s *Server) handleRemoveUser(c *gin.Context) {
	username := c.Param("username")
	if err := s.store.RemovePlain(username); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Removing user failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "username": username})
}

// handleAllowKey handles PUT /api/v1/keys/:key
func (s *Server) handleAllowKey(c *gin.Context) {
	key := c.Param("key")
	if err := zauth.ValidateCurveKey(key); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid curve key",
			Message: err.Error(),
		})
		return
	}
	if err := s.store.AllowCurve(key); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Storing key failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key})
}

// handleRemoveKey handles DELETE /api/v1/keys/:key
func (s *Server) handleRemoveKey(c *gin.Context) {
	key := c.Param("key")
	if err := s.store.RemoveCurve(key); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Removing key failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "key": key})
}

// RuleRequest names the peer addresses a rule applies to
type RuleRequest struct {
	Addresses []string `json:"addresses" binding:"required"`
}

// handleAllow handles POST /api/v1/rules/allow
func (s *Server) handleAllow(c *gin.Context) {
	s.handleRule(c, s.store.Allow)
}

// handleDeny handles POST /api/v1/rules/deny
func (s *Server) handleDeny(c *gin.Context) {
	s.handleRule(c, s.store.Deny)
}

func (s *Server) handleRule(c *gin.Context, apply func(...string) error) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Addresses) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: "A non-empty addresses list is required",
		})
		return
	}
	if err := apply(req.Addresses...); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Storing rule failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "addresses": req.Addresses})
}

// handleCheckAddress handles GET /api/v1/rules/check?address=...
func (s *Server) handleCheckAddress(c *gin.Context) {
	address := c.Query("address")
	if address == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Missing address",
			Message: "Pass the peer address in the address query parameter",
		})
		return
	}
	allowed, err := s.store.CheckAddress(address)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Address check failed",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "allowed": allowed})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if !s.handler.Running() {
		status = "handler stopped"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "time": fmt.Sprintf("%d", time.Now().Unix())})
}
