// Package api is the HTTP shell around the execution engine: route dispatch,
// passphrase verification and status-code mapping live here, decision logic
// does not.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"gridhook/engine"
	"gridhook/logger"
	"gridhook/store"
)

// Server HTTP API server
type Server struct {
	router     *gin.Engine
	engine     *engine.Engine
	store      *store.Store
	passphrase string
	httpServer *http.Server
	port       int
}

// NewServer creates the API server. st may be nil; the activity endpoint
// then reports empty history.
func NewServer(eng *engine.Engine, st *store.Store, passphrase string, port int) *Server {
	// Release mode keeps gin quiet
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router:     router,
		engine:     eng,
		store:      st,
		passphrase: passphrase,
		port:       port,
	}
	s.setupRoutes()
	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.Any("/health", s.handleHealth)
	s.router.POST("/webhook", s.handleWebhook)

	api := s.router.Group("/api")
	{
		api.GET("/activity", s.handleActivity)
	}
}

// handleHealth liveness probe
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleWebhook receives one trading signal, authenticates it and hands it
// to the engine
func (s *Server) handleWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "failed to read request body"})
		return
	}

	sig, err := engine.ParseSignal(raw)
	if err != nil {
		logger.Warnf("[api] rejected payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	// Auth failure is deliberately detail-free and distinct from parsing
	if !s.authorized(sig.Passphrase) {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "unauthorized"})
		return
	}

	rep := s.engine.Process(c.Request.Context(), sig)
	c.JSON(httpStatus(rep), reportBody(sig, rep))
}

// authorized compares the payload passphrase against the configured one.
// With no passphrase configured, the webhook is open.
func (s *Server) authorized(passphrase string) bool {
	if s.passphrase == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(s.passphrase), []byte(passphrase)) == 1
}

// httpStatus maps a report onto HTTP. A partial grid is actionable for the
// trader and must read as 200, not as an error.
func httpStatus(rep *engine.Report) int {
	if rep.Status != engine.StatusFailure {
		return http.StatusOK
	}
	if rep.ExchangeSide() {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func reportBody(sig *engine.GridSignal, rep *engine.Report) gin.H {
	body := gin.H{"status": string(rep.Status)}
	if rep.Message != "" {
		body["message"] = rep.Message
	}

	orders := make([]gin.H, 0, len(rep.Orders))
	for _, o := range rep.Orders {
		orders = append(orders, orderBody(o))
	}

	if sig.Kind == engine.KindGridExit {
		body["cancelled"] = rep.Cancelled
		body["closed_positions"] = orders
	} else {
		body["orders"] = orders
	}
	return body
}

func orderBody(o engine.OrderOutcome) gin.H {
	h := gin.H{
		"symbol":   o.Request.Symbol,
		"side":     o.Request.Side,
		"type":     o.Request.Type,
		"quantity": o.Request.Quantity.String(),
	}
	if o.Request.Type == "LIMIT" {
		h["price"] = o.Request.Price.String()
	}
	if o.Placed() {
		h["status"] = store.OrderStatusPlaced
		h["order_id"] = o.OrderID
	} else {
		h["status"] = store.OrderStatusRejected
		h["reason"] = o.Err.Error()
	}
	return h
}

// handleActivity returns recently processed signals and order outcomes
func (s *Server) handleActivity(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"signals": []gin.H{}, "orders": []gin.H{}})
		return
	}

	signals, err := s.store.Signal().Recent(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read signals: " + err.Error()})
		return
	}
	orders, err := s.store.Order().Recent(100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read orders: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signals": signals, "orders": orders})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in a background goroutine
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	go func() {
		logger.Infof("API server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
