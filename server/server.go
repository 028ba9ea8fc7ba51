// Package server exposes the bridge method table over HTTP and its event channel over a
// websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/user/towerbridge/bridge"
	"github.com/user/towerbridge/config"
	"github.com/user/towerbridge/fault"
	"github.com/user/towerbridge/logger"
)

const defaultCallTimeout = 60 * time.Second

// Server serves one bridge
type Server struct {
	bridge   *bridge.Bridge
	engine   *gin.Engine
	hub      *hub
	upgrader websocket.Upgrader
	http     *http.Server

	callTimeout time.Duration
}

// CallRequest is the body of a method call
type CallRequest struct {
	Args []json.RawMessage `json:"args"`
}

// New builds the server and installs its hub as the bridge event sink
func New(b *bridge.Bridge, cfg config.ServerConfig) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	s := &Server{
		bridge: b,
		engine: engine,
		hub:    newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		callTimeout: cfg.WriteTimeout,
	}
	if s.callTimeout <= 0 {
		s.callTimeout = defaultCallTimeout
	}

	b.Events().SetSink(s.hub.broadcast)
	s.setupRoutes()

	s.http = &http.Server{
		Addr:        cfg.Addr,
		Handler:     engine,
		ReadTimeout: cfg.ReadTimeout,
		// no write timeout: calls may wait for discovery and websockets are long lived
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.health)

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/methods", s.listMethods)
		v1.POST("/methods/:name", s.call)
		v1.GET("/towers", s.listTowers)
		v1.GET("/events", s.events)
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until Shutdown
func (s *Server) ListenAndServe() error {
	logger.Info("Server", "listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every event stream
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.http.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Server", "%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	session, persistent := s.bridge.Registry().Len()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"initialized": s.bridge.Initialized(),
		"discovering": s.bridge.Discovering(),
		"towers":      gin.H{"session": session, "persistent": persistent},
		"listeners":   s.bridge.Events().Listeners(),
	})
}

func (s *Server) listMethods(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"methods": bridge.Methods()})
}

func (s *Server) listTowers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"towers": s.bridge.Registry().PersistentTowers()})
}

func (s *Server) call(c *gin.Context) {
	name := c.Param("name")

	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, fault.Bridgef(fault.CodeInvalidArgument, "body must be {\"args\": [...]}: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.callTimeout)
	defer cancel()

	result, err := s.bridge.Invoke(ctx, name, req.Args)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func writeError(c *gin.Context, err error) {
	var ferr *fault.Error
	if !errors.As(err, &ferr) {
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			status = http.StatusGatewayTimeout
		}
		c.JSON(status, gin.H{"error": fault.Bridge(fault.CodeUnknown, err.Error())})
		return
	}
	c.JSON(statusFor(ferr), gin.H{"error": ferr, "categories": fault.MatchingCategories(ferr)})
}

func statusFor(e *fault.Error) int {
	if e.Domain != fault.DomainBridge {
		return http.StatusUnprocessableEntity
	}
	switch e.Code {
	case fault.CodeUnknownMethod:
		return http.StatusNotFound
	case fault.CodeInvalidArgument, fault.CodeMalformedHex, fault.CodeInvalidTowerID:
		return http.StatusBadRequest
	case fault.CodeNotInitialized, fault.CodeAlreadyInDiscovery, fault.CodeSessionRequestPending:
		return http.StatusConflict
	case fault.CodeDiscoveryTimeout, fault.CodeCommandTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusUnprocessableEntity
	}
}

// events upgrades to a websocket that receives every bridge event while open.
// The connection counts as one listener.
func (s *Server) events(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Server", "websocket upgrade failed: %v", err)
		return
	}

	cl := s.hub.register(conn)
	s.bridge.Events().AddListener("*")
	logger.Info("Server", "event stream %s opened from %s", cl.id, c.ClientIP())

	go cl.writePump()
	go func() {
		cl.readPump()
		s.hub.unregister(cl)
		s.bridge.Events().RemoveListeners(1)
		logger.Info("Server", "event stream %s closed", cl.id)
	}()
}
