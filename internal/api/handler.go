// Package api exposes the engine over HTTP and a websocket event stream.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"backtest-core/internal/engine"
	"backtest-core/internal/events"
	"backtest-core/internal/monitor"
)

// Options configure the HTTP layer.
type Options struct {
	JWTSecret      string
	CORSOrigins    []string
	RequestTimeout time.Duration
	RateLimit      float64
	RateBurst      int
}

// Server wires HTTP endpoints around the engine service and event bus.
type Server struct {
	Router  *gin.Engine
	Engine  engine.Service
	Bus     *events.Bus
	Metrics *monitor.Metrics
	opts    Options
}

func NewServer(svc engine.Service, bus *events.Bus, metrics *monitor.Metrics, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 50
	}

	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(metrics))
	r.Use(RateLimitMiddleware(opts.RateLimit, opts.RateBurst))
	r.Use(TimeoutMiddleware(opts.RequestTimeout))
	r.Use(CORSMiddleware(opts.CORSOrigins))

	s := &Server{
		Router:  r,
		Engine:  svc,
		Bus:     bus,
		Metrics: metrics,
		opts:    opts,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if s.Metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	api := s.Router.Group("/api")
	api.Use(AuthMiddleware(s.opts.JWTSecret))
	{
		api.GET("/presets", s.listPresets)

		api.POST("/backtest", s.runBacktest)
		api.GET("/backtests", s.listBacktests)
		api.GET("/backtests/:id", s.getBacktest)

		api.POST("/livetest/start", s.startLive)
		api.GET("/livetest/sessions", s.listLive)
		api.GET("/livetest/trades", s.listLiveTrades)
		api.GET("/livetest/:symbol/poll", s.pollLive)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.Status(c.Request.Context()))
}

// Handler exposes the router for http.Server.
func (s *Server) Handler() http.Handler {
	return s.Router
}
