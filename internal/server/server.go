// Package server exposes the provider registry over HTTP.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourorg/metaswap-gateway/internal/fault"
	"github.com/yourorg/metaswap-gateway/internal/model"
	"github.com/yourorg/metaswap-gateway/internal/provider"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
	"github.com/yourorg/metaswap-gateway/internal/types"
)

// version reported by /health
const version = "1.0.0"

// StatusReporter contributes a named section to /health
type StatusReporter interface {
	Status() map[string]interface{}
}

// Options configures the HTTP layer
type Options struct {
	RequestRPS   float64
	RequestBurst int

	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
	Audit    StatusReporter
}

// Server routes requests to the provider chosen by chain and category
type Server struct {
	registry *provider.Registry
	opts     Options
	started  time.Time
}

// New creates the HTTP layer over a built registry
func New(registry *provider.Registry, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{registry: registry, opts: opts, started: time.Now()}
}

// Router builds the gin engine
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), identity(), requestLogger())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1/:chain/:category")
	v1.Use(newLimiter(s.opts.RequestRPS, s.opts.RequestBurst).middleware())
	{
		v1.GET("/markets", s.markets)
		v1.GET("/markets/:id/quote", s.quote)
		v1.POST("/executions", s.execute)
		v1.GET("/executions/:id", s.status)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":    "OK",
		"version":   version,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"providers": s.registry.Descriptors(),
	}
	if s.opts.Audit != nil {
		body["audit"] = s.opts.Audit.Status()
	}
	c.JSON(http.StatusOK, body)
}

// route resolves the provider for the path's chain and category
func (s *Server) route(c *gin.Context) (provider.Provider, bool) {
	chain := types.ParseChain(c.Param("chain"))
	category := types.ParseCategory(c.Param("category"))
	p, err := s.registry.Find(chain, category)
	if err != nil {
		handleError(c, err)
		return nil, false
	}
	return p, true
}

func (s *Server) markets(c *gin.Context) {
	p, ok := s.route(c)
	if !ok {
		return
	}
	quotes, err := p.Markets(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, gin.H{"provider": p.Descriptor().Name, "markets": quotes})
}

func (s *Server) quote(c *gin.Context) {
	p, ok := s.route(c)
	if !ok {
		return
	}
	q, err := p.Quote(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, q)
}

func (s *Server) execute(c *gin.Context) {
	p, ok := s.route(c)
	if !ok {
		return
	}

	var req model.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, fault.Validation("invalid request body: %v", err))
		return
	}
	req.CallerID = telemetry.CallerID(c.Request.Context())

	outcome, err := p.Execute(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: outcome.Success, Data: outcome})
}

func (s *Server) status(c *gin.Context) {
	p, ok := s.route(c)
	if !ok {
		return
	}
	outcome, err := p.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: outcome.Success, Data: outcome})
}
