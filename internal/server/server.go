// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/law-makers/marketwatch/internal/auth"
	"github.com/law-makers/marketwatch/internal/batch"
	"github.com/law-makers/marketwatch/internal/browser"
	"github.com/law-makers/marketwatch/internal/diagstore"
	"github.com/law-makers/marketwatch/internal/ratelimit"
	"github.com/law-makers/marketwatch/internal/sites"
	"github.com/law-makers/marketwatch/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultScrapeTimeout bounds one synchronous scrape request
const DefaultScrapeTimeout = 3 * time.Minute

// BrowserStatus reports the health of the shared browser
type BrowserStatus interface {
	Metrics() browser.Metrics
}

// LimiterStatus reports the token buckets of the site limiter
type LimiterStatus interface {
	Stats() []ratelimit.BucketStats
}

// SessionStatus reports the tracked health of pooled sessions
type SessionStatus interface {
	Snapshot() []auth.Health
}

// ProxyStatus reports how many rotating proxies are out of cooldown
type ProxyStatus interface {
	Len() int
	Healthy() int
}

// ProxySummary counts configured and usable proxies
type ProxySummary struct {
	Total   int `json:"total"`
	Healthy int `json:"healthy"`
}

// Options wires the worker surface. Scraper and Sites are required.
type Options struct {
	Scraper  batch.Scraper
	Sites    *sites.Registry
	Browser  BrowserStatus
	Limiter  LimiterStatus
	Sessions SessionStatus
	Proxies  ProxyStatus
	Sink     diagstore.Sink

	ScrapeTimeout time.Duration
	Logger        zerolog.Logger
}

// Server exposes health, status and synchronous scrapes over HTTP
type Server struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a server, filling defaults for optional collaborators
func New(opts Options) (*Server, error) {
	if opts.Scraper == nil {
		return nil, errors.New("server: scraper is required")
	}
	if opts.Sites == nil {
		return nil, errors.New("server: site registry is required")
	}
	if opts.Sink == nil {
		opts.Sink = diagstore.Discard{}
	}
	if opts.ScrapeTimeout <= 0 {
		opts.ScrapeTimeout = DefaultScrapeTimeout
	}
	return &Server{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "server").Logger(),
	}, nil
}

// ScrapeRequest is the body of POST /v1/scrape
type ScrapeRequest struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	SiteID    string             `json:"site"`
	SearchURL string             `json:"search_url" binding:"required"`
	MinPrice  *float64           `json:"min_price"`
	MaxPrice  *float64           `json:"max_price"`
	Locations []string           `json:"locations"`
	Keywords  []string           `json:"keywords"`
	Mode      models.MonitorMode `json:"mode"`
}

// ScrapeResponse is the body returned by POST /v1/scrape. A failed scrape
// is still a 200: the diagnosis carries the failure.
type ScrapeResponse struct {
	Monitor models.Monitor          `json:"monitor"`
	Result  models.ExtractionResult `json:"result"`
	Record  models.DiagnosisRecord  `json:"record"`
}

// SiteSummary describes one registered site
type SiteSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Domain   string `json:"domain"`
	AuthMode string `json:"auth_mode"`
	Stealth  string `json:"stealth"`
}

// StatusResponse is the body of GET /v1/status
type StatusResponse struct {
	Browser    *browser.Metrics        `json:"browser,omitempty"`
	RateLimits []ratelimit.BucketStats `json:"rate_limits"`
	Sessions   []auth.Health           `json:"sessions"`
	Proxies    *ProxySummary           `json:"proxies,omitempty"`
}

func (r ScrapeRequest) monitor() models.Monitor {
	return models.Monitor{
		ID:        r.ID,
		UserID:    r.UserID,
		SiteID:    r.SiteID,
		SearchURL: r.SearchURL,
		MinPrice:  r.MinPrice,
		MaxPrice:  r.MaxPrice,
		Locations: r.Locations,
		Keywords:  r.Keywords,
		Mode:      r.Mode,
	}
}

// errorResponse creates a standardized error response.
func errorResponse(code, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// SetupRouter builds the gin engine with every route mounted
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.HandleHealth)

	v1 := router.Group("/v1")
	v1.GET("/status", s.HandleStatus)
	v1.GET("/sites", s.HandleListSites)
	v1.POST("/scrape", s.HandleScrape)

	return router
}

// requestLogger logs one line per request through zerolog
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

// HandleHealth handles GET /healthz. It answers 503 while the browser is
// disconnected.
func (s *Server) HandleHealth(c *gin.Context) {
	if s.opts.Browser == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	m := s.opts.Browser.Metrics()
	if !m.Connected {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "browser": m})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "browser": m})
}

// HandleStatus handles GET /v1/status
func (s *Server) HandleStatus(c *gin.Context) {
	resp := StatusResponse{
		RateLimits: []ratelimit.BucketStats{},
		Sessions:   []auth.Health{},
	}
	if s.opts.Browser != nil {
		m := s.opts.Browser.Metrics()
		resp.Browser = &m
	}
	if s.opts.Limiter != nil {
		resp.RateLimits = s.opts.Limiter.Stats()
	}
	if s.opts.Sessions != nil {
		resp.Sessions = s.opts.Sessions.Snapshot()
	}
	if s.opts.Proxies != nil && s.opts.Proxies.Len() > 0 {
		resp.Proxies = &ProxySummary{Total: s.opts.Proxies.Len(), Healthy: s.opts.Proxies.Healthy()}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleListSites handles GET /v1/sites
func (s *Server) HandleListSites(c *gin.Context) {
	ids := s.opts.Sites.IDs()
	out := make([]SiteSummary, 0, len(ids))
	for _, id := range ids {
		site, err := s.opts.Sites.Get(id)
		if err != nil {
			continue
		}
		out = append(out, SiteSummary{
			ID:       site.ID,
			Name:     site.Name,
			Domain:   site.Domain,
			AuthMode: string(site.Auth.Mode),
			Stealth:  string(site.Stealth),
		})
	}
	c.JSON(http.StatusOK, gin.H{"sites": out, "total": len(out)})
}

// HandleScrape handles POST /v1/scrape. The scrape runs synchronously under
// the request context bounded by the scrape timeout.
func (s *Server) HandleScrape(c *gin.Context) {
	var req ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}

	m := req.monitor()
	if m.SiteID != "" {
		if _, err := s.opts.Sites.Get(m.SiteID); err != nil {
			c.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
			return
		}
	}
	if err := batch.Normalize(&m, s.opts.Sites); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("validation_error", err.Error()))
		return
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.ScrapeTimeout)
	defer cancel()

	res, rec := s.opts.Scraper.Scrape(ctx, m)

	if m.Mode != models.ModeDryRun {
		if err := s.opts.Sink.Write(context.WithoutCancel(ctx), rec); err != nil {
			s.logger.Warn().Err(err).Str("monitor", m.ID).Msg("Failed to record diagnosis")
		}
	}

	c.JSON(http.StatusOK, ScrapeResponse{Monitor: m, Result: res, Record: rec})
}

// Serve listens on addr until ctx is cancelled, then drains in-flight
// requests for up to grace.
func (s *Server) Serve(ctx context.Context, addr string, grace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Worker listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
