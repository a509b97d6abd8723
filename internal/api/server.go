// Package api exposes the monitoring and trend services over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/jobs"
	"mentionwatch/internal/model"
	"mentionwatch/internal/monitor"
	"mentionwatch/internal/trends"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Monitor interface {
	AddKeyword(ctx context.Context, tenant, text string, platforms []string, freq model.Frequency) (model.Keyword, error)
	ListKeywords(ctx context.Context, tenant string) ([]model.Keyword, error)
	StartMonitoring(ctx context.Context, keywordID, tenant string) error
	StopMonitoring(ctx context.Context, keywordID, tenant string) error
	ScanKeyword(ctx context.Context, keywordID, tenant string, platforms []string) ([]model.ScanResult, error)
	GetMonitoringStatus(ctx context.Context, tenant string) ([]model.MonitoringStatus, error)
}

type Trends interface {
	AnalyzeTrends(ctx context.Context, tenant string, opts trends.Options) (*trends.Report, error)
}

// Health reports per-platform adapter configuration health.
type Health interface {
	Health(ctx context.Context) map[string]bool
}

type Config struct {
	Monitor Monitor
	Trends  Trends
	Jobs    *jobs.Tracker
	Health  Health
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type Server struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Jobs == nil {
		cfg.Jobs = jobs.NewTracker(0, nil)
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, log: log}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	v1.GET("/jobs/metrics", s.jobMetrics)

	t := v1.Group("/tenants/:tenant")
	t.POST("/keywords", s.createKeyword)
	t.GET("/keywords", s.listKeywords)
	t.POST("/keywords/:id/start", s.startKeyword)
	t.POST("/keywords/:id/stop", s.stopKeyword)
	t.POST("/keywords/:id/scan", s.scanKeyword)
	t.GET("/status", s.status)
	t.GET("/trends", s.trends)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("api: listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("api: request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "duration", time.Since(start))
	}
}

// fail writes err with the status its kind maps to.
func (s *Server) fail(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	status := errs.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("api: request failed", "path", c.FullPath(), "err", err)
	}
	if d := errs.RetryAfterOf(err); d > 0 {
		c.Header("Retry-After", strconv.Itoa(int(d.Seconds()+0.5)))
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

func (s *Server) healthz(c *gin.Context) {
	platforms := map[string]bool{}
	if s.cfg.Health != nil {
		platforms = s.cfg.Health.Health(c.Request.Context())
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "platforms": platforms})
}

func (s *Server) jobMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Jobs.Metrics(c.Query("tenant")))
}

type createKeywordRequest struct {
	Keyword   string          `json:"keyword" binding:"required"`
	Platforms []string        `json:"platforms"`
	Frequency model.Frequency `json:"frequency"`
	Start     bool            `json:"start"`
}

func (s *Server) createKeyword(c *gin.Context) {
	var req createKeywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errs.New(errs.KindValidation, "", "invalid request: "+err.Error()))
		return
	}
	ctx := c.Request.Context()
	tenant := c.Param("tenant")
	kw, err := s.cfg.Monitor.AddKeyword(ctx, tenant, req.Keyword, req.Platforms, req.Frequency)
	if err != nil {
		s.fail(c, err)
		return
	}
	if req.Start {
		if err := s.cfg.Monitor.StartMonitoring(ctx, kw.ID, tenant); err != nil {
			s.fail(c, err)
			return
		}
		kw.IsActive = true
	}
	c.JSON(http.StatusCreated, kw)
}

func (s *Server) listKeywords(c *gin.Context) {
	kws, err := s.cfg.Monitor.ListKeywords(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keywords": kws, "count": len(kws)})
}

func (s *Server) startKeyword(c *gin.Context) {
	if err := s.cfg.Monitor.StartMonitoring(c.Request.Context(), c.Param("id"), c.Param("tenant")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keyword_id": c.Param("id"), "active": true})
}

func (s *Server) stopKeyword(c *gin.Context) {
	if err := s.cfg.Monitor.StopMonitoring(c.Request.Context(), c.Param("id"), c.Param("tenant")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keyword_id": c.Param("id"), "active": false})
}

type scanRequest struct {
	Platforms []string `json:"platforms"`
}

func (s *Server) scanKeyword(c *gin.Context) {
	var req scanRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, errs.New(errs.KindValidation, "", "invalid request: "+err.Error()))
			return
		}
	}
	id, tenant := c.Param("id"), c.Param("tenant")
	var results []model.ScanResult
	err := s.cfg.Jobs.Run(c.Request.Context(), id, tenant, func(ctx context.Context) error {
		var err error
		results, err = s.cfg.Monitor.ScanKeyword(ctx, id, tenant, req.Platforms)
		return err
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "summary": monitor.Summary(results)})
}

func (s *Server) status(c *gin.Context) {
	st, err := s.cfg.Monitor.GetMonitoringStatus(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keywords": st, "count": len(st)})
}

func (s *Server) trends(c *gin.Context) {
	opts, err := trendOptions(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	rep, err := s.cfg.Trends.AnalyzeTrends(c.Request.Context(), c.Param("tenant"), opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func trendOptions(c *gin.Context) (trends.Options, error) {
	var opts trends.Options
	var err error
	if v := c.Query("window"); v != "" {
		if opts.Window, err = ParseWindow(v); err != nil {
			return opts, errs.Newf(errs.KindValidation, "", "window: %v", err)
		}
	}
	if v := c.Query("min_conversations"); v != "" {
		if opts.MinConversations, err = strconv.Atoi(v); err != nil || opts.MinConversations < 0 {
			return opts, errs.Newf(errs.KindValidation, "", "min_conversations: invalid %q", v)
		}
	}
	if v := c.Query("min_relevance"); v != "" {
		if opts.MinRelevance, err = strconv.ParseFloat(v, 64); err != nil || opts.MinRelevance < 0 || opts.MinRelevance > 1 {
			return opts, errs.Newf(errs.KindValidation, "", "min_relevance: must be in [0,1], got %q", v)
		}
	}
	if v := c.Query("max_results"); v != "" {
		if opts.MaxResults, err = strconv.Atoi(v); err != nil || opts.MaxResults < 0 {
			return opts, errs.Newf(errs.KindValidation, "", "max_results: invalid %q", v)
		}
	}
	return opts, nil
}

// ParseWindow accepts Go durations plus a whole-day form such as "7d".
func ParseWindow(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if days, ok := strings.CutSuffix(v, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, errors.New("invalid day count " + strconv.Quote(v))
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}
