// Package http serves period reports and the notification feed as JSON.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"spese-report/internal/cache"
	"spese-report/internal/core"
	"spese-report/internal/log"
	"spese-report/internal/middleware/ratelimit"
	"spese-report/internal/middleware/security"
	"spese-report/internal/middleware/trace"
	"spese-report/internal/period"
	"spese-report/internal/report"
)

// Reporter is the report side the handlers need.
type Reporter interface {
	Resolver() period.Resolver
	GenerateFor(ctx context.Context, userID string, res period.Resolution) (*report.Report, error)
	Available(ctx context.Context, userID string, g period.Granularity) ([]core.AvailablePeriod, error)
}

// NotificationStore backs the in-app feed. An empty kind lists every type.
type NotificationStore interface {
	ListNotifications(ctx context.Context, userID, kind string, limit int) ([]core.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	DeleteNotification(ctx context.Context, userID, id string) error
}

// Options configures NewServer. Cache and Ready may be nil.
type Options struct {
	Addr           string
	Reports        Reporter
	Notifications  NotificationStore
	Cache          cache.Store
	Ready          func(ctx context.Context) error
	Logger         *log.Logger
	Debug          bool
	CORSOrigins    []string
	RateLimitRPM   int
	// TrustedProxies are CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string
	Now            func() time.Time
}

type Server struct {
	http.Server
	engine        *gin.Engine
	reports       Reporter
	notifications NotificationStore
	cache         cache.Store
	ready         func(ctx context.Context) error
	logger        *log.Logger
	structured    *log.StructuredLogger
	debug         bool
	now           func() time.Time

	limiter      *ratelimit.Limiter
	tracer       *trace.Middleware
	detector     *security.Detector
	shutdownOnce sync.Once
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:        gin.New(),
		reports:       opts.Reports,
		notifications: opts.Notifications,
		cache:         opts.Cache,
		ready:         opts.Ready,
		logger:        logger,
		structured:    log.NewStructuredLogger(logger),
		debug:         opts.Debug,
		now:           opts.Now,
		limiter:       ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM}),
		detector:      security.NewDetector(logger),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	s.engine.Use(gin.Recovery(), corsMiddleware(opts.CORSOrigins))
	s.routes()

	var handler http.Handler = s.engine
	handler = s.limiter.Middleware(s.rateLimitKey, s.onRateLimit)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", HeaderUserID, trace.HeaderRequestID},
		ExposeHeaders: []string{"Content-Length", trace.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/readyz", s.handleReady)

	api := s.engine.Group("/api")
	api.GET("/reports/health", s.handleReportsHealth)

	reports := api.Group("/reports", s.requireUser)
	{
		reports.GET("/weekly", s.handleLegacyReport(period.Week))
		reports.GET("/monthly", s.handleLegacyReport(period.Month))
		reports.GET("/quarterly", s.handleLegacyReport(period.Quarter))
		reports.GET("/yearly", s.handleLegacyReport(period.Yearly))

		reports.GET("/weekly/data/:value", s.handleReportData(period.Week))
		reports.GET("/monthly/data/:value", s.handleReportData(period.Month))
		reports.GET("/quarterly/data/:value", s.handleReportData(period.Quarter))
		reports.GET("/yearly/data/:value", s.handleReportData(period.Yearly))

		reports.GET("/weekly/available-periods", s.handleAvailable(period.Week))
		reports.GET("/monthly/available-months", s.handleAvailable(period.Month))
		reports.GET("/quarters/available", s.handleAvailable(period.Quarter))
		reports.GET("/years/available", s.handleAvailable(period.Yearly))
	}

	notifications := api.Group("/notifications", s.requireUser)
	{
		notifications.GET("", s.handleListNotifications)
		notifications.GET("/unread-count", s.handleUnreadCount)
		notifications.PATCH("/mark-all-read", s.handleMarkAllRead)
		notifications.POST("/:id/read", s.handleMarkRead)
		notifications.PATCH("/:id/read", s.handleMarkRead)
		notifications.DELETE("/:id", s.handleDeleteNotification)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		s.respondError(c, errNotFound)
	})
}

func (s *Server) rateLimitKey(r *http.Request) string {
	if id := sanitizeInput(r.Header.Get(HeaderUserID)); id != "" {
		return "user:" + id
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	NewResponse().
		Fail(errRateLimited.StatusCode, errRateLimited.Message, errRateLimited.Code).
		WriteHTTP(w)
}

// requireUser rejects requests without a usable X-User-ID.
func (s *Server) requireUser(c *gin.Context) {
	id, ok := ParseUserID(c)
	if !ok {
		s.respondError(c, errUnauthorized)
		c.Abort()
		return
	}
	c.Set(userIDKey, id)
	c.Next()
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func (s *Server) respondError(c *gin.Context, err error) {
	ae := fromError(err)
	if ae.StatusCode >= 500 {
		s.structured.LogError(c.Request.Context(), "request failed", err, log.ComponentHTTP, c.FullPath(),
			log.NewFields().WithRequestID(trace.GetRequestID(c.Request.Context())))
	}
	NewResponse().Fail(ae.StatusCode, ae.Message, ae.detail(s.debug)).Write(c)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
