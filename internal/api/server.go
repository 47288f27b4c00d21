// Package api exposes the attendance services over HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/docstore"
	"campusattend/internal/httpmiddleware"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
)

// Uploader stores excuse supporting documents.
type Uploader interface {
	Upload(ctx context.Context, owner, filename string, r io.Reader) (docstore.Document, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds the HTTP-level settings.
type Config struct {
	SigningKey       string
	Issuer           string
	RateLimitPerMin  int
	AllowedOrigins   []string
	MaxDocumentBytes int64
}

// Deps are the services and backends the handlers call.
type Deps struct {
	Sessions  *attendance.Sessions
	Verifier  *attendance.Verifier
	Excuses   *attendance.Excuses
	Directory attendance.Directory
	// Documents is nil when document storage is not configured.
	Documents Uploader
	// Alerts receives flagged check-ins; nil disables publishing.
	Alerts    queue.Queue
	Limiter   *httpmiddleware.TokenBucket
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Health    map[string]HealthCheck
	Logger    *slog.Logger
}

// Server routes requests to the attendance services.
type Server struct {
	cfg    Config
	deps   Deps
	log    *slog.Logger
	engine *gin.Engine
}

const defaultMaxDocumentBytes = 10 << 20

// New builds the router.
func New(cfg Config, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(nil)
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg.MaxDocumentBytes = defaultMaxDocumentBytes
	}
	if d.Limiter == nil {
		d.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin, nil)
	}
	s := &Server{cfg: cfg, deps: d, log: d.Logger}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(s.recovered))
	r.Use(s.observe())
	r.Use(cors.New(corsConfig(s.cfg.AllowedOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1",
		auth.Authenticate(s.cfg.SigningKey, s.cfg.Issuer, s.deps.Directory, s.log),
		s.deps.Limiter.GinMiddleware(actorOrIP),
	)

	staff := auth.RequireRole(attendance.RoleInstructor, attendance.RoleAdmin)
	student := auth.RequireRole(attendance.RoleStudent)

	v1.POST("/sessions", auth.RequireRole(attendance.RoleInstructor), s.createSession)
	v1.GET("/sessions/:id", s.getSession)
	v1.POST("/sessions/:id/open", staff, s.openSession)
	v1.POST("/sessions/:id/rotate", staff, s.rotateToken)
	v1.POST("/sessions/:id/close", staff, s.closeSession)
	v1.GET("/sessions/:id/records", staff, s.sessionRecords)
	v1.GET("/sections/:id/sessions", s.sectionSessions)
	v1.GET("/instructors/me/sessions", auth.RequireRole(attendance.RoleInstructor), s.mySessions)

	v1.POST("/sessions/:id/checkins", student, s.checkIn)
	v1.GET("/me/attendance", student, s.myAttendance)

	v1.POST("/excuses", student, s.createExcuse)
	v1.POST("/excuses/documents", student, s.uploadDocument)
	v1.GET("/excuses", staff, s.listExcuses)
	v1.GET("/me/excuses", student, s.myExcuses)
	v1.POST("/excuses/:id/approve", staff, s.approveExcuse)
	v1.POST("/excuses/:id/reject", staff, s.rejectExcuse)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// actorOrIP limits authenticated callers per user.
func actorOrIP(c *gin.Context) string {
	if actor := auth.ActorFrom(c); actor.ID != "" {
		return "user:" + actor.ID
	}
	return "ip:" + c.ClientIP()
}

// observe logs each request and records its latency.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		s.deps.Metrics.HTTPDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
		if route == "/healthz" || route == "/metrics" {
			return
		}
		s.log.Info("request",
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *Server) recovered(c *gin.Context, rec any) {
	s.log.Error("panic serving request", "path", c.Request.URL.Path, "panic", rec)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error", "code": "internal"})
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	status := http.StatusOK
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			s.log.Warn("health check failed", "dependency", name, "error", err)
			checks[name] = false
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = true
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
