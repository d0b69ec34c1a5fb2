package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"BreakoutScreener/internal/calculator"
	"BreakoutScreener/internal/logging"
	"BreakoutScreener/internal/metrics"
	"BreakoutScreener/internal/session"
	"BreakoutScreener/internal/universe"
)

type Config struct {
	Sessions  *session.Manager
	Universes universe.Provider
	Metrics   *metrics.Metrics
	// Indicators are the chart settings used when a request does not override them.
	Indicators calculator.Settings
	// DefaultLookback is the date range used when a request omits start.
	DefaultLookback time.Duration
	Logger          *logrus.Entry
}

// Server exposes sessions, scans and chart data over HTTP.
type Server struct {
	cfg      Config
	log      *logrus.Entry
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewServer(cfg Config) *Server {
	if cfg.DefaultLookback <= 0 {
		cfg.DefaultLookback = 365 * 24 * time.Hour
	}
	return &Server{
		cfg: cfg,
		log: logging.OrDiscard(cfg.Logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	if s.cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.cfg.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/universes", s.listUniverses)
	v1.POST("/sessions", s.createSession)

	sess := v1.Group("/sessions/:id", s.loadSession)
	sess.DELETE("", s.closeSession)
	sess.POST("/scans", s.startScan)
	sess.GET("/scans/current", s.currentScan)
	sess.DELETE("/scans/current", s.resetScan)
	sess.GET("/progress", s.progressStream)
	sess.GET("/symbols/:symbol/indicators", s.indicators)
	sess.GET("/symbols/:symbol/export.csv", s.exportCSV)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
			"status": c.Writer.Status(),
			"took":   time.Since(began).Round(time.Microsecond),
		}).Debug("request")
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.cfg.Sessions.Len()})
}

func (s *Server) listUniverses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"universes": s.cfg.Universes.Universes()})
}
