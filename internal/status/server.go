package status

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/tensorctl/internal/core"
	"github.com/danmuck/tensorctl/internal/observability"
	"github.com/danmuck/tensorctl/internal/workspace"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Server exposes the runtime context over HTTP for operators and scrapers.
// It reads context state only; mutation stays with the embedding process.
type Server struct {
	Name string
	Addr string

	ctx     *core.Context
	router  *gin.Engine
	started time.Time
}

func New(name, addr string, corsOrigins []string, ctx *core.Context) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		Name:    name,
		Addr:    addr,
		ctx:     ctx,
		router:  r,
		started: time.Now(),
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"node":    s.Name,
			"uptime":  time.Since(s.started).String(),
			"version": core.RuntimeVersion,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":   true,
			"node":    s.Name,
			"uptime":  time.Since(s.started).String(),
			"version": core.RuntimeVersion,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/runtime", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"mode":              s.ctx.Mode().String(),
			"root_device":       s.ctx.RootDevice(),
			"devices":           s.ctx.DeviceSet(),
			"solver_count":      s.ctx.SolverCount(),
			"root_solver":       s.ctx.RootSolver(),
			"epoch":             s.ctx.CurrentEpoch(),
			"threads":           s.ctx.ThreadCount(),
			"restored_iter":     s.ctx.RestoredIter(),
			"reinitializations": s.ctx.Reinitializations(),
			"time_from_start":   s.ctx.TimeFromStart().String(),
		})
	})

	s.router.GET("/properties", func(c *gin.Context) {
		props := s.ctx.Properties()
		c.JSON(http.StatusOK, gin.H{
			"version":        props.Version,
			"driver_version": props.DriverVersion,
			"blas_version":   props.BlasVersion,
			"dnn_version":    props.DnnVersion,
			"start_time":     props.StartTime,
			"capabilities":   props.Capabilities,
		})
	})

	s.router.GET("/devices", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"count":                s.ctx.DeviceCount(),
			"active":               s.ctx.DeviceSet(),
			"min_available_memory": s.ctx.MinAvailableDeviceMemory(),
		})
	})

	s.router.GET("/devices/:ordinal", func(c *gin.Context) {
		ordinal, err := strconv.Atoi(c.Param("ordinal"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ordinal must be an integer"})
			return
		}
		report, err := s.ctx.DeviceQuery(ordinal)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ordinal": ordinal, "report": report})
	})

	s.router.GET("/workspaces", func(c *gin.Context) {
		out := make(map[string]map[string]uint64)
		for _, ordinal := range s.ctx.DeviceSet() {
			regions := make(map[string]uint64)
			for id := workspace.ID(0); id < workspace.Total; id++ {
				regions[id.String()] = s.ctx.WorkspaceSize(ordinal, id)
			}
			out[strconv.Itoa(ordinal)] = regions
		}
		c.JSON(http.StatusOK, gin.H{"workspaces": out})
	})
}

func (s *Server) Serve() error {
	if s.ctx == nil {
		return errors.New("status: server has no runtime context")
	}
	s.RegisterRoutes()
	log.Info().
		Str("node", s.Name).
		Str("addr", s.Addr).
		Msg("status server listening")
	return s.router.Run(s.Addr)
}

func normalizeOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		out = append(out, o)
	}
	if len(out) == 0 {
		out = append(out, "http://localhost:3000")
	}
	return out
}
