// Package admin serves the operator HTTP surface: alerts, metrics, plugins
// and cache state as JSON, plus Prometheus scraping on /metrics.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keshon/chatkernel/internal/alert"
	"github.com/keshon/chatkernel/internal/monitor"
	"github.com/keshon/chatkernel/internal/plugin"
	"github.com/keshon/chatkernel/internal/storage"
	"github.com/keshon/chatkernel/pkg/cache"
	"github.com/keshon/chatkernel/pkg/cmd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Deps are the components the admin surface reads. Storage and Gatherer
// may be nil.
type Deps struct {
	Alerts   *alert.Service
	Monitor  *monitor.Monitor
	Plugins  *plugin.Manager
	Cache    *cache.Cache
	Storage  *storage.Storage
	Gatherer prometheus.Gatherer
	Log      zerolog.Logger
}

type Server struct {
	addr string
	d    Deps
	eng  *gin.Engine
}

// New builds the router. Call Run to listen.
func New(addr string, d Deps) *Server {
	s := &Server{addr: addr, d: d, eng: gin.New()}
	s.eng.Use(gin.Recovery(), s.requestLog())
	s.routes()
	return s
}

// Handler exposes the routes, mostly for tests.
func (s *Server) Handler() http.Handler { return s.eng }

func (s *Server) routes() {
	r := s.eng
	r.GET("/status", s.status)

	r.GET("/alerts", s.listAlerts)
	r.GET("/alerts/archive", s.archivedAlerts)
	r.POST("/alerts/:id/ack", s.ackAlert)
	r.DELETE("/alerts", s.clearAlerts)

	r.GET("/metrics/current", s.currentMetrics)
	r.GET("/metrics/history", s.metricsHistory)
	if s.d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.d.Gatherer, promhttp.HandlerOpts{})))
	}

	r.GET("/plugins", s.listPlugins)
	r.GET("/plugins/:name", s.getPlugin)
	r.POST("/plugins/:name/load", s.loadPlugin)
	r.POST("/plugins/:name/unload", s.unloadPlugin)
	r.POST("/plugins/:name/reload", s.reloadPlugin)

	r.GET("/cache/stats", s.cacheStats)
}

// Run listens until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.eng, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		s.d.Log.Info().Str("addr", s.addr).Msg("admin server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
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
		s.d.Log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("admin request")
	}
}

func limitParam(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
		return 0, false
	}
	return n, true
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"active_plugins": s.d.Plugins.Active(),
		"unacknowledged": s.d.Alerts.Unacknowledged(),
		"alerts_running": s.d.Alerts.Running(),
		"monitoring":     s.d.Monitor.Running(),
	})
}

func (s *Server) listAlerts(c *gin.Context) {
	limit, ok := limitParam(c, 50)
	if !ok {
		return
	}
	alerts := s.d.Alerts.Alerts(limit)
	if c.Query("unacknowledged") == "true" {
		open := alerts[:0:0]
		for _, a := range alerts {
			if !a.Acknowledged {
				open = append(open, a)
			}
		}
		alerts = open
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) archivedAlerts(c *gin.Context) {
	if s.d.Storage == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no alert archive configured"})
		return
	}
	limit, ok := limitParam(c, 50)
	if !ok {
		return
	}
	alerts, err := s.d.Storage.ArchivedAlerts(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) ackAlert(c *gin.Context) {
	err := s.d.Alerts.Acknowledge(c.Param("id"))
	if errors.Is(err, alert.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) clearAlerts(c *gin.Context) {
	s.d.Alerts.Clear()
	c.Status(http.StatusNoContent)
}

func (s *Server) currentMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.d.Monitor.Metrics())
}

func (s *Server) metricsHistory(c *gin.Context) {
	limit, ok := limitParam(c, 0)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.d.Monitor.History(limit))
}

func (s *Server) listPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, s.d.Plugins.List())
}

func (s *Server) getPlugin(c *gin.Context) {
	d, ok := s.d.Plugins.Get(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": plugin.ErrNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) loadPlugin(c *gin.Context) {
	d, err := s.d.Plugins.LoadByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		pluginError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) unloadPlugin(c *gin.Context) {
	if err := s.d.Plugins.Unload(c.Request.Context(), c.Param("name")); err != nil {
		pluginError(c, err)
		return
	}
	s.getPlugin(c)
}

func (s *Server) reloadPlugin(c *gin.Context) {
	if err := s.d.Plugins.Reload(c.Request.Context(), c.Param("name")); err != nil {
		pluginError(c, err)
		return
	}
	s.getPlugin(c)
}

func pluginError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, plugin.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, plugin.ErrAlreadyLoaded),
		errors.Is(err, plugin.ErrNotActive),
		errors.Is(err, plugin.ErrHasDependents),
		errors.Is(err, cmd.ErrDuplicateName):
		code = http.StatusConflict
	case errors.Is(err, plugin.ErrUnmetDeps),
		errors.Is(err, plugin.ErrLoad):
		code = http.StatusUnprocessableEntity
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func (s *Server) cacheStats(c *gin.Context) {
	resp := gin.H{"cache": s.d.Cache.Stats()}
	if s.d.Storage != nil {
		resp["datastore"] = s.d.Storage.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
