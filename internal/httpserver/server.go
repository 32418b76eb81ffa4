// Package httpserver exposes the registry and its catalog store as a
// read-only JSON API.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/photon/internal/duckdb"
	"github.com/tinytelemetry/photon/internal/model"
	"github.com/tinytelemetry/photon/internal/registry"
	"github.com/tinytelemetry/photon/internal/render"
	"github.com/tinytelemetry/photon/internal/settings"
	"go.uber.org/zap"
)

// RegistrySource returns the registry to serve. It is consulted on every
// request, so a reload is visible immediately.
type RegistrySource interface {
	Current() *registry.Registry
}

// CatalogStore is the narrow store contract required by the HTTP API.
type CatalogStore interface {
	model.CatalogQuerier
	Dependents(kind, name string) ([]duckdb.Dependent, error)
	Info() (duckdb.CatalogInfo, bool, error)
}

// Config holds optional server settings.
type Config struct {
	Logger   *zap.Logger
	Settings *settings.Settings
}

// Server provides the HTTP API.
type Server struct {
	addr      string
	registry  RegistrySource
	store     CatalogStore
	settings  *settings.Settings
	logger    *zap.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, reg RegistrySource, store CatalogStore, conf ...Config) *Server {
	if addr == "" {
		addr = fmt.Sprintf("127.0.0.1:%d", model.DefaultAPIPort)
	}
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		registry:  reg,
		store:     store,
		settings:  cfg.Settings,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.logRequests)

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/settings", s.handleSettings)
	r.GET("/api/fields", s.handleFields)
	r.GET("/api/fields/:name", s.handleField)
	r.GET("/api/metrics", s.handleMetrics)
	r.GET("/api/metrics/:name", s.handleMetric)
	r.GET("/api/metrics/:name/closure", s.handleClosure)
	r.POST("/api/metrics/:name/render", s.handleRender)
	r.GET("/api/tables", s.handleTables)
	r.GET("/api/tables/:name", s.handleTable)
	r.GET("/api/tables/:name/closure", s.handleTableClosure)
	r.GET("/api/schema", s.handleSchema)
	r.POST("/api/query", s.handleQuery)
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.router(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()
	s.logger.Info("http api listening", zap.String("addr", listener.Addr().String()))

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http api stopped", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("took", time.Since(start)))
}

// lookupError writes 404 for unknown names and 500 for anything else.
func lookupError(c *gin.Context, err error) {
	var unknownField *registry.UnknownFieldError
	var unknownMetric *registry.UnknownMetricError
	var unknownTable *registry.UnknownTableError
	if errors.As(err, &unknownField) || errors.As(err, &unknownMetric) || errors.As(err, &unknownTable) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	reg := s.registry.Current()

	resp := gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).String(),
		"fields":      len(reg.Fields()),
		"metrics":     len(reg.Metrics()),
		"tables":      len(reg.Tables()),
		"fingerprint": reg.Fingerprint(),
	}
	if s.store != nil {
		info, ok, err := s.store.Info()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read catalog info"})
			return
		}
		resp["catalog_in_sync"] = ok && info.Fingerprint == reg.Fingerprint()
		if ok {
			resp["catalog_loaded_at"] = info.LoadedAt
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSettings(c *gin.Context) {
	if s.settings == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "settings not loaded"})
		return
	}
	c.JSON(http.StatusOK, s.settings)
}

func (s *Server) handleFields(c *gin.Context) {
	reg := s.registry.Current()
	names := reg.Fields()

	if raw := c.Query("source"); raw != "" {
		src, ok := model.ParseSource(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown source %q", raw)})
			return
		}
		filtered := names[:0]
		for _, name := range names {
			entry, _ := reg.ResolveField(name)
			if len(entry.List(src)) > 0 {
				filtered = append(filtered, name)
			}
		}
		names = filtered
	}

	c.JSON(http.StatusOK, gin.H{"fields": names, "count": len(names)})
}

func (s *Server) handleField(c *gin.Context) {
	reg := s.registry.Current()
	name := c.Param("name")

	entry, err := reg.ResolveField(name)
	if err != nil {
		lookupError(c, err)
		return
	}
	candidates, _ := reg.Candidates(name)

	resp := gin.H{"field": entry, "candidates": candidates}
	if s.store != nil {
		usedBy, err := s.store.Dependents(duckdb.DependencyField, name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read field dependents"})
			return
		}
		resp["used_by"] = usedBy
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMetrics(c *gin.Context) {
	reg := s.registry.Current()
	names := reg.Metrics()

	if raw := c.Query("type"); raw != "" {
		kind := model.MetricKind(raw)
		if !kind.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown metric type %q", raw)})
			return
		}
		filtered := names[:0]
		for _, name := range names {
			def, _ := reg.ResolveMetric(name)
			if def.Kind == kind {
				filtered = append(filtered, name)
			}
		}
		names = filtered
	}

	c.JSON(http.StatusOK, gin.H{"metrics": names, "count": len(names)})
}

func (s *Server) handleMetric(c *gin.Context) {
	def, err := s.registry.Current().ResolveMetric(c.Param("name"))
	if err != nil {
		lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) handleClosure(c *gin.Context) {
	closure, err := s.registry.Current().DependencyClosure(c.Param("name"))
	if err != nil {
		lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metric":  closure.Metric,
		"metrics": closure.Metrics,
		"fields":  closure.Fields,
		"names":   closure.Names(),
	})
}

func (s *Server) handleRender(c *gin.Context) {
	var req struct {
		Row map[string]any `json:"row" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing row field"})
		return
	}

	def, err := s.registry.Current().ResolveMetric(c.Param("name"))
	if err != nil {
		lookupError(c, err)
		return
	}

	value, err := render.Render(def, render.Row(req.Row))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metric":    def.Name,
		"nice_name": def.NiceName,
		"value":     value,
	})
}

func (s *Server) handleTables(c *gin.Context) {
	reg := s.registry.Current()
	names := reg.Tables()

	// ?metric= keeps the tables that show the metric as a column.
	if metric := c.Query("metric"); metric != "" {
		if _, err := reg.ResolveMetric(metric); err != nil {
			lookupError(c, err)
			return
		}
		filtered := names[:0]
		for _, name := range names {
			t, _ := reg.ResolveTable(name)
			if slices.Contains(t.Metrics(), metric) {
				filtered = append(filtered, name)
			}
		}
		names = filtered
	}

	c.JSON(http.StatusOK, gin.H{"tables": names, "count": len(names)})
}

func (s *Server) handleTable(c *gin.Context) {
	t, err := s.registry.Current().ResolveTable(c.Param("name"))
	if err != nil {
		lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) handleTableClosure(c *gin.Context) {
	closure, err := s.registry.Current().TableClosure(c.Param("name"))
	if err != nil {
		lookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, closure)
}

func (s *Server) handleSchema(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog store disabled"})
		return
	}

	tables, err := s.store.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range tables {
		tableName := fmt.Sprintf("%v", row["table_name"])
		schema[tableName] = append(schema[tableName], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.store.GetSchemaDescription(),
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog store disabled"})
		return
	}

	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	columns := make([]string, 0)
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
		sort.Strings(columns)
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}
