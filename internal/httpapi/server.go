// Package httpapi exposes the pipeline over HTTP for scraper workers,
// generation workers and the moderation UI.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/storymill/storymill/internal/db"
	"github.com/storymill/storymill/internal/dedup"
	"github.com/storymill/storymill/internal/gate"
	"github.com/storymill/storymill/internal/globaltime"
	"github.com/storymill/storymill/internal/ingest"
	"github.com/storymill/storymill/internal/pipeline"
	"github.com/storymill/storymill/internal/queue"
	"github.com/storymill/storymill/internal/suppress"
	payloadschema "github.com/storymill/storymill/schema"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	maxIngestBodyBytes = 4 * 1024 * 1024
)

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Services bundles the pipeline components the handlers dispatch to.
type Services struct {
	Ingest   *ingest.Service
	Pipeline *pipeline.Service
	Queue    *queue.Service
	Detector *dedup.Detector
	Ledger   *suppress.Ledger
}

type Server struct {
	pool     *db.Pool
	logger   zerolog.Logger
	services Services
	opts     Options
}

func NewServer(pool *db.Pool, logger zerolog.Logger, services Services, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:     pool,
		logger:   logger,
		services: services,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/stats", s.handleStats)
	api.GET("/articles", s.handleArticles)
	api.GET("/events", s.handleEvents)
	api.GET("/duplicates", s.handleDuplicates)
	api.GET("/suppressed", s.handleSuppressed)

	api.POST("/ingest", s.handleIngest)
	api.POST("/articles/:uuid/discard", s.handleDiscard)
	api.POST("/articles/:uuid/restore", s.handleRestore)
	api.POST("/duplicates/:uuid/resolve", s.handleResolveDuplicate)
	api.POST("/queue/claim", s.handleQueueClaim)
	api.POST("/queue/:uuid/complete", s.handleQueueComplete)
	api.POST("/queue/:uuid/fail", s.handleQueueFail)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("storymill api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("storymill api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

func (s *Server) handleHealth(c echo.Context) error {
	var ok int
	if err := s.pool.QueryRow(c.Request().Context(), `SELECT 1`).Scan(&ok); err != nil {
		return internalError(c, "database unreachable")
	}
	return success(c, map[string]any{
		"service": "storymill",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.pool.GetPipelineStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("stats query failed")
		return internalError(c, "Internal server error")
	}
	return success(c, stats)
}

func (s *Server) handleArticles(c echo.Context) error {
	opts := db.ArticleListOptions{
		TopicSlug: strings.TrimSpace(c.QueryParam("topic")),
		Status:    strings.TrimSpace(c.QueryParam("status")),
		Limit:     parseLimit(c.QueryParam("limit")),
	}

	if raw := strings.TrimSpace(c.QueryParam("from")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return failValidation(c, map[string]string{"from": "must be RFC3339"})
		}
		opts.From = parsed.UTC()
	}
	if raw := strings.TrimSpace(c.QueryParam("to")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return failValidation(c, map[string]string{"to": "must be RFC3339"})
		}
		opts.To = parsed.UTC()
	}

	items, err := s.pool.ListArticles(c.Request().Context(), opts)
	if err != nil {
		s.logger.Error().Err(err).Msg("article list query failed")
		return internalError(c, "Internal server error")
	}
	return success(c, map[string]any{"articles": items, "count": len(items)})
}

func (s *Server) handleEvents(c echo.Context) error {
	events, err := s.pool.ListPipelineEvents(c.Request().Context(), parseLimit(c.QueryParam("limit")))
	if err != nil {
		s.logger.Error().Err(err).Msg("event list query failed")
		return internalError(c, "Internal server error")
	}
	return success(c, map[string]any{"events": events, "count": len(events)})
}

func (s *Server) handleDuplicates(c echo.Context) error {
	items, err := s.services.Detector.ListPending(c.Request().Context(), parseLimit(c.QueryParam("limit")))
	if err != nil {
		s.logger.Error().Err(err).Msg("duplicate list query failed")
		return internalError(c, "Internal server error")
	}
	return success(c, map[string]any{"duplicates": items, "count": len(items)})
}

func (s *Server) handleSuppressed(c echo.Context) error {
	topicID, err := strconv.Atoi(strings.TrimSpace(c.QueryParam("topic_id")))
	if err != nil || topicID <= 0 {
		return failValidation(c, map[string]string{"topic_id": "must be a positive integer"})
	}
	entries, err := s.services.Ledger.List(c.Request().Context(), topicID, parseLimit(c.QueryParam("limit")))
	if err != nil {
		s.logger.Error().Err(err).Msg("suppression list query failed")
		return internalError(c, "Internal server error")
	}
	return success(c, map[string]any{"suppressed": entries, "count": len(entries)})
}

func (s *Server) handleIngest(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxIngestBodyBytes))
	if err != nil {
		return fail(c, http.StatusBadRequest, "failed to read request body", nil)
	}

	payload, err := payloadschema.ValidateArticlePayload(json.RawMessage(body))
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	result, err := s.services.Ingest.IngestOne(c.Request().Context(), payload)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "topic not found")
		}
		s.logger.Error().Err(err).Str("url", payload.URL).Msg("ingest failed")
		return internalError(c, "Internal server error")
	}

	code := http.StatusCreated
	if result.AlreadyIngested {
		code = http.StatusOK
	}
	return successWithStatus(c, code, result)
}

type moderationRequest struct {
	Reason      string `json:"reason"`
	Moderator   string `json:"moderator"`
	ClearLedger bool   `json:"clear_ledger"`
}

func (s *Server) handleDiscard(c echo.Context) error {
	uuid := strings.TrimSpace(c.Param("uuid"))
	var req moderationRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", nil)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return failValidation(c, map[string]string{"reason": "must not be empty"})
	}

	transition := pipeline.TransitionRequest{
		NewStatus: gate.StatusDiscarded,
		Reason:    req.Reason,
	}
	if actor := strings.TrimSpace(req.Moderator); actor != "" {
		transition.Actor = &actor
	}

	result, err := s.services.Pipeline.SetStatus(c.Request().Context(), uuid, transition)
	if err != nil {
		if isNotFound(err) {
			return failNotFound(c, err.Error())
		}
		s.logger.Error().Err(err).Str("topic_article_uuid", uuid).Msg("discard failed")
		return internalError(c, "Internal server error")
	}
	return success(c, result)
}

func (s *Server) handleRestore(c echo.Context) error {
	uuid := strings.TrimSpace(c.Param("uuid"))
	var req moderationRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", nil)
	}

	// Restoring past the suppression veto requires the ledger entry to be
	// removed first, and that is an explicit moderator choice.
	if req.ClearLedger {
		if err := s.clearLedgerEntry(c.Request().Context(), uuid); err != nil {
			if db.IsNoRows(err) {
				return failNotFound(c, "article not found")
			}
			s.logger.Error().Err(err).Str("topic_article_uuid", uuid).Msg("ledger clear failed")
			return internalError(c, "Internal server error")
		}
	}

	result, err := s.services.Pipeline.SetStatus(c.Request().Context(), uuid, pipeline.TransitionRequest{
		NewStatus: gate.StatusNew,
		Reason:    req.Reason,
	})
	if err != nil {
		if isNotFound(err) {
			return failNotFound(c, err.Error())
		}
		s.logger.Error().Err(err).Str("topic_article_uuid", uuid).Msg("restore failed")
		return internalError(c, "Internal server error")
	}

	if result.Vetoed {
		return fail(c, http.StatusConflict, "article is suppressed; pass clear_ledger to restore", result)
	}
	return success(c, result)
}

func (s *Server) clearLedgerEntry(ctx context.Context, topicArticleUUID string) error {
	var (
		topicID       int
		normalizedURL string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT ta.topic_id, sac.normalized_url
		FROM mill.topic_articles ta
		JOIN mill.shared_article_content sac ON sac.content_id = ta.content_id
		WHERE ta.topic_article_uuid = $1`,
		topicArticleUUID,
	).Scan(&topicID, &normalizedURL)
	if err != nil {
		return err
	}
	_, err = s.services.Ledger.Remove(ctx, topicID, normalizedURL)
	return err
}

func (s *Server) handleResolveDuplicate(c echo.Context) error {
	uuid := strings.TrimSpace(c.Param("uuid"))
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", nil)
	}

	resolution := strings.ToLower(strings.TrimSpace(req.Resolution))
	if resolution != dedup.StatusMerged && resolution != dedup.StatusIgnored {
		return failValidation(c, map[string]string{"resolution": "must be merged or ignored"})
	}

	if err := s.services.Detector.Resolve(c.Request().Context(), uuid, resolution); err != nil {
		if isNotFound(err) {
			return failNotFound(c, "pending duplicate finding not found")
		}
		s.logger.Error().Err(err).Str("article_duplicate_uuid", uuid).Msg("duplicate resolve failed")
		return internalError(c, "Internal server error")
	}
	return success(c, map[string]any{"resolved": true})
}

func (s *Server) handleQueueClaim(c echo.Context) error {
	item, err := s.services.Queue.Claim(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("queue claim failed")
		return internalError(c, "Internal server error")
	}
	if item == nil {
		return success(c, map[string]any{"item": nil})
	}
	return success(c, map[string]any{"item": item})
}

func (s *Server) handleQueueComplete(c echo.Context) error {
	uuid := strings.TrimSpace(c.Param("uuid"))
	if err := s.services.Queue.Complete(c.Request().Context(), uuid); err != nil {
		if isNotFound(err) {
			return failNotFound(c, "processing queue item not found")
		}
		s.logger.Error().Err(err).Str("queue_item_uuid", uuid).Msg("queue complete failed")
		return internalError(c, "Internal server error")
	}
	return success(c, map[string]any{"completed": true})
}

func (s *Server) handleQueueFail(c echo.Context) error {
	uuid := strings.TrimSpace(c.Param("uuid"))
	var req struct {
		ErrorMessage string `json:"error_message"`
	}
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body", nil)
	}

	status, err := s.services.Queue.Fail(c.Request().Context(), uuid, req.ErrorMessage)
	if err != nil {
		if isNotFound(err) {
			return failNotFound(c, "processing queue item not found")
		}
		s.logger.Error().Err(err).Str("queue_item_uuid", uuid).Msg("queue fail failed")
		return internalError(c, "Internal server error")
	}
	return success(c, map[string]any{"status": status})
}

// isNotFound matches both the sentinel no-rows error the storage layer
// surfaces for unknown or already-terminal rows and the explicit
// not-found errors the pipeline service produces.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return db.IsNoRows(err) || strings.Contains(err.Error(), "not found")
}

func parseLimit(raw string) int {
	limit, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
