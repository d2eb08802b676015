// Package server exposes the read-only campaign dashboard API.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"promo-code-bot/internal/config"
	"promo-code-bot/internal/repository"
	"promo-code-bot/internal/service"
)

// Server serves campaign statistics over HTTP. Everything here is
// read-only; all mutations go through the bot.
type Server struct {
	srv      *http.Server
	overview *service.OverviewService
	catalog  *service.CatalogService
	codes    *repository.CodeRepository
	winners  *repository.WinnerRepository
	usage    *repository.UsageLogRepository
}

// New creates the dashboard server and wires its routes.
func New(
	cfg *config.ServerConfig,
	overview *service.OverviewService,
	catalog *service.CatalogService,
	codes *repository.CodeRepository,
	winners *repository.WinnerRepository,
	usage *repository.UsageLogRepository,
) *Server {
	s := &Server{
		overview: overview,
		catalog:  catalog,
		codes:    codes,
		winners:  winners,
		usage:    usage,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/healthz", s.handleHealth)

	api := engine.Group("/api")
	api.GET("/overview", s.handleOverview)
	api.GET("/codes", s.handleCodes)
	api.GET("/winner-codes", s.handleWinnerCodes)
	api.GET("/prizes", s.handlePrizes)
	api.GET("/usage-log", s.handleUsageLog)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Starting dashboard server")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleOverview(c *gin.Context) {
	ov, err := s.overview.Summary(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to build overview")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (s *Server) handleCodes(c *gin.Context) {
	opts := listOptions(c)
	items, total, err := s.codes.List(c.Request.Context(), opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list codes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, pageResponse(items, opts, total))
}

func (s *Server) handleWinnerCodes(c *gin.Context) {
	opts := listOptions(c)
	items, total, err := s.winners.List(c.Request.Context(), opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list winner codes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, pageResponse(items, opts, total))
}

func (s *Server) handlePrizes(c *gin.Context) {
	prizes, err := s.catalog.List(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list prizes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": prizes})
}

func (s *Server) handleUsageLog(c *gin.Context) {
	opts := listOptions(c)
	items, total, err := s.usage.List(c.Request.Context(), opts)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list usage log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, pageResponse(items, opts, total))
}

// listOptions reads the shared pagination and filter query params.
func listOptions(c *gin.Context) repository.ListOptions {
	opts := repository.ListOptions{
		Search: c.Query("search"),
		Month:  c.Query("month"),
	}
	opts.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	opts.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 || opts.Limit > 200 {
		opts.Limit = 50
	}

	if used := c.Query("used"); used != "" {
		v := used == "true" || used == "1"
		opts.Claimed = &v
	}
	return opts
}

func pageResponse(data any, opts repository.ListOptions, total int64) gin.H {
	return gin.H{
		"data": data,
		"pagination": gin.H{
			"page":  opts.Page,
			"limit": opts.Limit,
			"total": total,
		},
	}
}
