// Package server exposes the catalog read contract over HTTP.
package server

import (
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/franz/suno-catalog/internal/store"
	"github.com/franz/suno-catalog/internal/util"
)

const (
	// DefaultLimit is the page size when the request names none
	DefaultLimit = 20
	// MaxLimit caps a single page
	MaxLimit = 500

	// NoResults is the message returned with an empty page
	NoResults = "no results"
)

// Server serves song searches, summary tables and cached media
type Server struct {
	app       *fiber.App
	store     *store.Store
	mediaRoot string
	metrics   *metrics
}

// Config holds server configuration
type Config struct {
	Store     *store.Store
	MediaRoot string // served under /media when set
}

// New creates a server with its routes registered
func New(cfg *Config) *Server {
	s := &Server{
		store:     cfg.Store,
		mediaRoot: cfg.MediaRoot,
		metrics:   newMetrics(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "songcat",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s.app.Use(recover.New())
	s.app.Use(requestLog)
	s.app.Use(s.metrics.middleware)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/healthz", s.health)
	s.app.Get("/metrics", s.metrics.handler())

	api := s.app.Group("/api")
	api.Get("/songs", s.searchSongs)
	api.Get("/songs/:id", s.getSong)
	api.Get("/languages", s.languages)
	api.Get("/models", s.models)

	if s.mediaRoot != "" {
		s.app.Static("/media", s.mediaRoot, fiber.Static{
			ByteRange: true,
			MaxAge:    3600,
		})
	}
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown
func (s *Server) Listen(addr string) error {
	util.InfoLog("Listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the server, waiting for in-flight requests
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(10 * time.Second)
}

func requestLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = statusCode(err)
	}
	util.DebugLog("%s %s -> %d (%s)", c.Method(), c.OriginalURL(), status, time.Since(start).Round(time.Microsecond))
	return err
}

// statusCode maps a handler error to its response status
func statusCode(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, util.ErrSchemaOutdated):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := statusCode(err)

	if code >= fiber.StatusInternalServerError {
		util.ErrorLog("%s %s: %v", c.Method(), c.OriginalURL(), err)
	}

	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// mediaURL returns the local cache URL of a song's media file
func mediaURL(id, ext string) string {
	return "/media/" + url.PathEscape(id+"."+ext)
}
