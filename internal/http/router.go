package http

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"fetchd/internal/config"
	"fetchd/internal/engine"
	"fetchd/internal/jobs"
)

type Server struct {
	app    *fiber.App
	config *config.Config
	logger *slog.Logger
}

// NewServer wires the download API. redis may be nil.
func NewServer(cfg *config.Config, mgr *jobs.Manager, sw *jobs.Sweeper, eng engine.Engine, redis Pinger, logger *slog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins(cfg.Server.CORS.AllowOrigins),
	}))

	// Inject config, manager, sweeper and engine into context for handlers
	app.Use(localsMiddleware(cfg, mgr, sw, eng, redis))

	// Request logging + metrics middleware
	app.Use(requestLogMiddleware(logger))

	registerRoutes(app)

	return &Server{
		app:    app,
		config: cfg,
		logger: logger,
	}
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	if s.logger != nil {
		s.logger.Info("http_listen", "addr", addr)
	}
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func registerRoutes(r fiber.Router) {
	r.Get("/health", healthHandler)
	r.Get("/metrics", metricsHandler)

	r.Post("/download", submitDownloadHandler)
	r.Get("/status/:id", downloadStatusHandler)
	r.Get("/download/:id", downloadArtifactHandler)
	r.Get("/formats/:video_id", formatsHandler)
	r.Get("/jobs", listJobsHandler)
	r.Post("/cleanup", cleanupHandler)
}

func allowOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ",")
}
