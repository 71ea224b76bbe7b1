package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/rs/zerolog"

	"github.com/CristiGvl/picoDisks/internal/devsvc"
	"github.com/CristiGvl/picoDisks/internal/metrics"
	"github.com/CristiGvl/picoDisks/internal/platform"
	"github.com/CristiGvl/picoDisks/internal/topology"
)

// Topology is the live drive list the server reads and mutates through
type Topology interface {
	Drives(ctx context.Context) ([]*topology.Drive, error)
	Refresh(ctx context.Context) error
	Mutate(ctx context.Context, name string, fn func(ctx context.Context, drives []*topology.Drive) error) error
}

// Server represents the API server
type Server struct {
	app      *fiber.App
	topology Topology
	operator devsvc.Operator
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithMetrics serves m on /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger for failed requests
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer creates a new API server. operator may be nil, in which case
// every mutation reports not connected.
func NewServer(topo Topology, operator devsvc.Operator, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "picoDisks",
		AppName:               "picoDisks v" + metrics.Version,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "*",
		MaxAge:       86400, // 24 hours
	}))

	server := &Server{
		app:      app,
		topology: topo,
		operator: operator,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.app.Group("/api")

	// Topology
	api.Get("/drives", s.getDrives)
	api.Get("/drives/segments", s.getSegments)
	api.Post("/drives/refresh", s.refresh)
	api.Get("/partition-types", s.getPartitionTypes)

	// Drive operations
	api.Post("/drives/eject", s.driveAction("eject", ejectDrive))
	api.Post("/drives/power-off", s.driveAction("power-off", powerOffDrive))
	api.Post("/drives/partitions", s.createPartition)

	// Partition operations
	api.Post("/partitions/mount", s.partitionAction("mount", mountPartition))
	api.Post("/partitions/unmount", s.partitionAction("unmount", unmountPartition))
	api.Post("/partitions/delete", s.partitionAction("delete", deletePartition))
	api.Post("/partitions/format", s.partitionAction("format", formatPartition))
	api.Post("/partitions/edit", s.partitionAction("edit", editPartition))
	api.Post("/partitions/label", s.partitionAction("label", labelPartition))
	api.Post("/partitions/resize", s.partitionAction("resize", resizePartition))
	api.Post("/partitions/check", s.partitionAction("check", checkPartition))
	api.Post("/partitions/repair", s.partitionAction("repair", repairPartition))
	api.Post("/partitions/take-ownership", s.partitionAction("take-ownership", takeOwnership))
	api.Post("/partitions/passphrase", s.partitionAction("passphrase", changePassphrase))

	// Health check
	api.Get("/health", s.healthCheck)

	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}
}

// App exposes the fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the API server
func (s *Server) Start(address string) error {
	return s.app.Listen(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Health check endpoint
func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"platform":  platform.GetOS(),
		"backend":   platform.Describe(platform.GetOS()),
		"connected": s.operator != nil,
		"timestamp": time.Now().Unix(),
	})
}
