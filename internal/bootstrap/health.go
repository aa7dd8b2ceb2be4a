package bootstrap

import (
	libCommons "github.com/LerianStudio/lib-commons/v2/commons"
	libLog "github.com/LerianStudio/lib-commons/v2/commons/log"
	"github.com/gofiber/fiber/v2"
)

// Server exposes the liveness/readiness endpoints a deployment's
// orchestrator polls. It never blocks message flow — workers keep
// running independent of whether anything is scraping this endpoint.
type Server struct {
	app           *fiber.App
	serverAddress string
	logger        libLog.Logger
	ready         func() bool
}

// NewServer builds the health server. ready reports whether the
// database connection (and therefore ProcessWorkBatch) is usable; nil
// means always ready.
func NewServer(cfg *Config, logger libLog.Logger, ready func() bool) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		if !ready() {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}

		return c.SendStatus(fiber.StatusOK)
	})

	serverAddress := cfg.ServerAddress
	if serverAddress == "" {
		serverAddress = ":3003"
	}

	return &Server{app: app, serverAddress: serverAddress, logger: logger, ready: ready}
}

// Run implements libCommons' Runnable so the health server can be
// registered alongside the worker loops in the same Launcher.
func (s *Server) Run(l *libCommons.Launcher) error {
	return s.app.Listen(s.serverAddress)
}
