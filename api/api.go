package api

import (
	"errors"
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/agent"
)

// Server is the API server fronting the docuchat agent.
type Server struct {
	config Config
	agent  *agent.Agent
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The agent is injected to allow sharing
// with other components. toolHandler, when non-nil, is mounted at /mcp so
// the document tools are served from the same listener.
func NewServer(config Config, ag *agent.Agent, toolHandler http.Handler, logger *zap.Logger) (*Server, error) {
	if ag == nil {
		return nil, errors.New("agent is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		agent:  ag,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/api/chat", s.handleChat)
	app.Get("/api/history/:user", s.handleHistory)

	if toolHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(toolHandler))
		app.All("/mcp/*", adaptor.HTTPHandler(toolHandler))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
