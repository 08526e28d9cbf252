// Package server exposes the latest cooling state over HTTP.
package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/chassisctl/internal/cooling"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	app     *fiber.App
	log     logger.Logger
	started time.Time

	mu       sync.RWMutex
	zones    map[string]cooling.ZoneState
	entities Entities
	updated  time.Time
}

var _ cooling.Observer = (*Server)(nil)

func New(log logger.Logger) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
		AppName:               "chassisctl",
		DisableStartupMessage: true,
	})

	s := &Server{
		app:     app,
		log:     log,
		started: time.Now(),
		zones:   make(map[string]cooling.ZoneState),
		entities: Entities{
			Fans:     []FanView{},
			Thermals: []ThermalView{},
			Psus:     []PsuView{},
		},
	}

	app.Use(recover.New())
	app.Use(s.requestLogger)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.app.Group("/api")

	api.Get("/health", s.healthCheck)
	api.Get("/zones", s.getZones)
	api.Get("/zones/:name", s.getZone)
	api.Get("/entities", s.getEntities)
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("took", time.Since(start)).
		Msg("Handled request")
	return err
}

func (s *Server) App() *fiber.App {
	return s.app
}

// Observe keeps the latest state of each zone.
func (s *Server) Observe(_ context.Context, state cooling.ZoneState) error {
	s.mu.Lock()
	s.zones[state.Report.Zone] = state
	s.updated = time.Now()
	s.mu.Unlock()
	return nil
}

func (s *Server) SetEntities(e Entities) {
	s.mu.Lock()
	s.entities = e
	s.mu.Unlock()
}

// Listen serves until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info().Str("address", addr).Msg("Starting status server")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(shutdownTimeout)
}

func (s *Server) healthCheck(c *fiber.Ctx) error {
	s.mu.RLock()
	updated := s.updated
	zones := len(s.zones)
	s.mu.RUnlock()

	resp := fiber.Map{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
		"zones":  zones,
	}
	if !updated.IsZero() {
		resp["last_update"] = updated
	}
	return c.JSON(resp)
}

func (s *Server) getZones(c *fiber.Ctx) error {
	s.mu.RLock()
	reports := make([]cooling.ZoneReport, 0, len(s.zones))
	for _, state := range s.zones {
		reports = append(reports, state.Report)
	}
	s.mu.RUnlock()

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Zone < reports[j].Zone
	})
	return c.JSON(reports)
}

func (s *Server) getZone(c *fiber.Ctx) error {
	name := c.Params("name")

	s.mu.RLock()
	state, ok := s.zones[name]
	s.mu.RUnlock()

	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown zone " + name})
	}
	return c.JSON(state)
}

func (s *Server) getEntities(c *fiber.Ctx) error {
	s.mu.RLock()
	e := s.entities
	s.mu.RUnlock()
	return c.JSON(e)
}
