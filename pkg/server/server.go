// Package server exposes the scheduler status over HTTP.
package server

import (
	"context"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/scheduler"
	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// StatusProvider reports the status of the scheduled jobs.
type StatusProvider interface {
	Status() []scheduler.JobStatus
}

// New returns the status application.
func New(logger hclog.Logger, jobs StatusProvider, store state.Store) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "geoingest",
		DisableStartupMessage: true,
		IdleTimeout:           60 * time.Second,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
	})
	app.Use(requestid.New())
	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		logger.Debug("request", "method", c.Method(), "path", c.Path(), "status", c.Response().StatusCode())
		return err
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	app.Get("/jobs", func(c *fiber.Ctx) error {
		return c.JSON(jobs.Status())
	})

	app.Get("/state", func(c *fiber.Ctx) error {
		all, err := store.List(c.UserContext())
		if err != nil {
			logger.Error("failed listing state", "reason", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "state_unavailable"})
		}
		return c.JSON(all)
	})

	app.Get("/state/:dataset", func(c *fiber.Ctx) error {
		datasetID := c.Params("dataset")
		current, ok, err := store.Get(c.UserContext(), datasetID)
		if err != nil {
			logger.Error("failed reading state", "dataset", datasetID, "reason", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "state_unavailable"})
		}
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.JSON(current)
	})

	return app
}

// Serve runs the application until the context is cancelled.
func Serve(ctx context.Context, logger hclog.Logger, app *fiber.App, addr string) error {
	chanErr := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", addr)
		chanErr <- app.Listen(addr)
	}()
	select {
	case err := <-chanErr:
		return errors.Wrap(err, "status server failed")
	case <-ctx.Done():
		logger.Info("stopping status server")
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			return errors.Wrap(err, "failed stopping status server")
		}
		return nil
	}
}
