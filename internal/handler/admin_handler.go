// Package handler exposes the operational HTTP surface: health probes,
// store statistics and the Prometheus scrape endpoint. Problem intake
// happens over the poll loop only; there is no ingest API.
package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/dynrelay/dynrelay/internal/observability"
	"github.com/dynrelay/dynrelay/internal/service"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"
)

const readinessTimeout = 2 * time.Second

func NewAdminApp(engine *service.Engine, sqlDB *sql.DB, metrics *observability.Metrics, logger *zap.Logger) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Error("admin request failed",
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		},
	})

	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB))
	app.Get("/stats", StatsHandler(engine))
	app.Get("/connectors", ConnectorsHandler(engine))
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	return app
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(sqlDB *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		dbErr := sqlDB.PingContext(ctx)

		dbStatus := "ok"
		status := "ready"
		statusCode := fiber.StatusOK
		if dbErr != nil {
			dbStatus = "down"
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": fiber.Map{
				"database": dbStatus,
			},
		})
	}
}

func StatsHandler(engine *service.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := engine.Stats(c.Context())
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"total_problems":  stats.TotalProblems,
			"open_problems":   stats.OpenProblems,
			"closed_problems": stats.ClosedProblems,
			"total_forwards":  stats.TotalForwards,
			"success_count":   stats.SuccessCount,
			"failure_count":   stats.FailureCount,
		})
	}
}

func ConnectorsHandler(engine *service.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		connectors := engine.Connectors()
		out := make([]fiber.Map, 0, len(connectors))
		for _, conn := range connectors {
			out = append(out, fiber.Map{
				"name": conn.Name(),
				"mode": conn.Mode().String(),
			})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"connectors": out,
		})
	}
}
