package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/oggyb/muzz-events/internal/app"
	"github.com/oggyb/muzz-events/internal/config"
	svcErr "github.com/oggyb/muzz-events/internal/errors"
)

// HTTPOptions tunes NewHTTPApp. The zero value is what tests use.
type HTTPOptions struct {
	// Sentry enables the Sentry middleware. sentry.Init must already have run.
	Sentry bool
	// AccessLog enables fiber's request logger.
	AccessLog bool
}

// NewHTTPApp builds the JSON API: middleware, health route and every registrar's routes.
func NewHTTPApp(appCtx *app.AppContext, opts HTTPOptions, registrars ...Registrar) *fiber.App {
	api := fiber.New(fiber.Config{
		AppName:      "muzz-events",
		BodyLimit:    6 * 1024 * 1024,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler(appCtx.Logger),
	})

	if opts.Sentry {
		api.Use(sentryfiber.New(sentryfiber.Options{
			Repanic:         true,
			WaitForDelivery: false,
		}))
	}
	api.Use(recover.New())
	api.Use(requestid.New())
	if opts.AccessLog {
		api.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} | ${locals:requestid} | ${status} | ${latency} | ${method} | ${path}\n",
		}))
	}

	api.Get("/health", healthHandler(appCtx))

	for _, r := range registrars {
		r.Register(api)
	}

	return api
}

// Listen serves the API on the configured HTTP address until Shutdown.
func Listen(api *fiber.App, cfg *config.Config) error {
	return api.Listen(cfg.HTTP.Host + ":" + cfg.HTTP.Port)
}

// ErrorHandler renders every handler error as {"error": true, "code", "message"}.
//
// Service errors keep their kind and public message. Fiber errors (unknown
// route, bad method) keep their status. Anything else is a 500: logged with the
// request id and reported to Sentry when the middleware is installed.
func ErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error":   true,
				"code":    "HTTP_ERROR",
				"message": fe.Message,
			})
		}

		status := svcErr.HTTPStatus(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				"request_id", c.Locals(requestid.ConfigDefault.ContextKey),
				"method", c.Method(),
				"path", c.Path(),
				"err", err,
			)
			if hub := sentryfiber.GetHubFromContext(c); hub != nil {
				hub.CaptureException(err)
			}
		}

		return c.Status(status).JSON(fiber.Map{
			"error":   true,
			"code":    svcErr.KindOf(err).String(),
			"message": svcErr.PublicMessage(err),
		})
	}
}

func healthHandler(appCtx *app.AppContext) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{"database": "ok", "redis": "ok"}
		healthy := true

		if sqlDB, err := appCtx.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			checks["database"] = "unavailable"
			healthy = false
		}
		if err := appCtx.RedisCache.Ping(ctx); err != nil {
			checks["redis"] = "unavailable"
			healthy = false
		}

		if !healthy {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "checks": checks})
		}
		return c.JSON(fiber.Map{
			"status":  "ok",
			"success": "The server is up and running.",
			"checks":  checks,
		})
	}
}
