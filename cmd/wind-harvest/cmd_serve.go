package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/i474232898/wind-harvest/internal/api/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the public read API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer a.scheduler.Stop()

	app := fiber.New(fiber.Config{
		AppName:               "wind-harvest",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})
	app.Use(recover.New())
	app.Static("/files", a.cfg.BlobDir)

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Backend: a.store,
		Meter:   a.meter,
		Clock:   a.clock,
		Metrics: a.metrics,
	})

	go func() {
		if err := app.Listen(":" + a.cfg.Port); err != nil {
			a.logger.Error("fiber server stopped", zap.Error(err))
			stop()
		}
	}()
	a.logger.Info("wind-harvest started", zap.String("port", a.cfg.Port))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		a.logger.Warn("error during shutdown", zap.Error(err))
	}
	return nil
}
