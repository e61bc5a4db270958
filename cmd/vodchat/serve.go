package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/codebuildervaibhav/vodchat/internal/cleanup"
	"github.com/codebuildervaibhav/vodchat/internal/handlers"
	"github.com/codebuildervaibhav/vodchat/internal/queue"
	"github.com/codebuildervaibhav/vodchat/internal/sources/youtube"
)

const version = "1.0.0"

// newServer builds the fiber app with every route mounted
func newServer(ctx context.Context, e *env, workerPool *queue.WorkerPool) *fiber.App {
	srv := fiber.New(fiber.Config{
		AppName:               "vodchat " + version,
		DisableStartupMessage: true,
	})

	// Middleware
	srv.Use(recover.New())
	srv.Use(logger.New(logger.Config{Output: e.logs}))
	srv.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(e.app, e.logger)
	streamHandler := handlers.NewStreamHandler(e.app, e.logger)
	jobsHandler := handlers.NewJobsHandler(e.app, workerPool, e.logger)

	var searcher *youtube.Searcher
	if e.cfg.YouTube.APIKey != "" {
		s, err := youtube.NewSearcher(ctx, e.cfg.YouTube.APIKey, 1)
		if err != nil {
			e.logger.Warn("youtube search not available", slog.Any("error", err))
		} else {
			searcher = s
		}
	}
	youtubeHandler := handlers.NewYouTubeHandler(searcher, e.logger)

	// Routes
	srv.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"version": version,
		})
	})

	srv.Get("/chat/:platform/:kind", chatHandler.Handle)
	srv.Get("/clips/:login", chatHandler.Clips)
	srv.Get("/youtube/comments", youtubeHandler.Handle)
	srv.Post("/jobs", jobsHandler.Create)
	srv.Get("/jobs/:id", jobsHandler.Get)

	if e.archive != nil {
		runsHandler := handlers.NewRunsHandler(e.archive, e.logger)
		srv.Get("/runs", runsHandler.List)
		srv.Get("/runs/:id/items/:item", runsHandler.Records)
	}

	// WebSocket route
	srv.Use("/ws", streamHandler.Upgrade)
	srv.Get("/ws/chat", websocket.New(streamHandler.Handle))

	// Get server logs
	srv.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": e.logs.GetLogs(),
		})
	})

	return srv
}

// execServe runs the server until ctx is cancelled
func execServe(ctx context.Context, e *env, _ []string) error {
	// Worker pool
	workerPool := queue.NewWorkerPool(max(1, e.cfg.Pipeline.MaxConcurrent), e.logger)
	workerPool.Start()
	defer workerPool.Stop()

	// Cleanup scheduler
	var pruner cleanup.Pruner
	if e.archive != nil {
		pruner = e.archive
	}
	scheduler := cleanup.NewScheduler(e.cfg.Archive.ExportDir, pruner,
		e.cfg.CleanupInterval(), e.cfg.MaxAge(), e.logger)
	scheduler.Start()
	defer scheduler.Stop()

	srv := newServer(ctx, e, workerPool)
	addr := fmt.Sprintf("%s:%d", e.cfg.Server.Host, e.cfg.Server.Port)
	e.logger.Info("server starting",
		slog.String("addr", addr),
		slog.Bool("archive", e.archive != nil),
	)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		e.logger.Info("shutting down gracefully")
		if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
			e.logger.Warn("shutdown incomplete", slog.Any("error", err))
		}
	}()

	if err := srv.Listen(addr); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
