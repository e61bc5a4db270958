package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/vodchat/internal/app"
	"github.com/codebuildervaibhav/vodchat/internal/queue"
)

// JobsHandler queues runs whose records only go to the exporters
type JobsHandler struct {
	app        *app.App
	workerPool *queue.WorkerPool
	logger     *slog.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(a *app.App, workerPool *queue.WorkerPool, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{app: a, workerPool: workerPool, logger: orDiscard(logger)}
}

// Create serves POST /jobs with a StreamRequest body
func (h *JobsHandler) Create(c *fiber.Ctx) error {
	var req StreamRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"code":  "ERR_BAD_REQUEST",
		})
	}

	prepared, err := h.app.Prepare(c.UserContext(), req.Target, req.Filter)
	if err != nil {
		return errorJSON(c, err)
	}

	job := queue.NewJob(uuid.NewString(), prepared)
	// the worker owns job once it is queued
	accepted := fiber.Map{
		"job_id": job.ID,
		"items":  job.Items,
		"status": job.Status,
	}
	if err := h.workerPool.EnqueueJob(job); err != nil {
		status := fiber.StatusInternalServerError
		if errors.Is(err, queue.ErrQueueFull) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_QUEUE",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(accepted)
}

// Get serves GET /jobs/:id
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	job, ok := h.workerPool.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Job not found",
			"code":  "ERR_NOT_FOUND",
		})
	}
	return c.JSON(job)
}
