package handlers

import (
	"context"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/vodchat/internal/storage"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

const defaultRunLimit = 50

// RunStore is the read side of the run archive
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]storage.RunSummary, error)
	Records(ctx context.Context, runID, itemID string) ([]types.CommentRecord, error)
}

// RunsHandler serves the archived runs
type RunsHandler struct {
	store  RunStore
	logger *slog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(store RunStore, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{store: store, logger: orDiscard(logger)}
}

// List serves GET /runs?limit=N
func (h *RunsHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultRunLimit)
	if limit <= 0 {
		limit = defaultRunLimit
	}

	runs, err := h.store.ListRuns(c.UserContext(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list runs",
			"code":  "ERR_ARCHIVE",
		})
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	return c.JSON(runs)
}

// Records serves GET /runs/:id/items/:item
func (h *RunsHandler) Records(c *fiber.Ctx) error {
	recs, err := h.store.Records(c.UserContext(), c.Params("id"), c.Params("item"))
	if err != nil {
		h.logger.Error("failed to read records", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read records",
			"code":  "ERR_ARCHIVE",
		})
	}
	if len(recs) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No records archived for this item",
			"code":  "ERR_NOT_FOUND",
		})
	}
	return c.JSON(recs)
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
