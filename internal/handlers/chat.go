package handlers

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/vodchat/internal/app"
	"github.com/codebuildervaibhav/vodchat/internal/filter"
	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/sources/afreeca"
	"github.com/codebuildervaibhav/vodchat/internal/sources/twitch"
)

// ChatHandler streams a filtered transcript as plain text
type ChatHandler struct {
	app    *app.App
	logger *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(a *app.App, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{app: a, logger: orDiscard(logger)}
}

// Handle serves GET /chat/:platform/:kind?target=...&filter=...
func (h *ChatHandler) Handle(c *fiber.Ctx) error {
	target := app.Target{
		Platform: c.Params("platform"),
		Kind:     c.Params("kind"),
		Value:    c.Query("target"),
	}

	job, err := h.app.Prepare(c.UserContext(), target, c.Query("filter"))
	if err != nil {
		return errorJSON(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	c.Set("X-Item-Count", strconv.Itoa(len(job.Items)))
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		report, err := job.Run(context.Background(), flushWriter{w}, app.RunOptions{Exports: true})
		if err != nil {
			h.logger.Warn("chat stream stopped",
				slog.String("run_id", report.ID),
				slog.Any("error", err),
			)
		}
	})
	return nil
}

// Clips serves GET /clips/:login
func (h *ChatHandler) Clips(c *fiber.Ctx) error {
	clips := []twitch.Clip{}
	err := h.app.GQL().Clips(c.UserContext(), c.Params("login"), func(cl twitch.Clip) error {
		clips = append(clips, cl)
		return nil
	})
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(clips)
}

// flushWriter pushes every line to the client as soon as it is written
type flushWriter struct {
	w *bufio.Writer
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.w.Flush()
}

// classify maps a Prepare error to a status code and an error code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, filter.ErrInvalidPattern):
		return fiber.StatusBadRequest, "ERR_INVALID_FILTER"
	case errors.Is(err, app.ErrBadRequest), errors.Is(err, afreeca.ErrBadLink), errors.Is(err, afreeca.ErrBadItemID):
		return fiber.StatusBadRequest, "ERR_BAD_TARGET"
	case errors.Is(err, sources.ErrNotFound):
		return fiber.StatusNotFound, "ERR_NOT_FOUND"
	case errors.Is(err, twitch.ErrNoCredentials):
		return fiber.StatusServiceUnavailable, "ERR_NO_CREDENTIALS"
	default:
		return fiber.StatusBadGateway, "ERR_UPSTREAM"
	}
}

func errorJSON(c *fiber.Ctx, err error) error {
	status, code := classify(err)
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
