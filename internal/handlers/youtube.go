package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/vodchat/internal/sources"
	"github.com/codebuildervaibhav/vodchat/internal/sources/youtube"
)

// YouTubeHandler searches the comments of a channel's videos
type YouTubeHandler struct {
	searcher *youtube.Searcher
	logger   *slog.Logger
}

// NewYouTubeHandler creates a new YouTube handler. A nil searcher answers
// every request with 503.
func NewYouTubeHandler(searcher *youtube.Searcher, logger *slog.Logger) *YouTubeHandler {
	return &YouTubeHandler{searcher: searcher, logger: orDiscard(logger)}
}

// Handle serves GET /youtube/comments?channel=...&q=...
func (h *YouTubeHandler) Handle(c *fiber.Ctx) error {
	if h.searcher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": youtube.ErrNoAPIKey.Error(),
			"code":  "ERR_NO_CREDENTIALS",
		})
	}

	channel, terms := c.Query("channel"), c.Query("q")
	if channel == "" || terms == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "channel and q are required",
			"code":  "ERR_BAD_REQUEST",
		})
	}

	ctx := c.UserContext()
	channelID, err := h.searcher.ChannelID(ctx, channel)
	if err != nil {
		if errors.Is(err, sources.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
				"code":  "ERR_NOT_FOUND",
			})
		}
		h.logger.Warn("youtube channel lookup failed", slog.String("channel", channel), slog.Any("error", err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_UPSTREAM",
		})
	}

	comments := []youtube.Comment{}
	err = h.searcher.Search(ctx, channelID, terms, func(cm youtube.Comment) error {
		comments = append(comments, cm)
		return nil
	})
	if err != nil {
		h.logger.Warn("youtube comment search failed", slog.String("channel_id", channelID), slog.Any("error", err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
			"code":  "ERR_UPSTREAM",
		})
	}

	return c.JSON(fiber.Map{
		"channel_id": channelID,
		"comments":   comments,
	})
}
