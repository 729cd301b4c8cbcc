package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docuchatco/docuchat/pkg/history"
	"github.com/docuchatco/docuchat/pkg/llm"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	User    string `json:"user"`
	Message string `json:"message"`
}

// ChatFragment is one streamed piece of the answer.
type ChatFragment struct {
	Text string `json:"text"`
}

// HistoryResponse contains a user's conversation history, oldest first.
type HistoryResponse struct {
	User  string         `json:"user"`
	Turns []history.Turn `json:"turns"`
	Count int            `json:"count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleChat runs one turn and streams the answer out as server-sent
// events: zero or more "fragment" events followed by one "final" or
// "error" event.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	req.User = strings.TrimSpace(req.User)
	if req.User == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "user is required"})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "message is required"})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// The fasthttp request context is cancelled when the client goes
	// away, which abandons the in-flight turn without persisting.
	ctx := c.Context()

	fragments := s.agent.Ask(ctx, req.User, req.Message)

	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		for f := range fragments {
			switch {
			case f.Err != nil:
				writeEvent(w, "error", llm.ErrorResponse{Error: f.Err.Error()})
				return

			case f.Final != nil:
				writeEvent(w, "final", f.Final)
				return

			default:
				writeEvent(w, "fragment", ChatFragment{Text: f.Text})
			}
		}
	})

	return nil
}

// handleHistory returns every persisted turn for a user, oldest first.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	user := c.Params("user")
	if user == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "user parameter required"})
	}

	turns, err := s.agent.History(c.Context(), user)
	if err != nil {
		s.logger.Error("failed to load history",
			zap.String("user", user),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to load history"})
	}

	return c.JSON(HistoryResponse{
		User:  user,
		Turns: turns,
		Count: len(turns),
	})
}

// writeEvent writes one SSE event and flushes it to the client.
func writeEvent(w *bufio.Writer, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	_ = w.Flush()
}
