package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Model is the hosted language model as seen by the gateway. Only the
// gateway process holds its credential.
type Model interface {
	// Chat answers message given the instruction and the history preceding it.
	Chat(ctx context.Context, systemInstruction string, history []Turn, message string) (string, error)
	// Generate completes a single prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}

var errInvalidRequest = errors.New("invalid request type or missing parameters")

// Handler serves the gateway endpoint. Register it on POST; echo answers
// other methods with 405.
func Handler(m Model) echo.HandlerFunc {
	return func(c echo.Context) error {
		var body Request
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON body"})
		}

		text, err := dispatch(c.Request().Context(), m, body)
		if errors.Is(err, errInvalidRequest) {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request type or missing parameters."})
		}
		if err != nil {
			slog.Error("gateway: model call failed", "type", body.Type, "error", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "Failed to get response from AI",
				Details: err.Error(),
			})
		}
		return c.JSON(http.StatusOK, Response{Text: text})
	}
}

func dispatch(ctx context.Context, m Model, body Request) (string, error) {
	switch body.Type {
	case TypeChat:
		if body.SystemInstruction == "" || len(body.Transcript) == 0 {
			return "", errInvalidRequest
		}
		last := body.Transcript[len(body.Transcript)-1]
		msg := strings.TrimSpace(last.Text())
		if last.Role != SpeakerUser || msg == "" {
			return "", errInvalidRequest
		}
		return m.Chat(ctx, body.SystemInstruction, body.Transcript[:len(body.Transcript)-1], msg)
	case TypeSuggestion:
		if strings.TrimSpace(body.Prompt) == "" {
			return "", errInvalidRequest
		}
		return m.Generate(ctx, body.Prompt)
	default:
		return "", errInvalidRequest
	}
}
