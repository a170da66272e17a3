package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/support-trainer/internal/conversation"
	"github.com/chadiek/support-trainer/internal/gateway"
	"github.com/chadiek/support-trainer/internal/scenario"
	"github.com/chadiek/support-trainer/internal/session"
	"github.com/chadiek/support-trainer/internal/voice"
)

// Trainer is the session runtime as seen by the API. *session.Trainer implements it.
type Trainer interface {
	Dispatch(ctx context.Context, ev conversation.Event) (conversation.View, error)
	Post(ev conversation.Event)
	Select(ctx context.Context, scenarioID, agentName string) (conversation.View, error)
	View() conversation.View
	FeedAudio(pcm []byte)
	Subscribe() (<-chan conversation.View, func())
}

// SpeechOutput routes synthesized speech to the connected browser.
// *voice.SinkSwitch implements it.
type SpeechOutput interface {
	Attach(sink voice.PCMSink) (detach func())
}

// Handlers serve the trainer API and the Model Gateway endpoint.
type Handlers struct {
	Trainer Trainer
	Catalog *scenario.Catalog
	Model   gateway.Model
	Speech  SpeechOutput
}

type apiError struct {
	Error string `json:"error"`
}

type selectRequest struct {
	ScenarioID string `json:"scenarioId"`
	AgentName  string `json:"agentName"`
}

type textRequest struct {
	Text string `json:"text"`
}

type notesRequest struct {
	Summary string `json:"summary"`
}

type dispositionRequest struct {
	Disposition string `json:"disposition"`
}

type agentRequest struct {
	Name string `json:"name"`
}

type listenRequest struct {
	On bool `json:"on"`
}

// Register mounts every route on e.
func (h Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/api/model", gateway.Handler(h.Model))
	e.GET("/api/scenarios", h.scenarios)
	e.PUT("/api/agent", h.agentName)

	s := e.Group("/api/session")
	s.GET("", h.view)
	s.POST("", h.selectScenario)
	s.DELETE("", h.leave)
	s.POST("/reset", h.reset)
	s.POST("/utterances", h.utterance)
	s.POST("/suggestion", h.suggestion)
	s.PUT("/input", h.input)
	s.PUT("/notes", h.notes)
	s.PUT("/disposition", h.disposition)
	s.POST("/checklist/:index", h.checklist)
	s.POST("/listen", h.listen)
	s.POST("/replay", h.replay)
	s.GET("/ws", h.stream)
}

func (h Handlers) scenarios(c echo.Context) error {
	list := h.Catalog.Search(c.QueryParam("q"))
	if list == nil {
		list = []scenario.Scenario{}
	}
	return c.JSON(http.StatusOK, list)
}

func (h Handlers) view(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Trainer.View())
}

func (h Handlers) selectScenario(c echo.Context) error {
	var req selectRequest
	if err := c.Bind(&req); err != nil || req.ScenarioID == "" {
		return c.JSON(http.StatusBadRequest, apiError{Error: "scenarioId is required"})
	}
	v, err := h.Trainer.Select(c.Request().Context(), req.ScenarioID, req.AgentName)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h Handlers) leave(c echo.Context) error {
	return h.apply(c, conversation.ReturnedToSelection{})
}

func (h Handlers) reset(c echo.Context) error {
	return h.apply(c, conversation.SessionReset{})
}

func (h Handlers) utterance(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "Invalid JSON body"})
	}
	return h.apply(c, conversation.AgentUtterance{Text: req.Text, Source: conversation.SourceTyped})
}

func (h Handlers) suggestion(c echo.Context) error {
	return h.apply(c, conversation.SuggestionRequested{})
}

func (h Handlers) input(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "Invalid JSON body"})
	}
	return h.apply(c, conversation.InputChanged{Text: req.Text})
}

func (h Handlers) notes(c echo.Context) error {
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "Invalid JSON body"})
	}
	return h.apply(c, conversation.NotesChanged{Summary: req.Summary})
}

func (h Handlers) disposition(c echo.Context) error {
	var req dispositionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "Invalid JSON body"})
	}
	d, err := conversation.ParseDisposition(req.Disposition)
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: err.Error()})
	}
	return h.apply(c, conversation.DispositionChanged{Disposition: d})
}

func (h Handlers) checklist(c echo.Context) error {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "index must be an integer"})
	}
	return h.apply(c, conversation.ChecklistToggled{Index: i})
}

func (h Handlers) agentName(c echo.Context) error {
	var req agentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "Invalid JSON body"})
	}
	return h.apply(c, conversation.AgentNameChanged{Name: req.Name})
}

func (h Handlers) listen(c echo.Context) error {
	var req listenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, apiError{Error: "Invalid JSON body"})
	}
	return h.apply(c, conversation.ListenToggled{On: req.On})
}

func (h Handlers) replay(c echo.Context) error {
	return h.apply(c, conversation.ReplayRequested{})
}

func (h Handlers) apply(c echo.Context, ev conversation.Event) error {
	v, err := h.Trainer.Dispatch(c.Request().Context(), ev)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func fail(c echo.Context, err error) error {
	switch {
	case errors.Is(err, conversation.ErrNoSession):
		return c.JSON(http.StatusConflict, apiError{Error: err.Error()})
	case errors.Is(err, conversation.ErrChecklistIndex):
		return c.JSON(http.StatusBadRequest, apiError{Error: err.Error()})
	case errors.Is(err, session.ErrUnknownScenario):
		return c.JSON(http.StatusNotFound, apiError{Error: err.Error()})
	case errors.Is(err, session.ErrClosed):
		return c.JSON(http.StatusServiceUnavailable, apiError{Error: err.Error()})
	default:
		slog.Error("api: request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, apiError{Error: "internal error"})
	}
}
