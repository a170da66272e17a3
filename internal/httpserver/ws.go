package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chadiek/support-trainer/internal/audio"
	"github.com/chadiek/support-trainer/internal/conversation"
	"github.com/chadiek/support-trainer/internal/voice"
)

const writeWait = 5 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is a text frame from the browser.
type clientMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}

// viewMessage is a text frame to the browser.
type viewMessage struct {
	Type string            `json:"type"`
	View conversation.View `json:"view"`
}

// wsClient serializes writes to one browser connection. Binary frames carry
// 48kHz PCM16 LE speech out and 16kHz PCM16 LE microphone audio in.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WriteFrame implements audio.FrameWriter.
func (w *wsClient) WriteFrame(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsClient) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(v)
}

func (h Handlers) stream(c echo.Context) error {
	conn, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("ws: upgrade failed", "error", err)
		return nil
	}
	client := &wsClient{conn: conn}
	slog.Info("ws: client connected", "remote", c.RealIP())

	out := audio.NewPacedWriter(client)
	detach := func() {}
	if h.Speech != nil {
		detach = h.Speech.Attach(out)
	}
	views, unsubscribe := h.Trainer.Subscribe()

	done := make(chan struct{})
	go func() {
		if err := client.writeJSON(viewMessage{Type: "view", View: h.Trainer.View()}); err != nil {
			return
		}
		for {
			select {
			case <-done:
				return
			case v := <-views:
				if err := client.writeJSON(viewMessage{Type: "view", View: v}); err != nil {
					slog.Debug("ws: view write failed", "error", err)
					return
				}
			}
		}
	}()

	defer func() {
		close(done)
		unsubscribe()
		detach()
		out.Close()
		_ = conn.Close()
		slog.Info("ws: client disconnected", "remote", c.RealIP())
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("ws: read failed", "error", err)
			}
			return nil
		}
		switch mt {
		case websocket.BinaryMessage:
			h.Trainer.FeedAudio(data)
		case websocket.TextMessage:
			h.clientMessage(data)
		}
	}
}

func (h Handlers) clientMessage(data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Debug("ws: bad client message", "error", err)
		return
	}
	switch msg.Type {
	case "capture-error":
		h.Trainer.Post(conversation.CaptureFailed{Err: voice.ParseError(msg.Code)})
	default:
		slog.Debug("ws: unknown client message", "type", msg.Type)
	}
}
