// Package stt streams microphone audio to AssemblyAI and reports finished
// turns through a voice.Handler.
package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/support-trainer/internal/voice"
)

// DefaultEndpoint is AssemblyAI's v3 realtime endpoint.
const DefaultEndpoint = "wss://streaming.assemblyai.com/v3/ws"

// AssemblyAI is a continuous voice.Recognizer. It opens one streaming session
// per Start and emits a Final for every formatted end of turn.
type AssemblyAI struct {
	apiKey   string
	endpoint string
	dialer   websocket.Dialer

	mu   sync.Mutex
	sess *session
}

// session is one streaming connection. writeMu serializes every write to
// conn; gorilla/websocket allows a single concurrent writer.
type session struct {
	conn    *websocket.Conn
	audio   chan []byte
	stop    chan struct{}
	once    sync.Once
	writeMu sync.Mutex
}

const writeWait = 5 * time.Second

var errSessionClosed = errors.New("assemblyai: session closed")

// AssemblyAI message types
type beginMessage struct {
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Transcript    string `json:"transcript"`
	EndOfTurn     bool   `json:"end_of_turn"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type terminationMessage struct {
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Error string `json:"error"`
}

// NewAssemblyAI builds a recognizer. An empty endpoint selects DefaultEndpoint.
func NewAssemblyAI(apiKey, endpoint string) *AssemblyAI {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &AssemblyAI{
		apiKey:   apiKey,
		endpoint: endpoint,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Start implements voice.Recognizer. Dial failures come back as *voice.Error.
func (a *AssemblyAI) Start(h voice.Handler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sess != nil {
		return nil
	}
	if a.apiKey == "" {
		return &voice.Error{Code: voice.CodePermissionDenied, Raw: "assemblyai: api key missing"}
	}

	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "true")
	params.Set("encoding", "pcm_s16le")
	wsURL := a.endpoint + "?" + params.Encode()

	headers := http.Header{"Authorization": {a.apiKey}}
	ctx, cancel := context.WithTimeout(context.Background(), a.dialer.HandshakeTimeout)
	defer cancel()
	conn, resp, err := a.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			slog.Warn("assemblyai: handshake rejected", "status", resp.StatusCode)
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return &voice.Error{Code: voice.CodePermissionDenied, Raw: fmt.Sprintf("assemblyai: status %d", resp.StatusCode)}
			}
		}
		return &voice.Error{Code: voice.CodeNetwork, Raw: err.Error()}
	}

	s := &session{conn: conn, audio: make(chan []byte, 1000), stop: make(chan struct{})}
	a.sess = s
	go a.readLoop(s, h)
	go s.writeLoop()
	slog.Info("assemblyai: streaming session opened")
	return nil
}

// Stop implements voice.Recognizer. It closes the socket without waiting for
// the read loop to observe it.
func (a *AssemblyAI) Stop() error {
	a.mu.Lock()
	s := a.sess
	a.sess = nil
	a.mu.Unlock()
	if s == nil {
		return nil
	}
	s.close()
	return nil
}

// SendPCM16KLE queues 16 kHz PCM16 LE mono audio for the open session.
func (a *AssemblyAI) SendPCM16KLE(pcm []byte) error {
	a.mu.Lock()
	s := a.sess
	a.mu.Unlock()
	if s == nil {
		return errors.New("assemblyai: not connected")
	}
	select {
	case <-s.stop:
		return errSessionClosed
	case s.audio <- pcm:
	default:
		slog.Debug("assemblyai: audio buffer full, dropping packet")
	}
	return nil
}

// close marks the session stopped, then sends Terminate once no audio write
// is in progress. No write happens after it.
func (s *session) close() {
	s.once.Do(func() {
		close(s.stop)
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
		_ = s.conn.Close()
	})
}

func (s *session) writeAudio(pcm []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.stop:
		return errSessionClosed
	default:
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.stop:
			return
		case pcm := <-s.audio:
			if err := s.writeAudio(pcm); err != nil {
				if !errors.Is(err, errSessionClosed) {
					slog.Warn("assemblyai: sending audio failed", "error", err)
				}
				return
			}
		}
	}
}

func (a *AssemblyAI) readLoop(s *session, h voice.Handler) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("assemblyai: recovered from panic in read loop", "panic", r)
		}
	}()
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.stop:
				callEnd(h)
			default:
				slog.Warn("assemblyai: read failed", "error", err)
				a.drop(s)
				callError(h, string(voice.CodeNetwork))
			}
			return
		}
		if done := a.process(s, message, h); done {
			return
		}
	}
}

// process handles one server message and reports whether the session ended.
func (a *AssemblyAI) process(s *session, message []byte, h voice.Handler) bool {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		slog.Warn("assemblyai: unmarshaling message", "error", err)
		return false
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			slog.Info("assemblyai: session began", "id", msg.ID, "expires_at", time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
		}
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Warn("assemblyai: unmarshaling turn", "error", err)
			return false
		}
		if text := strings.TrimSpace(msg.Transcript); msg.EndOfTurn && msg.TurnFormatted && text != "" && h.Final != nil {
			h.Final(text)
		}
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err == nil {
			slog.Info("assemblyai: session terminated",
				"audio_seconds", msg.AudioDurationSeconds, "session_seconds", msg.SessionDurationSeconds)
		}
		a.drop(s)
		callEnd(h)
		return true
	case "Error":
		var msg errorMessage
		_ = json.Unmarshal(message, &msg)
		slog.Warn("assemblyai: server error", "error", msg.Error)
		a.drop(s)
		callError(h, msg.Error)
		return true
	default:
		slog.Debug("assemblyai: unknown message type", "type", base.Type)
	}
	return false
}

// drop closes s and forgets it if it is still the current session.
func (a *AssemblyAI) drop(s *session) {
	a.mu.Lock()
	if a.sess == s {
		a.sess = nil
	}
	a.mu.Unlock()
	s.close()
}

func callEnd(h voice.Handler) {
	if h.End != nil {
		h.End()
	}
}

func callError(h voice.Handler, raw string) {
	if h.Error != nil {
		h.Error(raw)
	}
}
