package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

// DefaultDeepgramModel is the Aura voice used when none is configured.
const DefaultDeepgramModel = "aura-2-thalia-en"

const (
	deepgramIdleWindow = 400 * time.Millisecond
	deepgramMaxRender  = 12 * time.Second
	deepgramPoll       = 50 * time.Millisecond
)

// Deepgram renders customer replies through Deepgram's streaming speak API.
type Deepgram struct {
	apiKey string
	model  string
}

// NewDeepgram builds a Deepgram engine. An empty model selects DefaultDeepgramModel.
func NewDeepgram(apiKey, model string) *Deepgram {
	if model == "" {
		model = DefaultDeepgramModel
	}
	return &Deepgram{apiKey: apiKey, model: model}
}

// StreamPCM48k implements voice.TTS. The stream ends once audio has gone
// idle, the render deadline passes, or ctx is cancelled.
func (d *Deepgram) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	relay := newPCMRelay(4096)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer relay.close()
		if err := d.render(ctx, text, relay); err != nil {
			errCh <- err
		}
	}()

	return relay.out, errCh
}

// render speaks text into relay and returns once the reply is complete. The
// SDK client is stopped before render returns, so relay is closed after it.
func (d *Deepgram) render(ctx context.Context, text string, relay *pcmRelay) error {
	if d.apiKey == "" {
		return errors.New("deepgram: api key missing")
	}
	if text == "" {
		return nil
	}

	options := &clientinterfaces.WSSpeakOptions{
		Model:      d.model,
		Encoding:   "linear16",
		SampleRate: SampleRate,
	}
	dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, &speakCallback{relay: relay})
	if err != nil {
		return fmt.Errorf("deepgram: create ws client: %w", err)
	}
	defer dg.Stop()

	if ok := dg.Connect(); !ok {
		return errors.New("deepgram: connect failed")
	}
	if err := dg.SpeakWithText(text); err != nil {
		return fmt.Errorf("deepgram: speak text: %w", err)
	}
	if err := dg.Flush(); err != nil {
		slog.Warn("deepgram: flush failed", "error", err)
	}
	return relay.waitIdle(ctx, deepgramIdleWindow, deepgramMaxRender, d.model)
}

// pcmRelay hands SDK audio callbacks to the consumer channel. Audio that
// arrives after close is dropped.
type pcmRelay struct {
	out chan []byte

	mu       sync.Mutex
	closed   bool
	lastRecv time.Time
}

func newPCMRelay(size int) *pcmRelay {
	return &pcmRelay{out: make(chan []byte, size)}
}

func (r *pcmRelay) deliver(data []byte) {
	if len(data) == 0 {
		return
	}
	b := make([]byte, len(data))
	copy(b, data)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.lastRecv = time.Now()
	select {
	case r.out <- b:
	default:
		slog.Debug("deepgram: pcm buffer full, dropping chunk")
	}
}

func (r *pcmRelay) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.out)
	}
}

// idleFor reports how long audio has been quiet. ok is false before any audio.
func (r *pcmRelay) idleFor() (d time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastRecv.IsZero() {
		return 0, false
	}
	return time.Since(r.lastRecv), true
}

// waitIdle blocks until audio has been quiet for idle, maxRender elapses,
// or ctx ends.
func (r *pcmRelay) waitIdle(ctx context.Context, idle, maxRender time.Duration, model string) error {
	ticker := time.NewTicker(deepgramPoll)
	defer ticker.Stop()
	deadline := time.Now().Add(maxRender)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if quiet, ok := r.idleFor(); ok && quiet > idle {
				return nil
			}
			if time.Now().After(deadline) {
				slog.Warn("deepgram: render deadline reached", "model", model)
				return nil
			}
		}
	}
}

// speakCallback implements the SDK's speak message callbacks.
type speakCallback struct{ relay *pcmRelay }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) UnhandledEvent([]byte) error                    { return nil }

func (s *speakCallback) Warning(w *msginterfaces.WarningResponse) error {
	slog.Warn("deepgram: warning", "warning", w)
	return nil
}

func (s *speakCallback) Error(e *msginterfaces.ErrorResponse) error {
	slog.Warn("deepgram: error event", "error", e)
	return nil
}

func (s *speakCallback) Binary(data []byte) error {
	s.relay.deliver(data)
	return nil
}
