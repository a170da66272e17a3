package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// Recognizer is a continuous speech-recognition engine. It keeps listening
// across utterances until Stop. After reporting an error it stops itself.
type Recognizer interface {
	Start(h Handler) error
	// Stop must not wait on the goroutines that invoke the Handler.
	Stop() error
}

// Handler receives recognizer events. Final carries finalized text only.
type Handler struct {
	Final func(text string)
	Error func(raw string)
	End   func()
}

// PCMReceiver is implemented by recognizers fed with 16 kHz PCM16 LE mono audio.
type PCMReceiver interface {
	SendPCM16KLE(pcm []byte) error
}

// Synthesizer plays text aloud. Speak returns when playback ends or ctx is
// cancelled.
type Synthesizer interface {
	Speak(ctx context.Context, text string) error
}

// Options configure an Adapter.
type Options struct {
	Recognizer  Recognizer
	Synthesizer Synthesizer
	// SecureContext reports whether the client reaches us over a secure
	// transport; capture is refused otherwise.
	SecureContext bool
}

// Adapter bridges capture and synthesis engines to result/error callbacks.
// Capability is decided once in New and never re-probed.
type Adapter struct {
	rec         Recognizer
	synth       Synthesizer
	unsupported *Error

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	listening  bool
	gen        uint64
	lastSpoken string
	speech     *utterance
	onResult   func(text string)
	onError    func(err *Error)
	onEnd      func()
}

type utterance struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Adapter from opts.
func New(opts Options) *Adapter {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{rec: opts.Recognizer, synth: opts.Synthesizer, ctx: ctx, cancel: cancel}
	switch {
	case !opts.SecureContext:
		a.unsupported = &Error{Code: CodeInsecureContext}
	case opts.Recognizer == nil:
		a.unsupported = &Error{Code: CodeNotSupported}
	}
	return a
}

// OnResult registers the callback for finalized utterances.
func (a *Adapter) OnResult(fn func(text string)) {
	a.mu.Lock()
	a.onResult = fn
	a.mu.Unlock()
}

// OnError registers the callback for asynchronous capture failures.
func (a *Adapter) OnError(fn func(err *Error)) {
	a.mu.Lock()
	a.onError = fn
	a.mu.Unlock()
}

// OnEnd registers the callback for capture the engine ended on its own.
// It does not fire after StopListening.
func (a *Adapter) OnEnd(fn func()) {
	a.mu.Lock()
	a.onEnd = fn
	a.mu.Unlock()
}

// Supported reports whether capture can ever start.
func (a *Adapter) Supported() bool { return a.unsupported == nil }

// CapabilityError returns why capture is unavailable, or nil.
func (a *Adapter) CapabilityError() *Error { return a.unsupported }

// Listening reports whether capture is active.
func (a *Adapter) Listening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listening
}

// LastSpoken returns the most recent text passed to Speak.
func (a *Adapter) LastSpoken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSpoken
}

// StartListening begins continuous capture. It is a no-op when already
// listening and returns an *Error when capture is unavailable or the engine
// refuses to start.
func (a *Adapter) StartListening() error {
	if a.unsupported != nil {
		return a.unsupported
	}
	a.mu.Lock()
	if a.listening {
		a.mu.Unlock()
		return nil
	}
	a.gen++
	gen := a.gen
	a.listening = true
	a.mu.Unlock()

	err := a.rec.Start(Handler{
		Final: func(text string) { a.final(gen, text) },
		Error: func(raw string) { a.failed(gen, raw) },
		End:   func() { a.ended(gen) },
	})
	if err == nil {
		return nil
	}
	a.mu.Lock()
	if a.gen == gen {
		a.listening = false
	}
	a.mu.Unlock()
	var ve *Error
	if errors.As(err, &ve) {
		return ve
	}
	return &Error{Code: CodeUnknown, Raw: err.Error()}
}

// StopListening ends capture. Results the engine delivers afterwards are dropped.
func (a *Adapter) StopListening() {
	a.mu.Lock()
	if !a.listening {
		a.mu.Unlock()
		return
	}
	a.listening = false
	a.gen++
	a.mu.Unlock()
	if err := a.rec.Stop(); err != nil {
		slog.Warn("voice: recognizer stop failed", "error", err)
	}
}

// FeedPCM forwards microphone audio to the recognizer while listening.
func (a *Adapter) FeedPCM(pcm []byte) {
	rx, ok := a.rec.(PCMReceiver)
	if !ok || !a.Listening() {
		return
	}
	if err := rx.SendPCM16KLE(pcm); err != nil {
		slog.Debug("voice: dropping audio", "error", err)
	}
}

func (a *Adapter) final(gen uint64, text string) {
	text = strings.TrimSpace(text)
	a.mu.Lock()
	cb := a.onResult
	live := a.listening && a.gen == gen
	a.mu.Unlock()
	if !live || text == "" || cb == nil {
		return
	}
	cb(text)
}

func (a *Adapter) failed(gen uint64, raw string) {
	a.mu.Lock()
	if a.gen != gen {
		a.mu.Unlock()
		return
	}
	a.listening = false
	cb := a.onError
	a.mu.Unlock()
	slog.Warn("voice: recognition error", "error", raw)
	if cb != nil {
		cb(ParseError(raw))
	}
}

func (a *Adapter) ended(gen uint64) {
	a.mu.Lock()
	if a.gen != gen || !a.listening {
		a.mu.Unlock()
		return
	}
	a.listening = false
	cb := a.onEnd
	a.mu.Unlock()
	slog.Info("voice: recognizer ended capture")
	if cb != nil {
		cb()
	}
}

// Speak cancels whatever is playing and plays text. The latest call wins;
// nothing is queued.
func (a *Adapter) Speak(text string) {
	if a.synth == nil {
		slog.Warn("voice: speech synthesis not configured")
		return
	}
	ctx, cancel := context.WithCancel(a.ctx)
	next := &utterance{cancel: cancel, done: make(chan struct{})}

	a.mu.Lock()
	prev := a.speech
	a.speech = next
	a.lastSpoken = text
	a.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}
	go func() {
		defer close(next.done)
		defer cancel()
		if err := a.synth.Speak(ctx, text); err != nil && ctx.Err() == nil {
			slog.Warn("voice: speech synthesis failed", "error", err)
		}
	}()
}

// ReplayLast speaks the last spoken text again. No-op before the first Speak.
func (a *Adapter) ReplayLast() {
	if text := a.LastSpoken(); text != "" {
		a.Speak(text)
	}
}

// Close stops capture and playback.
func (a *Adapter) Close() {
	a.StopListening()
	a.cancel()
	a.mu.Lock()
	cur := a.speech
	a.mu.Unlock()
	if cur != nil {
		<-cur.done
	}
}
