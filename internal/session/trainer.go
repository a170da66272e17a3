// Package session runs a practice call: it serializes every state change on
// one event loop and performs the effects the conversation core asks for.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chadiek/support-trainer/internal/conversation"
	"github.com/chadiek/support-trainer/internal/export"
	"github.com/chadiek/support-trainer/internal/scenario"
	"github.com/chadiek/support-trainer/internal/voice"
)

// ErrUnknownScenario is returned by Select for an id not in the catalog.
var ErrUnknownScenario = errors.New("unknown scenario")

// ErrClosed is returned once the event loop has stopped.
var ErrClosed = errors.New("session closed")

const exportTimeout = 30 * time.Second

// Options wire a Trainer to its collaborators. Voice and Exporter may be nil.
type Options struct {
	Catalog  *scenario.Catalog
	Machine  *conversation.Machine
	Gateway  Gateway
	Voice    Voice
	Exporter export.Exporter
}

// Trainer owns the single practice session this process serves.
type Trainer struct {
	catalog  *scenario.Catalog
	machine  *conversation.Machine
	gw       Gateway
	voice    Voice
	exporter export.Exporter

	inbox chan envelope
	done  chan struct{}
	wg    sync.WaitGroup

	mu     sync.RWMutex
	view   conversation.View
	subs   map[int]chan conversation.View
	nextID int
}

type envelope struct {
	ev    conversation.Event
	reply chan result
}

type result struct {
	view conversation.View
	err  error
}

// New builds a Trainer. Call Start before dispatching events.
func New(opts Options) *Trainer {
	t := &Trainer{
		catalog:  opts.Catalog,
		machine:  opts.Machine,
		gw:       opts.Gateway,
		voice:    opts.Voice,
		exporter: opts.Exporter,
		inbox:    make(chan envelope, 64),
		done:     make(chan struct{}),
		subs:     make(map[int]chan conversation.View),
	}
	if t.machine == nil {
		t.machine = conversation.NewMachine(conversation.Options{})
	}
	if t.voice == nil {
		t.voice = nopVoice{}
	}
	t.view = t.machine.View()
	t.voice.OnResult(func(text string) {
		t.Post(conversation.AgentUtterance{Text: text, Source: conversation.SourceVoice})
	})
	t.voice.OnError(func(err *voice.Error) {
		t.Post(conversation.CaptureFailed{Err: err})
	})
	t.voice.OnEnd(func() {
		t.Post(conversation.CaptureEnded{})
	})
	return t
}

// Start runs the event loop until ctx is cancelled or stop is called. Stop
// waits for the loop and in-flight model calls to finish.
func (t *Trainer) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-t.inbox:
				view, err := t.process(ctx, env.ev)
				if env.reply != nil {
					env.reply <- result{view: view, err: err}
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			t.wg.Wait()
			t.voice.StopListening()
		})
	}
}

// Dispatch applies ev on the event loop and returns the resulting view.
func (t *Trainer) Dispatch(ctx context.Context, ev conversation.Event) (conversation.View, error) {
	env := envelope{ev: ev, reply: make(chan result, 1)}
	select {
	case t.inbox <- env:
	case <-t.done:
		return conversation.View{}, ErrClosed
	case <-ctx.Done():
		return conversation.View{}, ctx.Err()
	}
	select {
	case r := <-env.reply:
		return r.view, r.err
	case <-t.done:
		return conversation.View{}, ErrClosed
	case <-ctx.Done():
		return conversation.View{}, ctx.Err()
	}
}

// Post queues ev without waiting for it to be applied. Completions and
// voice callbacks enter the loop this way.
func (t *Trainer) Post(ev conversation.Event) {
	select {
	case t.inbox <- envelope{ev: ev}:
	case <-t.done:
		slog.Debug("session: event after close dropped", "event", eventName(ev))
	}
}

// Select starts scenarioID, optionally renaming the agent first.
func (t *Trainer) Select(ctx context.Context, scenarioID, agentName string) (conversation.View, error) {
	s, ok := t.catalog.Get(scenarioID)
	if !ok {
		return conversation.View{}, ErrUnknownScenario
	}
	if agentName != "" {
		if _, err := t.Dispatch(ctx, conversation.AgentNameChanged{Name: agentName}); err != nil {
			return conversation.View{}, err
		}
	}
	return t.Dispatch(ctx, conversation.ScenarioSelected{Scenario: s})
}

// View returns the latest snapshot.
func (t *Trainer) View() conversation.View {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.view
}

// FeedAudio forwards browser microphone audio to the recognizer.
func (t *Trainer) FeedAudio(pcm []byte) { t.voice.FeedPCM(pcm) }

// Subscribe returns a channel that receives the latest view after every
// change. Slow readers only ever see the newest view.
func (t *Trainer) Subscribe() (<-chan conversation.View, func()) {
	ch := make(chan conversation.View, 1)
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	ch <- t.view
	t.mu.Unlock()
	return ch, func() {
		t.mu.Lock()
		delete(t.subs, id)
		t.mu.Unlock()
	}
}

// process applies ev and every follow-up event its effects produce.
func (t *Trainer) process(ctx context.Context, ev conversation.Event) (conversation.View, error) {
	var firstErr error
	queue := []conversation.Event{ev}
	for i := 0; i < len(queue); i++ {
		e := queue[i]
		if stale, ok := t.staleTag(e); ok && stale {
			slog.Debug("session: discarding stale response", "event", eventName(e))
		}
		effects, err := t.machine.Handle(e)
		if i == 0 {
			firstErr = err
		}
		for _, eff := range effects {
			if next := t.perform(ctx, eff); next != nil {
				queue = append(queue, next)
			}
		}
	}
	view := t.machine.View()
	t.publish(view)
	return view, firstErr
}

func (t *Trainer) staleTag(ev conversation.Event) (stale, ok bool) {
	var tag conversation.Tag
	switch e := ev.(type) {
	case conversation.ChatSucceeded:
		tag = e.Tag
	case conversation.ChatFailed:
		tag = e.Tag
	case conversation.SuggestionSucceeded:
		tag = e.Tag
	case conversation.SuggestionFailed:
		tag = e.Tag
	default:
		return false, false
	}
	return tag.Epoch != t.machine.Epoch(), true
}

// perform runs one effect. Effects that complete synchronously may yield a
// follow-up event; model calls re-enter through Post.
func (t *Trainer) perform(ctx context.Context, eff conversation.Effect) conversation.Event {
	switch e := eff.(type) {
	case conversation.IssueChat:
		t.goCall(func() {
			text, err := t.gw.Chat(ctx, e.Request)
			if err != nil {
				slog.Warn("session: chat request failed", "tag", e.Tag.ID, "error", err)
				t.Post(conversation.ChatFailed{Tag: e.Tag, Err: err})
				return
			}
			t.Post(conversation.ChatSucceeded{Tag: e.Tag, Text: text})
		})
	case conversation.IssueSuggestion:
		t.goCall(func() {
			text, err := t.gw.Suggest(ctx, e.Prompt)
			if err != nil {
				slog.Warn("session: suggestion request failed", "tag", e.Tag.ID, "error", err)
				t.Post(conversation.SuggestionFailed{Tag: e.Tag, Err: err})
				return
			}
			t.Post(conversation.SuggestionSucceeded{Tag: e.Tag, Text: text})
		})
	case conversation.StartCapture:
		if err := t.voice.StartListening(); err != nil {
			var ve *voice.Error
			if !errors.As(err, &ve) {
				ve = &voice.Error{Code: voice.CodeUnknown, Raw: err.Error()}
			}
			slog.Warn("session: capture did not start", "code", ve.Code, "raw", ve.Raw)
			return conversation.CaptureFailed{Err: ve}
		}
	case conversation.StopCapture:
		t.voice.StopListening()
	case conversation.Speak:
		t.voice.Speak(e.Text)
	case conversation.Replay:
		t.voice.ReplayLast()
	case conversation.Export:
		if t.exporter == nil {
			return nil
		}
		rec := e.Record
		t.goCall(func() {
			ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exportTimeout)
			defer cancel()
			_ = export.Logged{Exporter: t.exporter}.Export(ectx, rec)
		})
	}
	return nil
}

func (t *Trainer) goCall(fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn()
	}()
}

func (t *Trainer) publish(v conversation.View) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.view = v
	for _, ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func eventName(ev conversation.Event) string { return fmt.Sprintf("%T", ev) }
