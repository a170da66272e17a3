// Package conversation is the turn-taking core of a practice call: a state
// machine that consumes events and returns the effects the runtime must
// perform. It performs no I/O itself.
package conversation

import (
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chadiek/support-trainer/internal/export"
	"github.com/chadiek/support-trainer/internal/gateway"
	"github.com/chadiek/support-trainer/internal/scenario"
	"github.com/chadiek/support-trainer/internal/transcript"
)

var (
	// ErrNoSession is returned for edits that need an active scenario.
	ErrNoSession = errors.New("no active scenario")
	// ErrChecklistIndex is returned when toggling a checklist item that does not exist.
	ErrChecklistIndex = errors.New("checklist index out of range")
)

// Options tune a Machine. Zero values select the production behavior.
type Options struct {
	AgentName string
	// Pick chooses an opening template index in [0, n).
	Pick  func(n int) int
	NewID func() string
	Now   func() time.Time
	Store *transcript.Store
}

// Machine owns one trainee's session state. It is not safe for concurrent
// use; the runtime serializes all calls to Handle.
type Machine struct {
	store *transcript.Store
	pick  func(n int) int
	newID func() string
	now   func() time.Time

	scenario    *scenario.Scenario
	checklist   []scenario.ChecklistItem
	done        []bool
	agentName   string
	input       string
	notes       string
	disposition Disposition
	listening   bool
	startedAt   time.Time

	// epoch advances on every start, reset and return to selection.
	epoch       uint64
	pendingChat *Tag
	pendingHint *Tag
}

// NewMachine returns a Machine on the scenario selection screen.
func NewMachine(opts Options) *Machine {
	m := &Machine{
		store:     opts.Store,
		pick:      opts.Pick,
		newID:     opts.NewID,
		now:       opts.Now,
		agentName: opts.AgentName,
	}
	if m.store == nil {
		m.store = transcript.NewStore()
	}
	if m.pick == nil {
		m.pick = rand.Intn
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Generating reports whether a customer reply is in flight.
func (m *Machine) Generating() bool { return m.pendingChat != nil }

// Suggesting reports whether a coach suggestion is in flight.
func (m *Machine) Suggesting() bool { return m.pendingHint != nil }

// Epoch is the current session epoch.
func (m *Machine) Epoch() uint64 { return m.epoch }

// Transcript returns the current lines.
func (m *Machine) Transcript() []transcript.Line { return m.store.Snapshot() }

// Handle applies ev and returns the effects to perform, in order. Events
// whose preconditions do not hold are ignored and yield no effects; the
// returned error is reserved for invalid edits the caller should report.
func (m *Machine) Handle(ev Event) ([]Effect, error) {
	switch e := ev.(type) {
	case ScenarioSelected:
		return m.start(e.Scenario), nil
	case SessionReset:
		if m.scenario == nil {
			return nil, nil
		}
		return m.start(*m.scenario), nil
	case ReturnedToSelection:
		return m.leave(), nil
	case AgentUtterance:
		return m.submit(e.Text, e.Source), nil
	case ChatSucceeded:
		return m.chatDone(e.Tag, e.Text, nil), nil
	case ChatFailed:
		return m.chatDone(e.Tag, "", e.Err), nil
	case SuggestionRequested:
		return m.suggest(), nil
	case SuggestionSucceeded:
		m.suggestDone(e.Tag, e.Text, nil)
		return nil, nil
	case SuggestionFailed:
		m.suggestDone(e.Tag, "", e.Err)
		return nil, nil
	case InputChanged:
		if m.scenario == nil {
			return nil, ErrNoSession
		}
		m.input = e.Text
		return nil, nil
	case NotesChanged:
		if m.scenario == nil {
			return nil, ErrNoSession
		}
		m.notes = e.Summary
		return nil, nil
	case DispositionChanged:
		if m.scenario == nil {
			return nil, ErrNoSession
		}
		m.disposition = e.Disposition
		return nil, nil
	case ChecklistToggled:
		if m.scenario == nil {
			return nil, ErrNoSession
		}
		if e.Index < 0 || e.Index >= len(m.done) {
			return nil, ErrChecklistIndex
		}
		m.done[e.Index] = !m.done[e.Index]
		return nil, nil
	case AgentNameChanged:
		m.agentName = e.Name
		return nil, nil
	case ListenToggled:
		return m.listen(e.On), nil
	case CaptureFailed:
		m.listening = false
		if m.scenario != nil && e.Err != nil {
			m.store.Append(transcript.RoleSystem, CaptureErrorMessage(e.Err))
		}
		return nil, nil
	case CaptureEnded:
		m.listening = false
		return nil, nil
	case ReplayRequested:
		return []Effect{Replay{}}, nil
	default:
		return nil, nil
	}
}

func (m *Machine) start(s scenario.Scenario) []Effect {
	m.epoch++
	m.scenario = &s
	m.checklist = s.Checklist()
	m.done = make([]bool, len(m.checklist))
	m.notes = ""
	m.disposition = DispositionUnset
	m.pendingChat, m.pendingHint = nil, nil
	m.startedAt = m.now()

	seed := s.Seed()
	m.store.Reset()
	m.store.Append(transcript.RoleSystem, "Scenario loaded: "+s.Title)
	m.store.Append(transcript.RoleCustomer, seed)
	m.input = s.OpeningLine(m.agentName, m.pick)
	return []Effect{Speak{Text: seed}}
}

func (m *Machine) leave() []Effect {
	if m.scenario == nil {
		return nil
	}
	var effects []Effect
	if m.listening {
		m.listening = false
		effects = append(effects, StopCapture{})
	}
	effects = append(effects, Export{Record: m.record()})

	m.epoch++
	m.scenario = nil
	m.checklist, m.done = nil, nil
	m.input, m.notes = "", ""
	m.disposition = DispositionUnset
	m.pendingChat, m.pendingHint = nil, nil
	m.store.Reset()
	return effects
}

func (m *Machine) record() export.Record {
	items := make([]export.ChecklistEntry, len(m.checklist))
	for i, c := range m.checklist {
		items[i] = export.ChecklistEntry{Item: c.Full, Done: m.done[i]}
	}
	return export.Record{
		ID:            m.newID(),
		ScenarioID:    m.scenario.ID,
		ScenarioTitle: m.scenario.Title,
		AgentName:     m.agentName,
		Disposition:   string(m.disposition),
		Notes:         m.notes,
		Checklist:     items,
		Transcript:    m.store.Snapshot(),
		StartedAt:     m.startedAt,
		EndedAt:       m.now(),
	}
}

func (m *Machine) tag() Tag { return Tag{Epoch: m.epoch, ID: m.newID()} }

// submit is the single path for typed and spoken agent lines. At most one
// chat request is outstanding per session.
func (m *Machine) submit(text string, src Source) []Effect {
	clean := strings.TrimSpace(text)
	if m.scenario == nil || m.Generating() || clean == "" {
		return nil
	}
	var effects []Effect
	if m.listening {
		m.listening = false
		effects = append(effects, StopCapture{})
	}
	m.store.Append(transcript.RoleAgent, clean)
	if src == SourceTyped {
		m.input = ""
	}
	t := m.tag()
	m.pendingChat = &t
	return append(effects, IssueChat{
		Tag: t,
		Request: gateway.ChatRequest{
			SystemInstruction: SystemInstruction(*m.scenario),
			Transcript:        History(m.store.Snapshot()),
		},
	})
}

func (m *Machine) chatDone(t Tag, text string, err error) []Effect {
	if m.pendingChat == nil || *m.pendingChat != t {
		return nil
	}
	m.pendingChat = nil
	text = strings.TrimSpace(text)
	if err == nil && text == "" {
		err = &gateway.Error{Kind: gateway.KindMalformed, Message: "empty response"}
	}
	if err != nil {
		m.store.Append(transcript.RoleSystem, ChatErrorMessage(err))
		return nil
	}
	m.store.Append(transcript.RoleCustomer, text)
	return []Effect{Speak{Text: text}}
}

// suggest shares no lock with submit; it is simply refused while a reply is
// in flight so the hint never reflects a half-finished turn.
func (m *Machine) suggest() []Effect {
	if m.scenario == nil || m.Suggesting() || m.Generating() {
		return nil
	}
	t := m.tag()
	m.pendingHint = &t
	return []Effect{IssueSuggestion{Tag: t, Prompt: SuggestionPrompt(*m.scenario, m.store.Snapshot())}}
}

func (m *Machine) suggestDone(t Tag, text string, err error) {
	if m.pendingHint == nil || *m.pendingHint != t {
		return
	}
	m.pendingHint = nil
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		m.store.Append(transcript.RoleSystem, SuggestionFailedMessage)
		return
	}
	m.input = text
}

func (m *Machine) listen(on bool) []Effect {
	switch {
	case on && !m.listening && m.scenario != nil:
		m.listening = true
		return []Effect{StartCapture{}}
	case !on && m.listening:
		m.listening = false
		return []Effect{StopCapture{}}
	}
	return nil
}
