package conversation

import (
	"github.com/chadiek/support-trainer/internal/export"
	"github.com/chadiek/support-trainer/internal/gateway"
	"github.com/chadiek/support-trainer/internal/scenario"
	"github.com/chadiek/support-trainer/internal/voice"
)

// Tag identifies an outbound model request. Epoch is the session epoch at
// send time; a completion whose epoch is no longer current is discarded.
type Tag struct {
	Epoch uint64
	ID    string
}

// Source says how an agent utterance was produced.
type Source int

const (
	SourceTyped Source = iota
	SourceVoice
)

// Event is an input to Machine.Handle.
type Event interface{ event() }

type (
	// ScenarioSelected starts a fresh session on Scenario.
	ScenarioSelected struct{ Scenario scenario.Scenario }
	// SessionReset restarts the current scenario.
	SessionReset struct{}
	// ReturnedToSelection abandons the session.
	ReturnedToSelection struct{}

	AgentUtterance struct {
		Text   string
		Source Source
	}
	ChatSucceeded struct {
		Tag  Tag
		Text string
	}
	ChatFailed struct {
		Tag Tag
		Err error
	}

	SuggestionRequested struct{}
	SuggestionSucceeded struct {
		Tag  Tag
		Text string
	}
	SuggestionFailed struct {
		Tag Tag
		Err error
	}

	InputChanged       struct{ Text string }
	NotesChanged       struct{ Summary string }
	DispositionChanged struct{ Disposition Disposition }
	ChecklistToggled   struct{ Index int }
	AgentNameChanged   struct{ Name string }

	ListenToggled   struct{ On bool }
	CaptureFailed   struct{ Err *voice.Error }
	CaptureEnded    struct{}
	ReplayRequested struct{}
)

func (ScenarioSelected) event()    {}
func (SessionReset) event()        {}
func (ReturnedToSelection) event() {}
func (AgentUtterance) event()      {}
func (ChatSucceeded) event()       {}
func (ChatFailed) event()          {}
func (SuggestionRequested) event() {}
func (SuggestionSucceeded) event() {}
func (SuggestionFailed) event()    {}
func (InputChanged) event()        {}
func (NotesChanged) event()        {}
func (DispositionChanged) event()  {}
func (ChecklistToggled) event()    {}
func (AgentNameChanged) event()    {}
func (ListenToggled) event()       {}
func (CaptureFailed) event()       {}
func (CaptureEnded) event()        {}
func (ReplayRequested) event()     {}

// Effect is work the runtime performs on the Machine's behalf.
type Effect interface{ effect() }

type (
	IssueChat struct {
		Tag     Tag
		Request gateway.ChatRequest
	}
	IssueSuggestion struct {
		Tag    Tag
		Prompt string
	}
	StartCapture struct{}
	StopCapture  struct{}
	Speak        struct{ Text string }
	Replay       struct{}
	Export       struct{ Record export.Record }
)

func (IssueChat) effect()       {}
func (IssueSuggestion) effect() {}
func (StartCapture) effect()    {}
func (StopCapture) effect()     {}
func (Speak) effect()           {}
func (Replay) effect()          {}
func (Export) effect()          {}
