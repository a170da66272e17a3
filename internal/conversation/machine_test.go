package conversation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/chadiek/support-trainer/internal/gateway"
	"github.com/chadiek/support-trainer/internal/scenario"
	"github.com/chadiek/support-trainer/internal/transcript"
	"github.com/chadiek/support-trainer/internal/voice"
)

var outlook = scenario.Scenario{
	ID:      "outlook",
	Title:   "Outlook not syncing",
	Product: "Exchange",
	Customer: scenario.Customer{
		Name:     "Dana Reyes",
		Email:    "dana@example.com",
		Location: "Austin, TX",
	},
	SummaryHint:      "**Connection:** Check Outlook is online | **Profile:** Rebuild the profile",
	OpeningTemplates: []string{"Thanks for calling, this is {{AGENT_NAME}}.", "Hi, {{AGENT_NAME}} here."},
	Path:             []scenario.Step{{Customer: "My email stopped arriving this morning."}},
}

func newTestMachine() *Machine {
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }
	n := 0
	return NewMachine(Options{
		AgentName: "Alex",
		Pick:      func(int) int { return 1 },
		NewID:     func() string { n++; return fmt.Sprintf("id-%d", n) },
		Now:       now,
		Store:     transcript.NewStoreWithClock(now),
	})
}

func mustHandle(t *testing.T, m *Machine, ev Event) []Effect {
	t.Helper()
	effects, err := m.Handle(ev)
	if err != nil {
		t.Fatalf("handle %T: %v", ev, err)
	}
	return effects
}

func started(t *testing.T) *Machine {
	t.Helper()
	m := newTestMachine()
	mustHandle(t, m, ScenarioSelected{Scenario: outlook})
	return m
}

func issuedChat(t *testing.T, effects []Effect) IssueChat {
	t.Helper()
	for _, e := range effects {
		if c, ok := e.(IssueChat); ok {
			return c
		}
	}
	t.Fatalf("no chat issued in %#v", effects)
	return IssueChat{}
}

func roles(lines []transcript.Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l.Role) + ":" + l.Text
	}
	return out
}

func TestHistory_DropsSystemAndRemapsRoles(t *testing.T) {
	lines := []transcript.Line{
		{Role: transcript.RoleSystem, Text: "x"},
		{Role: transcript.RoleAgent, Text: "a1"},
		{Role: transcript.RoleCustomer, Text: "c1"},
		{Role: transcript.RoleAgent, Text: "a2"},
	}
	want := []gateway.Turn{
		gateway.NewTurn(gateway.SpeakerUser, "a1"),
		gateway.NewTurn(gateway.SpeakerModel, "c1"),
		gateway.NewTurn(gateway.SpeakerUser, "a2"),
	}
	if got := History(lines); !reflect.DeepEqual(got, want) {
		t.Fatalf("history:\n got %+v\nwant %+v", got, want)
	}
}

func TestStart_SeedsTwoLinesAndResetsState(t *testing.T) {
	m := newTestMachine()
	effects := mustHandle(t, m, ScenarioSelected{Scenario: outlook})

	want := []string{"system:Scenario loaded: Outlook not syncing", "customer:My email stopped arriving this morning."}
	if got := roles(m.Transcript()); !reflect.DeepEqual(got, want) {
		t.Fatalf("seed: %v", got)
	}
	if !reflect.DeepEqual(effects, []Effect{Speak{Text: "My email stopped arriving this morning."}}) {
		t.Fatalf("effects: %#v", effects)
	}
	v := m.View()
	if v.Input != "Hi, Alex here." {
		t.Fatalf("opening line: %q", v.Input)
	}
	if len(v.Checklist) != 2 || v.Checklist[1].Bold != "Profile" || v.Checklist[0].Done {
		t.Fatalf("checklist: %+v", v.Checklist)
	}

	mustHandle(t, m, NotesChanged{Summary: "rebooted"})
	mustHandle(t, m, DispositionChanged{Disposition: DispositionResolved})
	mustHandle(t, m, ChecklistToggled{Index: 0})
	mustHandle(t, m, AgentUtterance{Text: "Hello"})
	mustHandle(t, m, SessionReset{})

	v = m.View()
	if v.Notes != "" || v.Disposition != DispositionUnset || v.Checklist[0].Done || v.Generating {
		t.Fatalf("reset did not clear session state: %+v", v)
	}
	if got := len(v.Transcript); got != 2 {
		t.Fatalf("reset should reseed two lines, got %d", got)
	}
}

func TestStart_NoTemplatesOrPath(t *testing.T) {
	m := newTestMachine()
	bare := scenario.Scenario{ID: "bare", Title: "Bare"}
	mustHandle(t, m, ScenarioSelected{Scenario: bare})
	if got := m.Transcript()[1].Text; got != scenario.DefaultSeed {
		t.Fatalf("seed: %q", got)
	}
	if m.View().Input != "" {
		t.Fatalf("input should be empty without templates")
	}
}

func TestSubmit_TranscriptKeepsSubmissionOrder(t *testing.T) {
	m := started(t)
	want := roles(m.Transcript())
	for i := 0; i < 3; i++ {
		agent := fmt.Sprintf("agent line %d", i)
		reply := fmt.Sprintf("customer line %d", i)
		chat := issuedChat(t, mustHandle(t, m, AgentUtterance{Text: "  " + agent + " "}))
		effects := mustHandle(t, m, ChatSucceeded{Tag: chat.Tag, Text: reply})
		if !reflect.DeepEqual(effects, []Effect{Speak{Text: reply}}) {
			t.Fatalf("reply effects: %#v", effects)
		}
		want = append(want, "agent:"+agent, "customer:"+reply)
	}
	if got := roles(m.Transcript()); !reflect.DeepEqual(got, want) {
		t.Fatalf("order:\n got %v\nwant %v", got, want)
	}
}

func TestSubmit_BuildsChatRequest(t *testing.T) {
	m := started(t)
	chat := issuedChat(t, mustHandle(t, m, AgentUtterance{Text: "Can you open Outlook?"}))
	if chat.Request.SystemInstruction != SystemInstruction(outlook) {
		t.Fatalf("system instruction mismatch")
	}
	want := []gateway.Turn{
		gateway.NewTurn(gateway.SpeakerModel, "My email stopped arriving this morning."),
		gateway.NewTurn(gateway.SpeakerUser, "Can you open Outlook?"),
	}
	if !reflect.DeepEqual(chat.Request.Transcript, want) {
		t.Fatalf("history: %+v", chat.Request.Transcript)
	}
	if chat.Tag.Epoch != m.Epoch() || chat.Tag.ID == "" {
		t.Fatalf("tag: %+v", chat.Tag)
	}
}

func TestSubmit_WhileGeneratingIsNoop(t *testing.T) {
	m := started(t)
	mustHandle(t, m, AgentUtterance{Text: "first"})
	before := len(m.Transcript())
	effects := mustHandle(t, m, AgentUtterance{Text: "second"})
	if len(effects) != 0 {
		t.Fatalf("expected no effects, got %#v", effects)
	}
	effects = mustHandle(t, m, AgentUtterance{Text: "spoken", Source: SourceVoice})
	if len(effects) != 0 || len(m.Transcript()) != before {
		t.Fatalf("voice submission during generation must be ignored")
	}
}

func TestSubmit_BlankIsDropped(t *testing.T) {
	m := started(t)
	for _, text := range []string{"", "   ", "\n\t"} {
		if effects := mustHandle(t, m, AgentUtterance{Text: text}); len(effects) != 0 {
			t.Fatalf("blank %q produced effects", text)
		}
	}
	if len(m.Transcript()) != 2 || m.Generating() {
		t.Fatalf("blank submissions must not append or set generating")
	}
}

func TestSubmit_WithoutScenarioIsNoop(t *testing.T) {
	m := newTestMachine()
	if effects := mustHandle(t, m, AgentUtterance{Text: "hello"}); len(effects) != 0 || len(m.Transcript()) != 0 {
		t.Fatalf("submit without a scenario must be ignored")
	}
}

func TestSubmit_TypedClearsInputVoiceKeepsIt(t *testing.T) {
	m := started(t)
	mustHandle(t, m, InputChanged{Text: "draft"})
	chat := issuedChat(t, mustHandle(t, m, AgentUtterance{Text: "spoken line", Source: SourceVoice}))
	if m.View().Input != "draft" {
		t.Fatalf("voice submission must not clear the input buffer")
	}
	mustHandle(t, m, ChatSucceeded{Tag: chat.Tag, Text: "ok"})
	mustHandle(t, m, AgentUtterance{Text: "draft"})
	if m.View().Input != "" {
		t.Fatalf("typed submission should clear the input buffer")
	}
}

func TestSubmit_StopsActiveCapture(t *testing.T) {
	m := started(t)
	if effects := mustHandle(t, m, ListenToggled{On: true}); !reflect.DeepEqual(effects, []Effect{StartCapture{}}) {
		t.Fatalf("listen effects: %#v", effects)
	}
	effects := mustHandle(t, m, AgentUtterance{Text: "hello", Source: SourceVoice})
	if len(effects) != 2 {
		t.Fatalf("effects: %#v", effects)
	}
	if _, ok := effects[0].(StopCapture); !ok {
		t.Fatalf("capture must stop before the chat is issued: %#v", effects)
	}
	if m.View().Listening {
		t.Fatalf("listening should be off after submission")
	}
}

func TestChat_GeneratingClearsOnEveryOutcome(t *testing.T) {
	cases := []struct {
		name string
		done func(Tag) Event
		want string
	}{
		{"success", func(tg Tag) Event { return ChatSucceeded{Tag: tg, Text: " Sure. "} }, "customer:Sure."},
		{"transport", func(tg Tag) Event {
			return ChatFailed{Tag: tg, Err: &gateway.Error{Kind: gateway.KindTransport, Message: "dial"}}
		}, "system:Sorry, the AI service could not be reached. Please check your connection and try again."},
		{"status", func(tg Tag) Event {
			return ChatFailed{Tag: tg, Err: &gateway.Error{Kind: gateway.KindStatus, Status: 500, Message: "quota exceeded"}}
		}, "system:Sorry, an error occurred with the AI: quota exceeded. Please try again."},
		{"malformed", func(tg Tag) Event {
			return ChatFailed{Tag: tg, Err: &gateway.Error{Kind: gateway.KindMalformed, Message: "no text"}}
		}, "system:Sorry, the AI returned an empty response. Please try again."},
		{"empty success", func(tg Tag) Event { return ChatSucceeded{Tag: tg, Text: "  "} },
			"system:Sorry, the AI returned an empty response. Please try again."},
		{"untyped", func(tg Tag) Event { return ChatFailed{Tag: tg, Err: errors.New("boom")} },
			"system:Sorry, an error occurred with the AI. Please try again."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := started(t)
			chat := issuedChat(t, mustHandle(t, m, AgentUtterance{Text: "hi"}))
			if !m.Generating() {
				t.Fatalf("expected generating while in flight")
			}
			mustHandle(t, m, tc.done(chat.Tag))
			if m.Generating() {
				t.Fatalf("generating must clear after the call resolves")
			}
			lines := roles(m.Transcript())
			if last := lines[len(lines)-1]; last != tc.want {
				t.Fatalf("last line: %q, want %q", last, tc.want)
			}
			issuedChat(t, mustHandle(t, m, AgentUtterance{Text: "again"}))
		})
	}
}

func TestChat_StaleResponseAfterResetIsDropped(t *testing.T) {
	m := started(t)
	chat := issuedChat(t, mustHandle(t, m, AgentUtterance{Text: "hi"}))
	mustHandle(t, m, SessionReset{})
	if effects := mustHandle(t, m, ChatSucceeded{Tag: chat.Tag, Text: "late reply"}); len(effects) != 0 {
		t.Fatalf("stale reply produced effects: %#v", effects)
	}
	mustHandle(t, m, ChatFailed{Tag: chat.Tag, Err: errors.New("late failure")})
	if got := len(m.Transcript()); got != 2 {
		t.Fatalf("stale completions must not touch the new transcript, got %v", roles(m.Transcript()))
	}

	next := issuedChat(t, mustHandle(t, m, AgentUtterance{Text: "hello again"}))
	if next.Tag.Epoch == chat.Tag.Epoch {
		t.Fatalf("epoch should advance on reset")
	}
	mustHandle(t, m, ReturnedToSelection{})
	mustHandle(t, m, ChatSucceeded{Tag: next.Tag, Text: "too late"})
	if len(m.Transcript()) != 0 {
		t.Fatalf("reply after leaving must be discarded")
	}
}

func TestSuggestion_WhileGeneratingIsNoop(t *testing.T) {
	m := started(t)
	mustHandle(t, m, AgentUtterance{Text: "hi"})
	if effects := mustHandle(t, m, SuggestionRequested{}); len(effects) != 0 || m.Suggesting() {
		t.Fatalf("suggestion during generation must be ignored: %#v", effects)
	}
}

func TestSuggestion_ReplacesInputBuffer(t *testing.T) {
	m := started(t)
	mustHandle(t, m, InputChanged{Text: "half typed"})
	effects := mustHandle(t, m, SuggestionRequested{})
	if len(effects) != 1 {
		t.Fatalf("expected exactly one request, got %#v", effects)
	}
	req, ok := effects[0].(IssueSuggestion)
	if !ok {
		t.Fatalf("expected suggestion request, got %#v", effects[0])
	}
	if again := mustHandle(t, m, SuggestionRequested{}); len(again) != 0 {
		t.Fatalf("second suggestion while one is in flight must be ignored")
	}
	mustHandle(t, m, SuggestionSucceeded{Tag: req.Tag, Text: "  Could you restart Outlook?  "})
	if got := m.View().Input; got != "Could you restart Outlook?" {
		t.Fatalf("input: %q", got)
	}
	if m.Suggesting() || len(m.Transcript()) != 2 {
		t.Fatalf("suggestion must clear its flag and leave the transcript alone")
	}
}

func TestSuggestion_FailureAppendsApology(t *testing.T) {
	m := started(t)
	req := mustHandle(t, m, SuggestionRequested{})[0].(IssueSuggestion)
	mustHandle(t, m, SuggestionFailed{Tag: req.Tag, Err: errors.New("boom")})
	lines := m.Transcript()
	if last := lines[len(lines)-1]; last.Role != transcript.RoleSystem || last.Text != SuggestionFailedMessage {
		t.Fatalf("last line: %+v", last)
	}
	if m.Suggesting() {
		t.Fatalf("suggesting must clear on failure")
	}
}

func TestSuggestion_OverlapsWithLaterChat(t *testing.T) {
	m := started(t)
	req := mustHandle(t, m, SuggestionRequested{})[0].(IssueSuggestion)
	chat := issuedChat(t, mustHandle(t, m, AgentUtterance{Text: "hello"}))
	mustHandle(t, m, ChatSucceeded{Tag: chat.Tag, Text: "hi"})
	mustHandle(t, m, SuggestionSucceeded{Tag: req.Tag, Text: "next line"})
	if m.View().Input != "next line" {
		t.Fatalf("suggestion issued before the chat should still apply")
	}
}

func TestReturnToSelection_ExportsAndClears(t *testing.T) {
	m := started(t)
	mustHandle(t, m, ListenToggled{On: true})
	mustHandle(t, m, NotesChanged{Summary: "customer rebooted"})
	mustHandle(t, m, DispositionChanged{Disposition: DispositionCallBack})
	mustHandle(t, m, ChecklistToggled{Index: 1})

	effects := mustHandle(t, m, ReturnedToSelection{})
	if len(effects) != 2 {
		t.Fatalf("effects: %#v", effects)
	}
	if _, ok := effects[0].(StopCapture); !ok {
		t.Fatalf("expected capture stop first: %#v", effects)
	}
	rec := effects[1].(Export).Record
	if rec.ScenarioID != "outlook" || rec.Disposition != "Call Back" || rec.Notes != "customer rebooted" || rec.AgentName != "Alex" {
		t.Fatalf("record: %+v", rec)
	}
	if len(rec.Checklist) != 2 || rec.Checklist[0].Done || !rec.Checklist[1].Done {
		t.Fatalf("checklist: %+v", rec.Checklist)
	}
	if len(rec.Transcript) != 2 {
		t.Fatalf("record transcript: %+v", rec.Transcript)
	}

	v := m.View()
	if v.Active || len(v.Transcript) != 0 || v.Listening {
		t.Fatalf("view after leaving: %+v", v)
	}
	if again := mustHandle(t, m, ReturnedToSelection{}); len(again) != 0 {
		t.Fatalf("leaving twice should be a no-op")
	}
}

func TestEdits_RequireSession(t *testing.T) {
	m := newTestMachine()
	for _, ev := range []Event{InputChanged{}, NotesChanged{}, DispositionChanged{}, ChecklistToggled{}} {
		if _, err := m.Handle(ev); !errors.Is(err, ErrNoSession) {
			t.Fatalf("%T: expected ErrNoSession, got %v", ev, err)
		}
	}
	if _, err := m.Handle(AgentNameChanged{Name: "Sam"}); err != nil {
		t.Fatalf("agent name should be editable without a session: %v", err)
	}
	mustHandle(t, m, ScenarioSelected{Scenario: outlook})
	if got := m.View().Input; got != "Hi, Sam here." {
		t.Fatalf("opening line should use the new name, got %q", got)
	}
	if _, err := m.Handle(ChecklistToggled{Index: 5}); !errors.Is(err, ErrChecklistIndex) {
		t.Fatalf("expected ErrChecklistIndex, got %v", err)
	}
}

func TestCaptureFailed_AppendsExplanation(t *testing.T) {
	m := started(t)
	mustHandle(t, m, ListenToggled{On: true})
	mustHandle(t, m, CaptureFailed{Err: &voice.Error{Code: voice.CodeUnknown, Raw: "aborted"}})
	lines := m.Transcript()
	last := lines[len(lines)-1]
	if last.Role != transcript.RoleSystem || last.Text != `An unknown speech recognition error occurred: "aborted". Please try again.` {
		t.Fatalf("last line: %+v", last)
	}
	if m.View().Listening {
		t.Fatalf("capture must be left stopped")
	}
}

func TestCaptureEnded_AllowsRestart(t *testing.T) {
	m := started(t)
	mustHandle(t, m, ListenToggled{On: true})
	before := len(m.Transcript())
	if effects := mustHandle(t, m, CaptureEnded{}); len(effects) != 0 {
		t.Fatalf("unexpected effects: %#v", effects)
	}
	if m.View().Listening || len(m.Transcript()) != before {
		t.Fatalf("ended capture must clear listening without a transcript line")
	}
	if effects := mustHandle(t, m, ListenToggled{On: true}); !reflect.DeepEqual(effects, []Effect{StartCapture{}}) {
		t.Fatalf("restart effects: %#v", effects)
	}
}

func TestListen_RequiresSession(t *testing.T) {
	m := newTestMachine()
	if effects := mustHandle(t, m, ListenToggled{On: true}); len(effects) != 0 {
		t.Fatalf("capture should not start on the selection screen")
	}
	m = started(t)
	mustHandle(t, m, ListenToggled{On: true})
	if effects := mustHandle(t, m, ListenToggled{On: true}); len(effects) != 0 {
		t.Fatalf("second start should be a no-op")
	}
	if effects := mustHandle(t, m, ListenToggled{On: false}); !reflect.DeepEqual(effects, []Effect{StopCapture{}}) {
		t.Fatalf("stop effects: %#v", effects)
	}
}

func TestReplay_EmitsEffect(t *testing.T) {
	m := started(t)
	if effects := mustHandle(t, m, ReplayRequested{}); !reflect.DeepEqual(effects, []Effect{Replay{}}) {
		t.Fatalf("effects: %#v", effects)
	}
}

func TestPrompts(t *testing.T) {
	sys := SystemInstruction(outlook)
	for _, want := range []string{
		"- Name: Dana Reyes",
		"- Product Used: Exchange",
		"- Your Problem: My email stopped arriving this morning.",
		"Do NOT suggest solutions.",
		"related to this hint: '" + outlook.SummaryHint + "'",
		"Do not mention that you are an AI. You are Dana Reyes.",
	} {
		if !strings.Contains(sys, want) {
			t.Fatalf("system instruction missing %q:\n%s", want, sys)
		}
	}

	prompt := SuggestionPrompt(outlook, []transcript.Line{
		{Role: transcript.RoleSystem, Text: "Scenario loaded: Outlook not syncing"},
		{Role: transcript.RoleCustomer, Text: "Help"},
	})
	if !strings.Contains(prompt, "Transcript:\nsystem: Scenario loaded: Outlook not syncing\ncustomer: Help\n\nAgent's next line:") {
		t.Fatalf("prompt transcript rendering:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Do not explain your suggestion or add quotation marks") {
		t.Fatalf("prompt missing instruction")
	}
}

func TestParseDisposition(t *testing.T) {
	for _, d := range Dispositions {
		if got, err := ParseDisposition(string(d)); err != nil || got != d {
			t.Fatalf("ParseDisposition(%q) = %q, %v", d, got, err)
		}
	}
	if _, err := ParseDisposition("Closed"); err == nil {
		t.Fatalf("expected error for unknown disposition")
	}
}
