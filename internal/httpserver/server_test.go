package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chadiek/support-trainer/internal/conversation"
	"github.com/chadiek/support-trainer/internal/scenario"
	"github.com/chadiek/support-trainer/internal/session"
	"github.com/chadiek/support-trainer/internal/voice"
)

type fakeTrainer struct {
	mu        sync.Mutex
	events    []conversation.Event
	posted    chan conversation.Event
	fed       chan []byte
	views     chan conversation.View
	err       error
	selectErr error
	selected  string
}

func newFakeTrainer() *fakeTrainer {
	return &fakeTrainer{
		posted: make(chan conversation.Event, 4),
		fed:    make(chan []byte, 4),
		views:  make(chan conversation.View, 1),
	}
}

func (f *fakeTrainer) Dispatch(ctx context.Context, ev conversation.Event) (conversation.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return conversation.View{Active: true, Epoch: uint64(len(f.events))}, f.err
}

func (f *fakeTrainer) Post(ev conversation.Event) { f.posted <- ev }

func (f *fakeTrainer) Select(ctx context.Context, id, agentName string) (conversation.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = id
	return conversation.View{Active: true, AgentName: agentName}, f.selectErr
}

func (f *fakeTrainer) View() conversation.View { return conversation.View{} }

func (f *fakeTrainer) FeedAudio(pcm []byte) { f.fed <- pcm }

func (f *fakeTrainer) Subscribe() (<-chan conversation.View, func()) {
	return f.views, func() {}
}

func (f *fakeTrainer) last() conversation.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return nil
	}
	return f.events[len(f.events)-1]
}

type fakeSpeech struct {
	mu       sync.Mutex
	attached voice.PCMSink
}

func (f *fakeSpeech) Attach(p voice.PCMSink) func() {
	f.mu.Lock()
	f.attached = p
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.attached = nil
		f.mu.Unlock()
	}
}

func (f *fakeSpeech) sink() voice.PCMSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached
}

func newTestServer(t *testing.T, tr *fakeTrainer) http.Handler {
	t.Helper()
	cat, err := scenario.Builtin()
	if err != nil {
		t.Fatalf("builtin catalog: %v", err)
	}
	return New(Handlers{Trainer: tr, Catalog: cat})
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestServer_Healthz(t *testing.T) {
	w := do(newTestServer(t, newFakeTrainer()), http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "ok" {
		t.Fatalf("unexpected body: %q", w.Body.String())
	}
}

func TestServer_Scenarios(t *testing.T) {
	h := newTestServer(t, newFakeTrainer())

	w := do(h, http.MethodGet, "/api/scenarios?q=teams", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list []scenario.Scenario
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) == 0 {
		t.Fatalf("expected a teams scenario")
	}

	w = do(h, http.MethodGet, "/api/scenarios?q=zzz-no-match", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %q", w.Body.String())
	}
}

func TestServer_EventsReachTrainer(t *testing.T) {
	tr := newFakeTrainer()
	h := newTestServer(t, tr)

	cases := []struct {
		method, path, body string
		want               conversation.Event
	}{
		{http.MethodPost, "/api/session/utterances", `{"text":"hello"}`, conversation.AgentUtterance{Text: "hello", Source: conversation.SourceTyped}},
		{http.MethodPost, "/api/session/reset", "", conversation.SessionReset{}},
		{http.MethodDelete, "/api/session", "", conversation.ReturnedToSelection{}},
		{http.MethodPost, "/api/session/suggestion", "", conversation.SuggestionRequested{}},
		{http.MethodPut, "/api/session/input", `{"text":"draft"}`, conversation.InputChanged{Text: "draft"}},
		{http.MethodPut, "/api/session/notes", `{"summary":"n"}`, conversation.NotesChanged{Summary: "n"}},
		{http.MethodPut, "/api/session/disposition", `{"disposition":"Resolved"}`, conversation.DispositionChanged{Disposition: conversation.DispositionResolved}},
		{http.MethodPost, "/api/session/checklist/2", "", conversation.ChecklistToggled{Index: 2}},
		{http.MethodPost, "/api/session/listen", `{"on":true}`, conversation.ListenToggled{On: true}},
		{http.MethodPost, "/api/session/replay", "", conversation.ReplayRequested{}},
		{http.MethodPut, "/api/agent", `{"name":"Sam"}`, conversation.AgentNameChanged{Name: "Sam"}},
	}
	for _, tc := range cases {
		w := do(h, tc.method, tc.path, tc.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d (%s)", tc.method, tc.path, w.Code, w.Body.String())
		}
		if got := tr.last(); got != tc.want {
			t.Fatalf("%s %s: got event %#v, want %#v", tc.method, tc.path, got, tc.want)
		}
	}
}

func TestServer_SelectScenario(t *testing.T) {
	tr := newFakeTrainer()
	h := newTestServer(t, tr)

	w := do(h, http.MethodPost, "/api/session", `{"scenarioId":"license-expired","agentName":"Sam"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var v conversation.View
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.selected != "license-expired" || v.AgentName != "Sam" {
		t.Fatalf("selected=%q view=%+v", tr.selected, v)
	}

	if w := do(h, http.MethodPost, "/api/session", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing id: expected 400, got %d", w.Code)
	}

	tr.selectErr = session.ErrUnknownScenario
	if w := do(h, http.MethodPost, "/api/session", `{"scenarioId":"nope"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown scenario: expected 404, got %d", w.Code)
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	tr := newFakeTrainer()
	h := newTestServer(t, tr)

	tr.err = conversation.ErrNoSession
	if w := do(h, http.MethodPut, "/api/session/notes", `{"summary":"x"}`); w.Code != http.StatusConflict {
		t.Fatalf("no session: expected 409, got %d", w.Code)
	}
	tr.err = conversation.ErrChecklistIndex
	if w := do(h, http.MethodPost, "/api/session/checklist/9", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad index: expected 400, got %d", w.Code)
	}
	tr.err = session.ErrClosed
	if w := do(h, http.MethodPost, "/api/session/reset", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("closed: expected 503, got %d", w.Code)
	}
	tr.err = nil

	if w := do(h, http.MethodPut, "/api/session/disposition", `{"disposition":"Maybe"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad disposition: expected 400, got %d", w.Code)
	}
	if w := do(h, http.MethodPost, "/api/session/checklist/abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric index: expected 400, got %d", w.Code)
	}
	if w := do(h, http.MethodPost, "/api/session/utterances", `{"text":`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad json: expected 400, got %d", w.Code)
	}
}

func TestServer_WebSocket(t *testing.T) {
	tr := newFakeTrainer()
	speech := &fakeSpeech{}
	cat, err := scenario.Builtin()
	if err != nil {
		t.Fatalf("builtin catalog: %v", err)
	}
	srv := httptest.NewServer(New(Handlers{Trainer: tr, Catalog: cat, Speech: speech}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/session/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first viewMessage
	if err := conn.ReadJSON(&first); err != nil || first.Type != "view" {
		t.Fatalf("expected initial view, got %+v err=%v", first, err)
	}

	tr.views <- conversation.View{Active: true, Input: "pushed"}
	var pushed viewMessage
	if err := conn.ReadJSON(&pushed); err != nil || pushed.View.Input != "pushed" {
		t.Fatalf("expected pushed view, got %+v err=%v", pushed, err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	select {
	case pcm := <-tr.fed:
		if len(pcm) != 4 {
			t.Fatalf("unexpected pcm %v", pcm)
		}
	case <-time.After(time.Second):
		t.Fatalf("audio not fed to trainer")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"capture-error","code":"not-allowed"}`)); err != nil {
		t.Fatalf("write capture error: %v", err)
	}
	select {
	case ev := <-tr.posted:
		cf, ok := ev.(conversation.CaptureFailed)
		if !ok || cf.Err.Code != voice.CodePermissionDenied {
			t.Fatalf("unexpected event %#v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("capture error not posted")
	}

	sink := speech.sink()
	if sink == nil {
		t.Fatalf("expected speech sink to be attached")
	}
	sink.WritePCM(make([]byte, 1920))
	mt, data, err := conn.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage || len(data) != 1920 {
		t.Fatalf("expected one binary frame, got type=%d len=%d err=%v", mt, len(data), err)
	}

	conn.Close()
	deadline := time.Now().Add(time.Second)
	for speech.sink() != nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if speech.sink() != nil {
		t.Fatalf("expected sink to be detached after close")
	}
}
