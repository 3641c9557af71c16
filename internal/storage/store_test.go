package storage

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.sqlite3"), "skipjs_", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SessionLifecycle(t *testing.T) {
	s := openTestStore(t)

	err := s.CreateSession(&SessionRecord{
		SessionID: "s1",
		Target:    "TAB1",
		StartedAt: 1000,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := s.BumpCounter("s1", "suppressed"); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if err := s.BumpCounter("s1", "suppressed"); err != nil {
		t.Fatalf("bump: %v", err)
	}
	if err := s.FinishSession("s1", 2000); err != nil {
		t.Fatalf("finish: %v", err)
	}

	sessions, err := s.Sessions(10)
	if err != nil {
		t.Fatalf("query sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.SessionID != "s1" || got.Target != "TAB1" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Suppressed != 2 {
		t.Fatalf("suppressed = %d, want 2", got.Suppressed)
	}
	if got.EndedAt != 2000 {
		t.Fatalf("ended at = %d, want 2000", got.EndedAt)
	}
}

func TestRecorder_HandlesEvents(t *testing.T) {
	s := openTestStore(t)
	events := make(chan model.Event, 16)
	r := NewRecorder(s, events, nil)
	go r.Run()

	now := time.Now().UnixMilli()
	events <- model.Event{Type: model.EventAttached, Session: "s1", Target: "TAB1", Timestamp: now}
	events <- model.Event{
		Type: model.EventSuppressed, Session: "s1", Target: "TAB1",
		Direction: "web -> devtools",
		Payload:   []byte(`{"method":"Debugger.paused","params":{"reason":"other","callFrames":[{"functionName":"x"}]}}`),
		Timestamp: now + 1,
	}
	events <- model.Event{Type: model.EventInjected, Session: "s1", Target: "TAB1", Detail: "Debugger.resume", Timestamp: now + 2}
	events <- model.Event{Type: model.EventDetached, Session: "s1", Target: "TAB1", Timestamp: now + 3}
	close(events)
	<-r.Done()

	sessions, err := s.Sessions(10)
	if err != nil {
		t.Fatalf("query sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Suppressed != 1 || sessions[0].Injected != 1 {
		t.Fatalf("counters = %+v", sessions[0])
	}
	if sessions[0].EndedAt != now+3 {
		t.Fatalf("ended at = %d, want %d", sessions[0].EndedAt, now+3)
	}

	evts, err := s.Events("s1")
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	// attached / suppressed / injected 三条，detached 只补记结束时间
	if len(evts) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evts))
	}
	for _, e := range evts {
		if e.Type == model.EventSuppressed && strings.Contains(e.Payload, "callFrames") {
			t.Fatalf("payload must be clipped: %s", e.Payload)
		}
	}
}

func TestClipPayload(t *testing.T) {
	if got := clipPayload(nil); got != "" {
		t.Fatalf("empty payload = %q", got)
	}

	msg := `{"method":"Debugger.paused","params":{"reason":"other","callFrames":[{"functionName":"a"},{"functionName":"b"}]}}`
	got := clipPayload([]byte(msg))
	if strings.Contains(got, "callFrames") {
		t.Fatalf("call frames must be dropped: %s", got)
	}
	if !strings.Contains(got, `"reason":"other"`) {
		t.Fatalf("other fields must survive: %s", got)
	}

	long := strings.Repeat("x", maxPayload*2)
	if got := clipPayload([]byte(long)); len(got) != maxPayload {
		t.Fatalf("long payload length = %d, want %d", len(got), maxPayload)
	}
}
