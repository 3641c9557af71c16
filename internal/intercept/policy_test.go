package intercept

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/Hosinoharu/SkipJSDebugger/internal/logger"
	"github.com/Hosinoharu/SkipJSDebugger/pkg/model"
)

type fakeSender struct {
	sent [][]byte
	err  error
}

func (f *fakeSender) Send(msg []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestPolicy() *Policy {
	return New("lovedebug", "From 52pj", nil, logger.NewNop())
}

var testInfo = model.ConnectionInfo{Target: "t1", Des: "web -> devtools"}

func TestFromWeb_PausedInMarker_SendsStepOut(t *testing.T) {
	p := newTestPolicy()
	from := &fakeSender{}
	msg := []byte(`{"id":5,"method":"Debugger.paused","params":{"reason":"other","hitBreakpoints":[],"callFrames":[{"functionName":"lovedebug"}]}}`)

	out := p.FromWeb(from, testInfo, msg)
	if out != nil {
		t.Fatalf("expected message suppressed, got %s", out)
	}
	if len(from.sent) != 1 {
		t.Fatalf("expected 1 injected command, got %d", len(from.sent))
	}
	want := `{"id":0,"method":"Debugger.stepOut","params":{}}`
	if string(from.sent[0]) != want {
		t.Fatalf("injected = %s, want %s", from.sent[0], want)
	}
}

func TestFromWeb_PausedAtCallSite_SendsResume(t *testing.T) {
	p := newTestPolicy()
	from := &fakeSender{}
	msg := []byte(`{"id":5,"method":"Debugger.paused","params":{"reason":"other","hitBreakpoints":[],"callFrames":[{"functionName":"someOtherFn"}]}}`)

	out := p.FromWeb(from, testInfo, msg)
	if out != nil {
		t.Fatalf("expected message suppressed, got %s", out)
	}
	if len(from.sent) != 1 {
		t.Fatalf("expected 1 injected command, got %d", len(from.sent))
	}
	want := `{"id":0,"method":"Debugger.resume","params":{"terminateOnResume":false}}`
	if string(from.sent[0]) != want {
		t.Fatalf("injected = %s, want %s", from.sent[0], want)
	}
}

func TestFromWeb_RealPause_Forwarded(t *testing.T) {
	p := newTestPolicy()
	from := &fakeSender{}
	msg := []byte(`{"id":7,"method":"Debugger.paused","params":{"reason":"exception","hitBreakpoints":[]}}`)

	out := p.FromWeb(from, testInfo, msg)
	if !bytes.Equal(out, msg) {
		t.Fatalf("expected message forwarded unchanged, got %s", out)
	}
	if len(from.sent) != 0 {
		t.Fatalf("expected no injected command, got %d", len(from.sent))
	}
}

func TestFromWeb_HitBreakpoints_Forwarded(t *testing.T) {
	p := newTestPolicy()
	from := &fakeSender{}
	msg := []byte(`{"method":"Debugger.paused","params":{"reason":"other","hitBreakpoints":["bp1"],"callFrames":[{"functionName":"lovedebug"}]}}`)

	if out := p.FromWeb(from, testInfo, msg); !bytes.Equal(out, msg) {
		t.Fatalf("real breakpoint must be forwarded, got %s", out)
	}
	if len(from.sent) != 0 {
		t.Fatalf("expected no injected command, got %d", len(from.sent))
	}
}

func TestFromWeb_SyntheticReply_Dropped(t *testing.T) {
	p := newTestPolicy()
	from := &fakeSender{}
	msg := []byte(`{"id":0,"method":"Debugger.resume","params":{}}`)

	if out := p.FromWeb(from, testInfo, msg); out != nil {
		t.Fatalf("id 0 reply must be dropped, got %s", out)
	}
	if len(from.sent) != 0 {
		t.Fatalf("expected no injected command, got %d", len(from.sent))
	}
}

func TestFromWeb_NestedZeroID_NotDropped(t *testing.T) {
	p := newTestPolicy()
	// 只有顶层 id 为 0 才是服务端命令的应答，嵌套字段不算
	msg := []byte(`{"id":9,"result":{"value":{"id":0}}}`)

	if out := p.FromWeb(&fakeSender{}, testInfo, msg); !bytes.Equal(out, msg) {
		t.Fatalf("nested id 0 must be forwarded, got %s", out)
	}
}

func TestFromWeb_EmptyCallFrames_Forwarded(t *testing.T) {
	p := newTestPolicy()
	from := &fakeSender{}
	msg := []byte(`{"method":"Debugger.paused","params":{"reason":"other","hitBreakpoints":[],"callFrames":[]}}`)

	if out := p.FromWeb(from, testInfo, msg); !bytes.Equal(out, msg) {
		t.Fatalf("pause without call frames must be forwarded, got %s", out)
	}
	if len(from.sent) != 0 {
		t.Fatalf("expected no injected command, got %d", len(from.sent))
	}
}

func TestFromWeb_MalformedMessages_Forwarded(t *testing.T) {
	p := newTestPolicy()
	tests := []struct {
		name string
		msg  string
	}{
		{"no method", `{"id":3,"result":{}}`},
		{"other method", `{"method":"Network.requestWillBeSent","params":{}}`},
		{"no params", `{"method":"Debugger.paused"}`},
		{"params not object", `{"method":"Debugger.paused","params":5}`},
		{"no reason", `{"method":"Debugger.paused","params":{"callFrames":[]}}`},
		{"not json", `hello world`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := &fakeSender{}
			out := p.FromWeb(from, testInfo, []byte(tt.msg))
			if string(out) != tt.msg {
				t.Fatalf("expected forwarded unchanged, got %s", out)
			}
			if len(from.sent) != 0 {
				t.Fatalf("expected no injected command, got %d", len(from.sent))
			}
		})
	}
}

func TestFromWeb_InjectFails_ForwardsPause(t *testing.T) {
	p := newTestPolicy()
	from := &fakeSender{err: errors.New("closed")}
	msg := []byte(`{"method":"Debugger.paused","params":{"reason":"other","callFrames":[{"functionName":"lovedebug"}]}}`)

	// 发不出去修正命令时放弃拦截，让 devtools 看到这次暂停
	if out := p.FromWeb(from, testInfo, msg); !bytes.Equal(out, msg) {
		t.Fatalf("expected forwarded after send failure, got %s", out)
	}
}

func TestFromDevtools_RewritesFirstOccurrence(t *testing.T) {
	p := newTestPolicy()
	msg := []byte(`{"id":1,"method":"Overlay.setPausedInDebuggerMessage","params":{"message":"Paused in debugger / Paused in debugger"}}`)

	out := p.FromDevtools(&fakeSender{}, testInfo, msg)
	if out == nil {
		t.Fatal("devtools direction must never drop")
	}
	if got := strings.Count(string(out), "Paused in debugger - Surprise From 52pj"); got != 1 {
		t.Fatalf("expected exactly 1 rewrite, got %d in %s", got, out)
	}
	if !strings.Contains(string(out), `/ Paused in debugger`) {
		t.Fatalf("second occurrence must stay untouched: %s", out)
	}
}

func TestFromDevtools_OtherMessages_Untouched(t *testing.T) {
	p := newTestPolicy()
	tests := []string{
		`{"id":2,"method":"Debugger.enable"}`,
		`{"id":3,"method":"Overlay.setPausedInDebuggerMessage","params":{}}`,
		`Paused in debugger`,
	}
	for _, msg := range tests {
		if out := p.FromDevtools(&fakeSender{}, testInfo, []byte(msg)); string(out) != msg {
			t.Fatalf("expected unchanged, got %s", out)
		}
	}
}

func TestEvents_SuppressedAndInjected(t *testing.T) {
	events := make(chan model.Event, 8)
	p := New("lovedebug", "From 52pj", events, logger.NewNop())
	msg := []byte(`{"method":"Debugger.paused","params":{"reason":"other","callFrames":[{"functionName":"x"}]}}`)

	p.FromWeb(&fakeSender{}, testInfo, msg)
	close(events)

	var types []string
	for evt := range events {
		types = append(types, evt.Type)
	}
	want := []string{model.EventInjected, model.EventSuppressed}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}
