package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/busyline/schema"
)

type fakeSessions struct {
	mu     sync.Mutex
	conns  []schema.Conn
	err    error
	linked map[schema.ConnID]bool
}

func (f *fakeSessions) ListConns(context.Context) ([]schema.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]schema.Conn(nil), f.conns...), nil
}

func (f *fakeSessions) Linked(id schema.ConnID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linked[id]
}

func (f *fakeSessions) set(conns ...schema.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = conns
}

type fakePublisher struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakePublisher) Publish(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lines)
}

func (f *fakePublisher) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lines) == 0 {
		return ""
	}
	return f.lines[len(f.lines)-1]
}

type fakeSink struct {
	mu     sync.Mutex
	status []schema.StatusEvent
	conns  []schema.ConnEvent
}

func (f *fakeSink) OnStatus(event schema.StatusEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = append(f.status, event)
}

func (f *fakeSink) OnConn(event schema.ConnEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conns = append(f.conns, event)
}

func (f *fakeSink) connEvents(typ schema.ConnEventType) []schema.ConnEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []schema.ConnEvent
	for _, ev := range f.conns {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeSink) waitStatus(t *testing.T, reason schema.StatusReason) schema.StatusEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		for _, ev := range f.status {
			if ev.Reason == reason {
				f.mu.Unlock()
				return ev
			}
		}
		f.mu.Unlock()
		if time.Now().After(deadline) {
			t.Fatalf("no status event with reason %q", reason)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeTransport struct {
	mu      sync.Mutex
	err     error
	reqs    []schema.Request
	pending []ReplyFunc
}

func (f *fakeTransport) fn(ctx context.Context, conn schema.Conn, req schema.Request, reply ReplyFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.reqs = append(f.reqs, req)
	f.pending = append(f.pending, reply)
	return nil
}

func (f *fakeTransport) deliver(t *testing.T, i int, resp schema.Response) {
	t.Helper()
	f.mu.Lock()
	if i >= len(f.pending) {
		f.mu.Unlock()
		t.Fatalf("no pending reply %d", i)
	}
	reply := f.pending[i]
	f.mu.Unlock()
	reply(resp)
}

func newTestService(t *testing.T, sessions *fakeSessions, tr *fakeTransport) (Service, *fakePublisher, *fakeSink) {
	t.Helper()
	pub := &fakePublisher{}
	sink := &fakeSink{}
	var transport TransportFunc
	if tr != nil {
		transport = tr.fn
	}
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{
		Sessions:  sessions,
		Transport: transport,
		Publisher: pub,
		EventSink: sink,
		Markup:    fakeMarkup{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, pub, sink
}

func twoConns() *fakeSessions {
	return &fakeSessions{
		conns: []schema.Conn{
			{ID: "a", Name: "claude-main"},
			{ID: "b", Name: "bar"},
		},
		linked: map[schema.ConnID]bool{"a": true, "b": true},
	}
}

func TestServiceSendMarksBusyUntilReply(t *testing.T) {
	sessions := twoConns()
	tr := &fakeTransport{}
	svc, pub, sink := newTestService(t, sessions, tr)
	ctx := context.Background()

	resp, err := svc.Send(ctx, schema.SendRequest{Conn: "a", Req: schema.Request{Method: "prompt"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected a generated request id")
	}

	list, err := svc.ListConns(ctx, schema.ListConnsRequest{})
	if err != nil {
		t.Fatalf("list conns: %v", err)
	}
	if list.Conns[0].State != schema.ConnStateBusy {
		t.Fatalf("conn a state = %q, want busy", list.Conns[0].State)
	}
	if list.Conns[1].State != schema.ConnStateIdle {
		t.Fatalf("conn b state = %q, want idle", list.Conns[1].State)
	}
	if !strings.Contains(pub.last(), "<"+string(schema.DefaultBusyColor)+">C</>") {
		t.Fatalf("published line = %q, want busy claude label", pub.last())
	}
	if got := sink.connEvents(schema.ConnEventBusy); len(got) != 1 || got[0].Conn.ID != "a" {
		t.Fatalf("busy events = %+v", got)
	}

	tr.deliver(t, 0, schema.Response{ID: resp.RequestID})

	list, err = svc.ListConns(ctx, schema.ListConnsRequest{})
	if err != nil {
		t.Fatalf("list conns: %v", err)
	}
	if list.Conns[0].State != schema.ConnStateIdle {
		t.Fatalf("conn a state = %q after reply, want idle", list.Conns[0].State)
	}
	if !strings.Contains(pub.last(), "<"+string(schema.DefaultOtherIdleColor)+">C</>") {
		t.Fatalf("published line = %q, want idle claude label", pub.last())
	}
	if got := sink.connEvents(schema.ConnEventIdle); len(got) != 1 {
		t.Fatalf("idle events = %+v", got)
	}
	if st := list.Conns[0].Stats; st.Requests != 1 || st.Replies != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestServiceSendKeepsExplicitRequestID(t *testing.T) {
	tr := &fakeTransport{}
	svc, _, _ := newTestService(t, twoConns(), tr)
	resp, err := svc.Send(context.Background(), schema.SendRequest{
		Conn: "a",
		Req:  schema.Request{ID: "r-7", Method: "prompt"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.RequestID != "r-7" {
		t.Fatalf("request id = %q", resp.RequestID)
	}
	if tr.reqs[0].ID != "r-7" {
		t.Fatalf("transport saw id %q", tr.reqs[0].ID)
	}
}

func TestServiceSendValidation(t *testing.T) {
	tr := &fakeTransport{}
	svc, _, _ := newTestService(t, twoConns(), tr)
	ctx := context.Background()

	if _, err := svc.Send(ctx, schema.SendRequest{Conn: "BAD ID", Req: schema.Request{Method: "x"}}); !errors.Is(err, schema.ErrInvalidConn) {
		t.Fatalf("bad id err = %v", err)
	}
	if _, err := svc.Send(ctx, schema.SendRequest{Conn: "a"}); !errors.Is(err, schema.ErrEmptyRequest) {
		t.Fatalf("empty request err = %v", err)
	}
	if _, err := svc.Send(ctx, schema.SendRequest{Conn: "ghost", Req: schema.Request{Method: "x"}}); !errors.Is(err, schema.ErrConnNotFound) {
		t.Fatalf("unknown conn err = %v", err)
	}

	noTransport, _, _ := newTestService(t, twoConns(), nil)
	if _, err := noTransport.Send(ctx, schema.SendRequest{Conn: "a", Req: schema.Request{Method: "x"}}); !errors.Is(err, schema.ErrNoTransport) {
		t.Fatalf("no transport err = %v", err)
	}
}

func TestServiceSendTransportErrorKeepsBusy(t *testing.T) {
	tr := &fakeTransport{err: errors.New("socket gone")}
	svc, _, _ := newTestService(t, twoConns(), tr)
	ctx := context.Background()

	_, err := svc.Send(ctx, schema.SendRequest{Conn: "a", Req: schema.Request{Method: "x"}})
	if err == nil || !strings.Contains(err.Error(), "socket gone") {
		t.Fatalf("err = %v, want the transport error", err)
	}
	// The busy mark stays; the flag clears on a reply or a forced stop.
	list, err := svc.ListConns(ctx, schema.ListConnsRequest{})
	if err != nil {
		t.Fatalf("list conns: %v", err)
	}
	if list.Conns[0].State != schema.ConnStateBusy {
		t.Fatalf("conn a state = %q after failed send, want busy", list.Conns[0].State)
	}
}

func TestServiceDetachDisablesTracking(t *testing.T) {
	tr := &fakeTransport{}
	svc, pub, _ := newTestService(t, twoConns(), tr)
	ctx := context.Background()

	list, err := svc.ListConns(ctx, schema.ListConnsRequest{})
	if err != nil {
		t.Fatalf("list conns: %v", err)
	}
	if !list.Attached {
		t.Fatalf("interceptor must start attached")
	}

	detach, err := svc.Detach(ctx, schema.DetachRequest{})
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if detach.Attached || !detach.Changed {
		t.Fatalf("detach = %+v", detach)
	}
	if again, _ := svc.Detach(ctx, schema.DetachRequest{}); again.Changed {
		t.Fatalf("second detach must be a no-op")
	}

	before := pub.count()
	resp, err := svc.Send(ctx, schema.SendRequest{Conn: "a", Req: schema.Request{Method: "x"}})
	if err != nil {
		t.Fatalf("send while detached: %v", err)
	}
	tr.deliver(t, 0, schema.Response{ID: resp.RequestID})

	// Detached sends pass straight through with no marks and no renders.
	if pub.count() != before {
		t.Fatalf("publishes while detached: %d", pub.count()-before)
	}
	list, err = svc.ListConns(ctx, schema.ListConnsRequest{})
	if err != nil {
		t.Fatalf("list conns: %v", err)
	}
	if list.Conns[0].State != schema.ConnStateIdle {
		t.Fatalf("conn a state = %q while detached, want idle", list.Conns[0].State)
	}

	attach, err := svc.Attach(ctx, schema.AttachRequest{})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !attach.Attached || !attach.Changed {
		t.Fatalf("attach = %+v", attach)
	}
	if again, _ := svc.Attach(ctx, schema.AttachRequest{}); again.Changed {
		t.Fatalf("second attach must be a no-op")
	}
	if _, err := svc.Send(ctx, schema.SendRequest{Conn: "a", Req: schema.Request{Method: "x"}}); err != nil {
		t.Fatalf("send after attach: %v", err)
	}
	list, _ = svc.ListConns(ctx, schema.ListConnsRequest{})
	if list.Conns[0].State != schema.ConnStateBusy {
		t.Fatalf("conn a state = %q after re-attach, want busy", list.Conns[0].State)
	}
}

func TestServiceReplyAfterDetachStillMarksIdle(t *testing.T) {
	tr := &fakeTransport{}
	svc, _, _ := newTestService(t, twoConns(), tr)
	ctx := context.Background()

	resp, err := svc.Send(ctx, schema.SendRequest{Conn: "a", Req: schema.Request{Method: "x"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	list, _ := svc.ListConns(ctx, schema.ListConnsRequest{})
	if list.Conns[0].State != schema.ConnStateBusy {
		t.Fatalf("conn a state = %q before reply, want busy", list.Conns[0].State)
	}

	if _, err := svc.Detach(ctx, schema.DetachRequest{}); err != nil {
		t.Fatalf("detach: %v", err)
	}
	tr.deliver(t, 0, schema.Response{ID: resp.RequestID})

	// The callback registered while attached still clears the flag.
	list, _ = svc.ListConns(ctx, schema.ListConnsRequest{})
	if list.Conns[0].State != schema.ConnStateIdle {
		t.Fatalf("conn a state = %q after reply, want idle", list.Conns[0].State)
	}
}

func TestServiceStopAllResetsEnumeratedOnly(t *testing.T) {
	sessions := twoConns()
	tr := &fakeTransport{}
	svc, _, sink := newTestService(t, sessions, tr)
	ctx := context.Background()

	if _, err := svc.Send(ctx, schema.SendRequest{Conn: "a", Req: schema.Request{Method: "x"}}); err != nil {
		t.Fatalf("send a: %v", err)
	}
	if _, err := svc.Send(ctx, schema.SendRequest{Conn: "b", Req: schema.Request{Method: "x"}}); err != nil {
		t.Fatalf("send b: %v", err)
	}

	// Drop b from the enumeration; its stale busy flag must survive the
	// reset.
	sessions.set(schema.Conn{ID: "a", Name: "claude-main"})
	resp, err := svc.StopAll(ctx, schema.StopAllRequest{})
	if err != nil {
		t.Fatalf("stop all: %v", err)
	}
	if resp.Stopped != 1 {
		t.Fatalf("stopped = %d, want 1", resp.Stopped)
	}
	sink.waitStatus(t, schema.ReasonStopAll)

	sessions.set(
		schema.Conn{ID: "a", Name: "claude-main"},
		schema.Conn{ID: "b", Name: "bar"},
	)
	list, err := svc.ListConns(ctx, schema.ListConnsRequest{})
	if err != nil {
		t.Fatalf("list conns: %v", err)
	}
	if list.Conns[0].State != schema.ConnStateIdle {
		t.Fatalf("conn a state = %q, want idle", list.Conns[0].State)
	}
	if list.Conns[1].State != schema.ConnStateBusy {
		t.Fatalf("conn b state = %q, want busy (was not enumerated)", list.Conns[1].State)
	}

	resp, err = svc.StopAll(ctx, schema.StopAllRequest{})
	if err != nil {
		t.Fatalf("second stop all: %v", err)
	}
	if resp.Stopped != 1 {
		t.Fatalf("second stopped = %d, want 1", resp.Stopped)
	}
	if resp, _ = svc.StopAll(ctx, schema.StopAllRequest{}); resp.Stopped != 0 {
		t.Fatalf("third stopped = %d, want 0", resp.Stopped)
	}
	list, _ = svc.ListConns(ctx, schema.ListConnsRequest{})
	if list.Conns[1].Stats.ForcedIdle != 1 {
		t.Fatalf("forced idle count = %d", list.Conns[1].Stats.ForcedIdle)
	}
}

func TestServiceStatusRendersFreshWithoutPublishing(t *testing.T) {
	tr := &fakeTransport{}
	svc, pub, _ := newTestService(t, twoConns(), tr)
	ctx := context.Background()

	resp, err := svc.Send(ctx, schema.SendRequest{Conn: "a", Req: schema.Request{Method: "x"}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	before := pub.count()
	status, err := svc.Status(ctx, schema.StatusRequest{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(status.Line, "<"+string(schema.DefaultBusyColor)+">C</>") {
		t.Fatalf("status line = %q, want busy label", status.Line)
	}
	tr.deliver(t, 0, schema.Response{ID: resp.RequestID})
	status, err = svc.Status(ctx, schema.StatusRequest{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if strings.Contains(status.Line, "<"+string(schema.DefaultBusyColor)+">") {
		t.Fatalf("status line = %q, want no busy label after reply", status.Line)
	}
	// Status is a read; the one extra publish came from the reply.
	if pub.count() != before+1 {
		t.Fatalf("publishes = %d, want %d", pub.count(), before+1)
	}
}

func TestServiceStatusMarkupOverride(t *testing.T) {
	svc, _, _ := newTestService(t, twoConns(), nil)
	ctx := context.Background()

	status, err := svc.Status(ctx, schema.StatusRequest{Markup: schema.MarkupPlain})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Line != "C|bar" {
		t.Fatalf("plain line = %q", status.Line)
	}
	status, err = svc.Status(ctx, schema.StatusRequest{Markup: schema.MarkupTmux})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(status.Line, "#[fg="+string(schema.DefaultOtherIdleColor)+"]") {
		t.Fatalf("tmux line = %q", status.Line)
	}
	if _, err := svc.Status(ctx, schema.StatusRequest{Markup: "html"}); !errors.Is(err, schema.ErrInvalidRequest) {
		t.Fatalf("unknown markup err = %v", err)
	}
	// The override must not stick to the formatter.
	status, err = svc.Status(ctx, schema.StatusRequest{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(status.Line, "<"+string(schema.DefaultOtherIdleColor)+">") {
		t.Fatalf("default line = %q, want fake markup tokens", status.Line)
	}
}

func TestServiceConfigurePersistsOverrides(t *testing.T) {
	dir := t.TempDir()
	sessions := twoConns()
	newSvc := func() Service {
		svc, err := NewService(schema.ServiceConfig{StateDir: dir}, ServiceDeps{
			Sessions: sessions,
			Markup:   fakeMarkup{},
		})
		if err != nil {
			t.Fatalf("new service: %v", err)
		}
		return svc
	}
	svc := newSvc()
	ctx := context.Background()
	sep := " / "
	resp, err := svc.Configure(ctx, schema.ConfigureRequest{Display: schema.DisplayPatch{Separator: &sep}})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if resp.Display.Separator != " / " {
		t.Fatalf("separator = %q", resp.Display.Separator)
	}

	status, err := newSvc().Status(ctx, schema.StatusRequest{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(status.Line, " / ") {
		t.Fatalf("restarted service line = %q, want saved separator", status.Line)
	}
}

func TestServiceConfigureRejectsBadPatch(t *testing.T) {
	svc, pub, _ := newTestService(t, twoConns(), nil)
	bad := "nope"
	before := pub.count()
	if _, err := svc.Configure(context.Background(), schema.ConfigureRequest{
		Display: schema.DisplayPatch{BusyColor: &bad},
	}); !errors.Is(err, schema.ErrInvalidColor) {
		t.Fatalf("err = %v", err)
	}
	if pub.count() != before {
		t.Fatalf("failed configure must not publish")
	}
}

func TestServiceRunTracksFocus(t *testing.T) {
	sessions := twoConns()
	signal := newFakeSignal()
	resolver := &fakeResolver{}
	pub := &fakePublisher{}
	sink := &fakeSink{}
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, ServiceDeps{
		Sessions:  sessions,
		Publisher: pub,
		EventSink: sink,
		Signal:    signal,
		Resolver:  resolver,
		Markup:    fakeMarkup{},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	resolver.set(schema.Conn{ID: "b", Name: "bar"}, true)
	signal.fire()
	ev := sink.waitStatus(t, schema.ReasonFocus)
	if ev.Conn != "b" {
		t.Fatalf("focus event conn = %q", ev.Conn)
	}
	want := "<" + string(schema.DefaultCurrentMarkColor) + ">" +
		"<" + string(schema.DefaultCurrentIdleColor) + ">bar</>" + "</>"
	if !strings.Contains(ev.Line, want) {
		t.Fatalf("line = %q, want current wrapper %q", ev.Line, want)
	}
	if got := sink.connEvents(schema.ConnEventCurrent); len(got) != 1 || got[0].Conn.ID != "b" {
		t.Fatalf("current events = %+v", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestServiceSourceErrorSurfacesOnReads(t *testing.T) {
	sessions := &fakeSessions{err: errors.New("listing broke")}
	svc, _, _ := newTestService(t, sessions, nil)
	ctx := context.Background()
	if _, err := svc.Status(ctx, schema.StatusRequest{}); err == nil {
		t.Fatalf("expected status error")
	}
	if _, err := svc.ListConns(ctx, schema.ListConnsRequest{}); err == nil {
		t.Fatalf("expected list error")
	}
	if _, err := svc.StopAll(ctx, schema.StopAllRequest{}); err == nil {
		t.Fatalf("expected stop all error")
	}
}
