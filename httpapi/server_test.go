package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/busyline/schema"
)

type fakeService struct {
	mu         sync.Mutex
	line       string
	conns      []schema.ConnSnapshot
	current    schema.ConnID
	attached   bool
	display    schema.DisplayConfig
	sent       []schema.SendRequest
	sendErr    error
	lastMarkup schema.MarkupKind
	patches    []schema.DisplayPatch
}

func (f *fakeService) Status(ctx context.Context, req schema.StatusRequest) (schema.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Markup != "" && req.Markup != schema.MarkupTmux && req.Markup != schema.MarkupANSI && req.Markup != schema.MarkupPlain {
		return schema.StatusResponse{}, fmt.Errorf("%w: unknown markup %q", schema.ErrInvalidRequest, req.Markup)
	}
	f.lastMarkup = req.Markup
	return schema.StatusResponse{Line: f.line}, nil
}

func (f *fakeService) ListConns(context.Context, schema.ListConnsRequest) (schema.ListConnsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return schema.ListConnsResponse{
		Conns:    append([]schema.ConnSnapshot(nil), f.conns...),
		Current:  f.current,
		Attached: f.attached,
	}, nil
}

func (f *fakeService) Send(ctx context.Context, req schema.SendRequest) (schema.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return schema.SendResponse{}, f.sendErr
	}
	f.sent = append(f.sent, req)
	id := req.Req.ID
	if id == "" {
		id = "r-1"
	}
	return schema.SendResponse{RequestID: id}, nil
}

func (f *fakeService) Attach(context.Context, schema.AttachRequest) (schema.AttachResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := !f.attached
	f.attached = true
	return schema.AttachResponse{Attached: true, Changed: changed}, nil
}

func (f *fakeService) Detach(context.Context, schema.DetachRequest) (schema.DetachResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	changed := f.attached
	f.attached = false
	return schema.DetachResponse{Changed: changed}, nil
}

func (f *fakeService) StopAll(context.Context, schema.StopAllRequest) (schema.StopAllResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stopped := 0
	for i := range f.conns {
		if f.conns[i].State == schema.ConnStateBusy {
			f.conns[i].State = schema.ConnStateIdle
			stopped++
		}
	}
	return schema.StopAllResponse{Stopped: stopped, Line: f.line}, nil
}

func (f *fakeService) Display(context.Context, schema.DisplayRequest) (schema.DisplayResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return schema.DisplayResponse{Display: f.display}, nil
}

func (f *fakeService) Configure(ctx context.Context, req schema.ConfigureRequest) (schema.ConfigureResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req.Display.BusyColor != nil {
		if _, err := schema.NormalizeHexColor(*req.Display.BusyColor); err != nil {
			return schema.ConfigureResponse{}, err
		}
	}
	f.patches = append(f.patches, req.Display)
	return schema.ConfigureResponse{Display: f.display}, nil
}

func (f *fakeService) Run(context.Context) error { return nil }

func (f *fakeService) sentReqs() []schema.SendRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.SendRequest(nil), f.sent...)
}

func (f *fakeService) markup() schema.MarkupKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMarkup
}

func (f *fakeService) appliedPatches() []schema.DisplayPatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.DisplayPatch(nil), f.patches...)
}

type fakeFocus struct {
	mu    sync.Mutex
	calls []schema.Conn
}

func (f *fakeFocus) Announce(conn schema.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, conn)
}

func (f *fakeFocus) last() (schema.Conn, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return schema.Conn{}, false
	}
	return f.calls[len(f.calls)-1], true
}

func (f *fakeFocus) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newFakeService() *fakeService {
	return &fakeService{
		line: "#[fg=#839496]C#[fg=default]",
		conns: []schema.ConnSnapshot{
			{ID: "a", Name: "claude-main", State: schema.ConnStateBusy, Linked: true},
			{ID: "b", Name: "codex", State: schema.ConnStateIdle, Linked: false},
		},
		current:  "a",
		attached: true,
		display:  schema.DefaultDisplayConfig(),
	}
}

func newTestServer(t *testing.T, svc *fakeService, focus *fakeFocus, hub *Hub) *httptest.Server {
	t.Helper()
	server := NewServer(Config{}, svc, focus, hub, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, payload string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestStatusEndpoint(t *testing.T) {
	svc := newFakeService()
	ts := newTestServer(t, svc, &fakeFocus{}, nil)

	var snap SnapshotPayload
	if code := getJSON(t, ts.URL+"/api/status", &snap); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if snap.Line != svc.line {
		t.Fatalf("line = %q", snap.Line)
	}
	if len(snap.Conns) != 2 || snap.Current != "a" || !snap.Attached {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Display.BusyColor != schema.DefaultBusyColor {
		t.Fatalf("display = %+v", snap.Display)
	}

	if code := getJSON(t, ts.URL+"/api/status?markup=plain", &snap); code != http.StatusOK {
		t.Fatalf("markup status code = %d", code)
	}
	if svc.markup() != schema.MarkupPlain {
		t.Fatalf("markup forwarded = %q", svc.markup())
	}
	if code := getJSON(t, ts.URL+"/api/status?markup=html", nil); code != http.StatusBadRequest {
		t.Fatalf("bad markup code = %d", code)
	}
}

func TestConnsEndpoint(t *testing.T) {
	svc := newFakeService()
	ts := newTestServer(t, svc, &fakeFocus{}, nil)

	var resp schema.ListConnsResponse
	if code := getJSON(t, ts.URL+"/api/conns", &resp); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if len(resp.Conns) != 2 || resp.Conns[0].ID != "a" || resp.Conns[0].State != schema.ConnStateBusy {
		t.Fatalf("conns = %+v", resp.Conns)
	}
}

func TestSendEndpoint(t *testing.T) {
	svc := newFakeService()
	ts := newTestServer(t, svc, &fakeFocus{}, nil)

	resp, body := postJSON(t, ts.URL+"/api/send", `{"conn":"a","method":"prompt","payload":{"text":"hi"}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", resp.StatusCode, body)
	}
	var sendResp schema.SendResponse
	if err := json.Unmarshal(body, &sendResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sendResp.RequestID != "r-1" {
		t.Fatalf("request id = %q", sendResp.RequestID)
	}
	if sent := svc.sentReqs(); len(sent) != 1 || sent[0].Conn != "a" || sent[0].Req.Method != "prompt" {
		t.Fatalf("sent = %+v", sent)
	}

	resp, _ = postJSON(t, ts.URL+"/api/send", `{"conn":"a","junk":true}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", resp.StatusCode)
	}
}

func TestSendEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{schema.ErrInvalidConn, http.StatusBadRequest},
		{schema.ErrEmptyRequest, http.StatusBadRequest},
		{schema.ErrConnNotFound, http.StatusNotFound},
		{schema.ErrNoTransport, http.StatusServiceUnavailable},
		{schema.ErrNotConnected, http.StatusServiceUnavailable},
		{errors.New("agent exploded"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		svc := newFakeService()
		svc.sendErr = tc.err
		ts := newTestServer(t, svc, &fakeFocus{}, nil)
		resp, body := postJSON(t, ts.URL+"/api/send", `{"conn":"a","method":"x"}`)
		if resp.StatusCode != tc.want {
			t.Fatalf("err %v: status = %d, want %d", tc.err, resp.StatusCode, tc.want)
		}
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
			t.Fatalf("err %v: body = %s", tc.err, body)
		}
	}
}

func TestFocusEndpoint(t *testing.T) {
	svc := newFakeService()
	focus := &fakeFocus{}
	ts := newTestServer(t, svc, focus, nil)

	resp, _ := postJSON(t, ts.URL+"/api/focus", `{"conn":"b"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if conn, ok := focus.last(); !ok || conn.ID != "b" || conn.Name != "codex" {
		t.Fatalf("announced = %+v ok=%v", conn, ok)
	}

	resp, _ = postJSON(t, ts.URL+"/api/focus", `{"conn":"ghost"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown conn status = %d", resp.StatusCode)
	}
	if focus.count() != 1 {
		t.Fatalf("unknown conn must not announce, count = %d", focus.count())
	}

	resp, _ = postJSON(t, ts.URL+"/api/focus", `{"conn":""}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d", resp.StatusCode)
	}
	if conn, _ := focus.last(); conn.ID != "" {
		t.Fatalf("clear announced = %+v", conn)
	}
}

func TestStopAllEndpoint(t *testing.T) {
	svc := newFakeService()
	ts := newTestServer(t, svc, &fakeFocus{}, nil)

	resp, body := postJSON(t, ts.URL+"/api/stopall", ``)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stopResp schema.StopAllResponse
	if err := json.Unmarshal(body, &stopResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stopResp.Stopped != 1 {
		t.Fatalf("stopped = %d", stopResp.Stopped)
	}
}

func TestAttachDetachEndpoints(t *testing.T) {
	svc := newFakeService()
	ts := newTestServer(t, svc, &fakeFocus{}, nil)

	resp, body := postJSON(t, ts.URL+"/api/detach", ``)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detach status = %d", resp.StatusCode)
	}
	var detachResp schema.DetachResponse
	if err := json.Unmarshal(body, &detachResp); err != nil || !detachResp.Changed {
		t.Fatalf("detach body = %s err = %v", body, err)
	}

	resp, body = postJSON(t, ts.URL+"/api/attach", ``)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("attach status = %d", resp.StatusCode)
	}
	var attachResp schema.AttachResponse
	if err := json.Unmarshal(body, &attachResp); err != nil || !attachResp.Attached || !attachResp.Changed {
		t.Fatalf("attach body = %s err = %v", body, err)
	}
}

func TestDisplayEndpoint(t *testing.T) {
	svc := newFakeService()
	ts := newTestServer(t, svc, &fakeFocus{}, nil)

	var displayResp schema.DisplayResponse
	if code := getJSON(t, ts.URL+"/api/display", &displayResp); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if displayResp.Display.BusyColor != schema.DefaultBusyColor {
		t.Fatalf("display = %+v", displayResp.Display)
	}

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/display", strings.NewReader(`{"busy_color":"#ff0000"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status = %d", resp.StatusCode)
	}
	if patches := svc.appliedPatches(); len(patches) != 1 || patches[0].BusyColor == nil || *patches[0].BusyColor != "#ff0000" {
		t.Fatalf("patches = %+v", patches)
	}

	req, err = http.NewRequest(http.MethodPut, ts.URL+"/api/display", strings.NewReader(`{"busy_color":"red"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad color status = %d", resp.StatusCode)
	}
}

func TestStreamReplayAndLive(t *testing.T) {
	svc := newFakeService()
	hub := NewHub(16)
	hub.OnStatus(schema.StatusEvent{Line: "one", Reason: schema.ReasonRequest, Timestamp: time.Now()})
	hub.OnStatus(schema.StatusEvent{Line: "two", Reason: schema.ReasonReply, Timestamp: time.Now()})
	hub.OnStatus(schema.StatusEvent{Line: "three", Reason: schema.ReasonFocus, Timestamp: time.Now()})
	ts := newTestServer(t, svc, &fakeFocus{}, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	readEvent := func() StreamEvent {
		t.Helper()
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event StreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				t.Fatalf("decode %q: %v", line, err)
			}
			return event
		}
		t.Fatalf("stream ended: %v", scanner.Err())
		return StreamEvent{}
	}

	first := readEvent()
	if first.Type != "snapshot" || first.Snapshot == nil || first.Snapshot.Line != svc.line {
		t.Fatalf("first event = %+v", first)
	}
	second := readEvent()
	if second.Seq != 2 || second.Status == nil || second.Status.Line != "two" {
		t.Fatalf("second event = %+v", second)
	}
	third := readEvent()
	if third.Seq != 3 || third.Status.Line != "three" {
		t.Fatalf("third event = %+v", third)
	}

	hub.OnStatus(schema.StatusEvent{Line: "four", Reason: schema.ReasonStopAll, Timestamp: time.Now()})
	live := readEvent()
	if live.Seq != 4 || live.Status.Line != "four" {
		t.Fatalf("live event = %+v", live)
	}
}

func TestMethodGuards(t *testing.T) {
	svc := newFakeService()
	ts := newTestServer(t, svc, &fakeFocus{}, nil)

	resp, _ := postJSON(t, ts.URL+"/api/status", `{}`)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("post status = %d", resp.StatusCode)
	}
	if code := getJSON(t, ts.URL+"/api/send", nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("get send = %d", code)
	}
	if code := getJSON(t, ts.URL+"/api/stopall", nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("get stopall = %d", code)
	}
}

func TestIndexAndHealthz(t *testing.T) {
	svc := newFakeService()
	ts := newTestServer(t, svc, &fakeFocus{}, nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(buf.String(), "busyline") {
		t.Fatalf("index status = %d", resp.StatusCode)
	}

	var health struct {
		OK      bool   `json:"ok"`
		Version string `json:"version"`
	}
	if code := getJSON(t, ts.URL+"/healthz", &health); code != http.StatusOK {
		t.Fatalf("healthz status = %d", code)
	}
	if !health.OK || health.Version == "" {
		t.Fatalf("healthz = %+v", health)
	}

	if code := getJSON(t, ts.URL+"/nonsense", nil); code != http.StatusNotFound {
		t.Fatalf("unknown path = %d", code)
	}
}

func TestBasePathMount(t *testing.T) {
	svc := newFakeService()
	server := NewServer(Config{BasePath: "/busy/"}, svc, &fakeFocus{}, nil, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	if code := getJSON(t, ts.URL+"/busy/api/status", nil); code != http.StatusOK {
		t.Fatalf("prefixed status = %d", code)
	}
	if code := getJSON(t, ts.URL+"/api/status", nil); code != http.StatusNotFound {
		t.Fatalf("unprefixed status = %d", code)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(ts.URL + "/busy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("redirect status = %d", resp.StatusCode)
	}
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "",
		"/":       "",
		"busy":    "/busy",
		"/busy":   "/busy",
		"/busy/":  "/busy",
		" /busy ": "/busy",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
