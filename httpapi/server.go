package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pkt.systems/busyline/core"
	"pkt.systems/busyline/internal/logx"
	"pkt.systems/busyline/internal/metrics"
	"pkt.systems/busyline/internal/version"
	"pkt.systems/busyline/schema"
)

// FocusAnnouncer records which connection the active pane maps to. The
// daemon's focus store implements it; POST /api/focus is the manual
// override next to the tmux pane watcher.
type FocusAnnouncer interface {
	Announce(conn schema.Conn)
}

// Server serves the control API and the live view.
type Server struct {
	cfg      Config
	service  core.Service
	focus    FocusAnnouncer
	hub      *Hub
	metrics  *metrics.Metrics
	basePath string
}

// NewServer constructs a control API server. The hub and metrics are
// optional; without a hub /api/stream reports unavailable, without metrics
// /metrics is not mounted.
func NewServer(cfg Config, service core.Service, focus FocusAnnouncer, hub *Hub, m *metrics.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		service:  service,
		focus:    focus,
		hub:      hub,
		metrics:  m,
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealthz)

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/conns", s.handleConns)
	mux.HandleFunc("/api/send", s.handleSend)
	mux.HandleFunc("/api/focus", s.handleFocus)
	mux.HandleFunc("/api/stopall", s.handleStopAll)
	mux.HandleFunc("/api/attach", s.handleAttach)
	mux.HandleFunc("/api/detach", s.handleDetach)
	mux.HandleFunc("/api/display", s.handleDisplay)
	mux.HandleFunc("/api/stream", s.handleStream)
	if s.metrics != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	handler := withRequestLogging(mux)
	if s.basePath == "" {
		return handler
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, handler))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

// normalizeBasePath turns a mount prefix into "/clean" form, or "" when the
// server sits at the root.
func normalizeBasePath(value string) string {
	path := strings.TrimSpace(value)
	if path == "" || path == "/" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	path = strings.TrimRight(path, "/")
	if path == "/" {
		return ""
	}
	return path
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	stat, err := fs.Stat(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, "index.html", stat.ModTime(), strings.NewReader(string(data)))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": version.Current()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	kind := schema.MarkupKind(r.URL.Query().Get("markup"))
	snapshot, err := s.buildSnapshot(r.Context(), kind)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, schema.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		log.Warn("http status failed", "err", err)
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
	log.Debug("http status ok", "conns", len(snapshot.Conns))
}

func (s *Server) handleConns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	resp, err := s.service.ListConns(r.Context(), schema.ListConnsRequest{})
	if err != nil {
		log.Warn("http conns failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http conns ok", "count", len(resp.Conns))
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	var payload struct {
		Conn    string          `json:"conn"`
		ID      string          `json:"id"`
		Method  string          `json:"method"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http send decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log = logx.WithConn(r.Context(), schema.ConnID(payload.Conn))
	ctx := logx.ContextWithConnLogger(r.Context(), log, schema.ConnID(payload.Conn))
	resp, err := s.service.Send(ctx, schema.SendRequest{
		Conn: schema.ConnID(payload.Conn),
		Req: schema.Request{
			ID:      schema.RequestID(payload.ID),
			Method:  payload.Method,
			Payload: payload.Payload,
		},
	})
	if err != nil {
		log.Warn("http send failed", "err", err)
		writeError(w, sendErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http send ok", "request", resp.RequestID)
}

// sendErrorStatus maps Send failures to HTTP statuses. Anything the service
// does not recognize came from the transport hop and surfaces as a gateway
// problem.
func sendErrorStatus(err error) int {
	switch {
	case errors.Is(err, schema.ErrInvalidConn),
		errors.Is(err, schema.ErrEmptyRequest),
		errors.Is(err, schema.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, schema.ErrConnNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrNoTransport),
		errors.Is(err, schema.ErrNotConnected),
		errors.Is(err, schema.ErrLinkClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	var payload struct {
		Conn string `json:"conn"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http focus decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Conn == "" {
		s.focus.Announce(schema.Conn{})
		writeJSON(w, http.StatusOK, map[string]any{"conn": ""})
		log.Info("http focus cleared")
		return
	}
	list, err := s.service.ListConns(r.Context(), schema.ListConnsRequest{})
	if err != nil {
		log.Warn("http focus list failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	for _, conn := range list.Conns {
		if conn.ID == schema.ConnID(payload.Conn) {
			s.focus.Announce(schema.Conn{ID: conn.ID, Name: conn.Name})
			writeJSON(w, http.StatusOK, map[string]any{"conn": conn.ID})
			log.Info("http focus ok", "conn", conn.ID)
			return
		}
	}
	log.Warn("http focus unknown conn", "conn", payload.Conn)
	writeError(w, http.StatusNotFound, schema.ErrConnNotFound)
}

func (s *Server) handleStopAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	resp, err := s.service.StopAll(r.Context(), schema.StopAllRequest{})
	if err != nil {
		log.Warn("http stopall failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http stopall ok", "stopped", resp.Stopped)
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	resp, err := s.service.Attach(r.Context(), schema.AttachRequest{})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, schema.ErrNoTransport) {
			status = http.StatusConflict
		}
		log.Warn("http attach failed", "err", err)
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http attach ok", "changed", resp.Changed)
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	log := logx.Ctx(r.Context())
	resp, err := s.service.Detach(r.Context(), schema.DetachRequest{})
	if err != nil {
		log.Warn("http detach failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
	log.Info("http detach ok", "changed", resp.Changed)
}

func (s *Server) handleDisplay(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context())
	switch r.Method {
	case http.MethodGet:
		resp, err := s.service.Display(r.Context(), schema.DisplayRequest{})
		if err != nil {
			log.Warn("http display get failed", "err", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPut:
		var patch schema.DisplayPatch
		if err := decodeJSON(r.Body, &patch); err != nil {
			log.Warn("http display decode failed", "err", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := s.service.Configure(r.Context(), schema.ConfigureRequest{Display: patch})
		if err != nil {
			log.Warn("http display update failed", "err", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		log.Info("http display update ok")
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("stream unavailable"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	// Subscribe before replaying so nothing published in between is lost;
	// the seq guard below drops the overlap.
	ch, unsubscribe, _ := s.hub.Subscribe()
	defer unsubscribe()

	snapshot, err := s.buildSnapshot(r.Context(), "")
	if err != nil {
		log.Warn("http stream snapshot failed", "err", err)
	}
	_ = writeSSEvent(w, StreamEvent{
		Type:      "snapshot",
		Snapshot:  &snapshot,
		Timestamp: time.Now(),
	})
	flusher.Flush()

	last := lastID
	replay := s.hub.Replay(lastID)
	for _, event := range replay {
		_ = writeSSEvent(w, event)
		if event.Seq > last {
			last = event.Seq
		}
	}
	if len(replay) > 0 {
		flusher.Flush()
	}

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", len(replay), "conns", len(snapshot.Conns))
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event := <-ch:
			if event.Seq <= last {
				continue
			}
			last = event.Seq
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func (s *Server) buildSnapshot(ctx context.Context, kind schema.MarkupKind) (SnapshotPayload, error) {
	status, err := s.service.Status(ctx, schema.StatusRequest{Markup: kind})
	if err != nil {
		return SnapshotPayload{}, err
	}
	list, err := s.service.ListConns(ctx, schema.ListConnsRequest{})
	if err != nil {
		return SnapshotPayload{}, err
	}
	display, err := s.service.Display(ctx, schema.DisplayRequest{})
	if err != nil {
		return SnapshotPayload{}, err
	}
	return SnapshotPayload{
		Line:     status.Line,
		Conns:    list.Conns,
		Current:  list.Current,
		Attached: list.Attached,
		Display:  display.Display,
	}, nil
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
