package schema

// ConnID identifies a connection: one long-lived agent session over which
// request/response exchanges occur. Identities are supplied by the session
// source and compared by value, never by display name.
type ConnID string

// Conn pairs a connection identity with its human-readable name.
type Conn struct {
	ID   ConnID
	Name string
}

// RequestID identifies a single request/response exchange on a connection.
type RequestID string

// LinkID identifies one transport link instance. Reconnects get fresh ids.
type LinkID string

// HexColor is a "#rrggbb" foreground color.
type HexColor string

// MarkupKind names a status-bar markup dialect for rendering.
type MarkupKind string

const (
	// MarkupTmux renders #[fg=...] option markup for the tmux status bar.
	MarkupTmux MarkupKind = "tmux"
	// MarkupANSI renders truecolor escape sequences for terminals.
	MarkupANSI MarkupKind = "ansi"
	// MarkupPlain renders bare labels with no color tokens.
	MarkupPlain MarkupKind = "plain"
)

// ConnState describes the busy/idle flag of a connection.
type ConnState string

const (
	// ConnStateIdle indicates no request is outstanding on the connection.
	ConnStateIdle ConnState = "idle"
	// ConnStateBusy indicates a request was issued and its reply has not fired.
	ConnStateBusy ConnState = "busy"
)
