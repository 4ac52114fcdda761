package schema

// Status rendering.

// StatusRequest asks for the current aggregate status line. Markup picks a
// dialect other than the daemon default; empty keeps the default.
type StatusRequest struct {
	Markup MarkupKind
}

// StatusResponse carries the freshly rendered line.
type StatusResponse struct {
	Line string
}

// ListConnsRequest asks for the enumeration snapshot.
type ListConnsRequest struct{}

// ListConnsResponse reports connections in enumeration order.
type ListConnsResponse struct {
	Conns    []ConnSnapshot
	Current  ConnID
	Attached bool
}

// Interception.

// AttachRequest installs the request interceptor.
type AttachRequest struct{}

// AttachResponse reports the interception state after the call.
type AttachResponse struct {
	Attached bool
	Changed  bool
}

// DetachRequest removes the request interceptor.
type DetachRequest struct{}

// DetachResponse reports the interception state after the call.
type DetachResponse struct {
	Attached bool
	Changed  bool
}

// Exchanges.

// SendRequest issues a request on a connection through the installed
// transport. An empty Req.ID gets a generated one.
type SendRequest struct {
	Conn ConnID
	Req  Request
}

// SendResponse reports the id the exchange was issued under.
type SendResponse struct {
	RequestID RequestID
}

// Recovery.

// StopAllRequest forces every enumerated connection to idle.
type StopAllRequest struct{}

// StopAllResponse reports how many connections flipped and the line published.
type StopAllResponse struct {
	Stopped int
	Line    string
}

// Display settings.

// DisplayRequest asks for the effective display settings.
type DisplayRequest struct{}

// DisplayResponse carries the effective display settings.
type DisplayResponse struct {
	Display DisplayConfig
}

// ConfigureRequest applies a partial display update.
type ConfigureRequest struct {
	Display DisplayPatch
}

// ConfigureResponse echoes the effective display settings.
type ConfigureResponse struct {
	Display DisplayConfig
}
