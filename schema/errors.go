package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidConn indicates an invalid connection identifier.
	ErrInvalidConn = errors.New("invalid connection id")
	// ErrConnNotFound indicates the transport knows no link for the connection.
	ErrConnNotFound = errors.New("connection not found")
	// ErrNoTransport indicates no transport function is configured.
	ErrNoTransport = errors.New("transport not configured")
	// ErrNotConnected indicates the link for a connection is not established.
	ErrNotConnected = errors.New("link not connected")
	// ErrLinkClosed indicates the link closed while a request was in flight.
	ErrLinkClosed = errors.New("link closed")
	// ErrEmptyRequest indicates the request carried no payload.
	ErrEmptyRequest = errors.New("empty request")
	// ErrInvalidColor indicates a color is not a #rrggbb value.
	ErrInvalidColor = errors.New("invalid color")
	// ErrInvalidMnemonic indicates a mnemonic rule with an empty match string.
	ErrInvalidMnemonic = errors.New("invalid mnemonic rule")
)
