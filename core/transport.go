package core

import (
	"context"

	"pkt.systems/busyline/schema"
)

// ReplyFunc receives a response that answers a previously issued request.
// Transports invoke it asynchronously from their receive path, at most once
// per completed exchange.
type ReplyFunc func(resp schema.Response)

// TransportFunc issues a request on a connection and arranges for reply to be
// invoked when the matching response arrives. A nil reply means the caller
// does not care about the answer. The returned error covers submission only;
// delivery failures after a successful submit surface through the response.
type TransportFunc func(ctx context.Context, conn schema.Conn, req schema.Request, reply ReplyFunc) error
