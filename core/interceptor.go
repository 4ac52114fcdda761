package core

import (
	"context"
	"sync"

	"pkt.systems/busyline/schema"
)

// Interceptor derives busy and idle marks from protocol traffic by
// decorating a TransportFunc. It holds no state of its own; the mark
// callbacks carry the state change into the service pipeline.
type Interceptor struct {
	markBusy func(conn schema.Conn)
	markIdle func(conn schema.Conn)
}

// NewInterceptor returns an interceptor that invokes markBusy before a
// request is delegated and markIdle after the reply callback has run.
func NewInterceptor(markBusy, markIdle func(conn schema.Conn)) *Interceptor {
	return &Interceptor{markBusy: markBusy, markIdle: markIdle}
}

// Wrap returns a replacement TransportFunc. Every request marks its
// connection busy before next runs, so the busy state is visible even while
// the transport is still submitting. The reply callback is replaced with one
// that first invokes the original callback unchanged and then marks the
// connection idle. The idle mark fires once per exchange no matter how often
// a transport delivers the reply. Errors from next pass through unaltered
// and do not roll the busy mark back; a connection whose request failed in
// flight stays busy until a reply or a forced stop clears it.
func (i *Interceptor) Wrap(next TransportFunc) TransportFunc {
	return func(ctx context.Context, conn schema.Conn, req schema.Request, reply ReplyFunc) error {
		i.markBusy(conn)
		var once sync.Once
		wrapped := func(resp schema.Response) {
			if reply != nil {
				reply(resp)
			}
			once.Do(func() {
				i.markIdle(conn)
			})
		}
		return next(ctx, conn, req, wrapped)
	}
}
