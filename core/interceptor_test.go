package core

import (
	"context"
	"errors"
	"testing"

	"pkt.systems/busyline/schema"
)

func TestInterceptorMarksBusyBeforeDelegating(t *testing.T) {
	var order []string
	icept := NewInterceptor(
		func(schema.Conn) { order = append(order, "busy") },
		func(schema.Conn) { order = append(order, "idle") },
	)
	next := func(ctx context.Context, conn schema.Conn, req schema.Request, reply ReplyFunc) error {
		order = append(order, "transport")
		reply(schema.Response{ID: req.ID})
		return nil
	}
	wrapped := icept.Wrap(next)
	err := wrapped(context.Background(), schema.Conn{ID: "a", Name: "claude"}, schema.Request{ID: "r1"}, func(schema.Response) {
		order = append(order, "callback")
	})
	if err != nil {
		t.Fatalf("wrapped transport: %v", err)
	}
	want := []string{"busy", "transport", "callback", "idle"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestInterceptorIdleOncePerExchange(t *testing.T) {
	busy, idle, callbacks := 0, 0, 0
	icept := NewInterceptor(
		func(schema.Conn) { busy++ },
		func(schema.Conn) { idle++ },
	)
	// A transport that misbehaves and delivers the reply three times.
	next := func(ctx context.Context, conn schema.Conn, req schema.Request, reply ReplyFunc) error {
		reply(schema.Response{ID: req.ID})
		reply(schema.Response{ID: req.ID})
		reply(schema.Response{ID: req.ID})
		return nil
	}
	err := icept.Wrap(next)(context.Background(), schema.Conn{ID: "a"}, schema.Request{ID: "r1"}, func(schema.Response) {
		callbacks++
	})
	if err != nil {
		t.Fatalf("wrapped transport: %v", err)
	}
	if busy != 1 || idle != 1 {
		t.Fatalf("busy = %d idle = %d, want exactly one each", busy, idle)
	}
	if callbacks != 3 {
		t.Fatalf("original callback must pass through every delivery, got %d", callbacks)
	}
}

func TestInterceptorErrorPassesThroughAndKeepsBusy(t *testing.T) {
	busy, idle := 0, 0
	icept := NewInterceptor(
		func(schema.Conn) { busy++ },
		func(schema.Conn) { idle++ },
	)
	boom := errors.New("submit failed")
	next := func(ctx context.Context, conn schema.Conn, req schema.Request, reply ReplyFunc) error {
		return boom
	}
	err := icept.Wrap(next)(context.Background(), schema.Conn{ID: "a"}, schema.Request{ID: "r1"}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the transport error unaltered", err)
	}
	if busy != 1 {
		t.Fatalf("busy marks = %d", busy)
	}
	// The busy mark is not rolled back; only a reply or a forced stop
	// clears it.
	if idle != 0 {
		t.Fatalf("idle marks = %d, want none after a failed submit", idle)
	}
}

func TestInterceptorNilCallback(t *testing.T) {
	idle := 0
	icept := NewInterceptor(func(schema.Conn) {}, func(schema.Conn) { idle++ })
	next := func(ctx context.Context, conn schema.Conn, req schema.Request, reply ReplyFunc) error {
		reply(schema.Response{ID: req.ID})
		return nil
	}
	if err := icept.Wrap(next)(context.Background(), schema.Conn{ID: "a"}, schema.Request{ID: "r1"}, nil); err != nil {
		t.Fatalf("wrapped transport: %v", err)
	}
	if idle != 1 {
		t.Fatalf("idle marks = %d", idle)
	}
}

func TestInterceptorUnansweredRequestStaysBusy(t *testing.T) {
	busy, idle := 0, 0
	icept := NewInterceptor(
		func(schema.Conn) { busy++ },
		func(schema.Conn) { idle++ },
	)
	next := func(ctx context.Context, conn schema.Conn, req schema.Request, reply ReplyFunc) error {
		// Reply never arrives.
		return nil
	}
	if err := icept.Wrap(next)(context.Background(), schema.Conn{ID: "a"}, schema.Request{ID: "r1"}, nil); err != nil {
		t.Fatalf("wrapped transport: %v", err)
	}
	if busy != 1 || idle != 0 {
		t.Fatalf("busy = %d idle = %d", busy, idle)
	}
}
