package natsutil

import (
	"context"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
)

func startTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		nc.Close()
		srv.Shutdown()
	})
	return nc
}

func TestServer_SubscribeCarriesTrace(t *testing.T) {
	nc := startTestNATS(t)
	ctx, sc := tracedContext(t)

	type reading struct {
		VIN   string   `json:"vin"`
		Codes []string `json:"codes"`
		Miles float64  `json:"miles"`
	}
	type got struct {
		snap  reading
		trace trace.TraceID
	}
	ch := make(chan got, 1)
	sub, err := Subscribe(nc, "test.reading", func(ctx context.Context, _ *nats.Msg, s reading) {
		ch <- got{snap: s, trace: trace.SpanContextFromContext(ctx).TraceID()}
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	snap := reading{VIN: "2HGFC2F59JH000002", Codes: []string{"P0420"}, Miles: 72000}
	if err := Publish(ctx, nc, "test.reading", snap); err != nil {
		t.Fatal(err)
	}

	select {
	case g := <-ch:
		if g.snap.VIN != snap.VIN || len(g.snap.Codes) != 1 || g.snap.Miles != 72000 {
			t.Errorf("reading = %+v", g.snap)
		}
		if g.trace != sc.TraceID() {
			t.Errorf("trace = %s, want %s", g.trace, sc.TraceID())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for reading")
	}
}

func TestServer_RequestAndRedeliver(t *testing.T) {
	nc := startTestNATS(t)

	type req struct{ N int }
	type resp struct{ Result, Retries int }

	sub, err := nc.Subscribe("test.double", func(m *nats.Msg) {
		if RetryCount(m) == 0 {
			next := Redeliver(m, "test.double", 1)
			next.Reply = m.Reply
			_ = nc.PublishMsg(next)
			return
		}
		_, r, err := Decode[req](m)
		if err != nil {
			return
		}
		_ = Publish(context.Background(), nc, m.Reply, resp{Result: r.N * 2, Retries: RetryCount(m)})
	})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Unsubscribe()

	got, err := Request[req, resp](context.Background(), nc, "test.double", req{N: 21})
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if got.Result != 42 || got.Retries != 1 {
		t.Errorf("got %+v, want 42 after 1 retry", got)
	}
}
