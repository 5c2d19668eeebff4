// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flappyRunner fails a fixed number of times before running cleanly.
type flappyRunner struct {
	failures int32
	starts   int32
}

func (r *flappyRunner) Run(ctx context.Context) error {
	n := atomic.AddInt32(&r.starts, 1)
	if n <= atomic.LoadInt32(&r.failures) {
		return errors.New("transient failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTree_RestartsFailedService(t *testing.T) {
	cfg := DefaultTreeConfig()
	cfg.FailureBackoff = 10 * time.Millisecond
	tree := NewTree(testLogger(), cfg)

	runner := &flappyRunner{failures: 2}
	tree.Add(NewRunnerService("flappy", runner))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- tree.Serve(ctx)
	}()

	deadline := time.After(4 * time.Second)
	for atomic.LoadInt32(&runner.starts) < 3 {
		select {
		case <-deadline:
			t.Fatalf("service restarted %d times, want at least 3 starts", runner.starts)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestTree_CleanShutdown(t *testing.T) {
	tree := NewTree(testLogger(), DefaultTreeConfig())

	var stopped atomic.Bool
	tree.Add(NewRunnerService("steady", runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tree.Serve(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
	if !stopped.Load() {
		t.Error("service did not observe shutdown")
	}
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

type fakeGateway struct {
	connectErr error
	connected  atomic.Bool
	closed     atomic.Bool
}

func (g *fakeGateway) Connect(ctx context.Context) error {
	if g.connectErr != nil {
		return g.connectErr
	}
	g.connected.Store(true)
	return nil
}

func (g *fakeGateway) Close() error {
	g.closed.Store(true)
	return nil
}

func TestGatewayService_ConnectAndShutdown(t *testing.T) {
	gateway := &fakeGateway{}
	svc := NewGatewayService(gateway)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	if !gateway.connected.Load() {
		t.Fatal("gateway never connected")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
	if !gateway.closed.Load() {
		t.Error("gateway not closed on shutdown")
	}
}

func TestGatewayService_ConnectFailurePropagates(t *testing.T) {
	gateway := &fakeGateway{connectErr: errors.New("dial failed")}
	svc := NewGatewayService(gateway)

	if err := svc.Serve(context.Background()); err == nil {
		t.Fatal("expected connect error to propagate for restart")
	}
	if gateway.closed.Load() {
		t.Error("gateway should not be closed after failed connect")
	}
}
