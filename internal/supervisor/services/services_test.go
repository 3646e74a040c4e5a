// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/vigil/internal/response"
)

// mockHTTPServer simulates http.Server lifecycle behavior.
type mockHTTPServer struct {
	listenErr    error
	shutdownErr  error
	listening    chan struct{}
	release      chan struct{}
	shutdownSeen atomic.Bool
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{
		listening: make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (m *mockHTTPServer) ListenAndServe() error {
	close(m.listening)
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.release
	return errors.New("http: Server closed")
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.shutdownSeen.Store(true)
	close(m.release)
	return m.shutdownErr
}

func TestHTTPServerServiceGracefulShutdown(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-server.listening:
	case <-time.After(time.Second):
		t.Fatal("server never started listening")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if !server.shutdownSeen.Load() {
		t.Error("Shutdown was never called")
	}
}

func TestHTTPServerServiceStartFailure(t *testing.T) {
	server := newMockHTTPServer()
	server.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(server, time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve returned %v, want wrapped listen error", err)
	}
}

type fakeCleaner struct {
	sweeps atomic.Int64
}

func (f *fakeCleaner) Cleanup() response.CleanupResult {
	f.sweeps.Add(1)
	return response.CleanupResult{Timestamp: time.Now()}
}

func TestSweeperServiceRunsOnInterval(t *testing.T) {
	cleaner := &fakeCleaner{}
	svc := NewSweeperService(cleaner, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && cleaner.sweeps.Load() < 2 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if got := cleaner.sweeps.Load(); got < 2 {
		t.Errorf("sweeps = %d, want at least 2", got)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

type fakePruner struct {
	deletes atomic.Int64
	cutoff  atomic.Value
}

func (f *fakePruner) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	f.deletes.Add(1)
	f.cutoff.Store(olderThan)
	return 3, nil
}

func TestSweeperServicePrunesAudit(t *testing.T) {
	cleaner := &fakeCleaner{}
	pruner := &fakePruner{}
	retention := 24 * time.Hour
	svc := NewSweeperService(cleaner, 10*time.Millisecond).WithAuditPruner(pruner, retention)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && pruner.deletes.Load() < 1 {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if pruner.deletes.Load() < 1 {
		t.Fatal("pruner was never invoked")
	}
	cutoff, ok := pruner.cutoff.Load().(time.Time)
	if !ok {
		t.Fatal("pruner cutoff not recorded")
	}
	if age := time.Since(cutoff); age < retention-time.Minute || age > retention+time.Minute {
		t.Errorf("cutoff age = %v, want about %v", age, retention)
	}
}

func TestSweeperServiceDefaultsInterval(t *testing.T) {
	svc := NewSweeperService(&fakeCleaner{}, 0)
	if svc.interval != time.Hour {
		t.Errorf("interval = %v, want 1h", svc.interval)
	}
}

type blockingConsumer struct{}

func (blockingConsumer) Serve(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestConsumerServiceDelegates(t *testing.T) {
	svc := NewConsumerService(blockingConsumer{})
	if svc.String() != "nats-consumer" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
