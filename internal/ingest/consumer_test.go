// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/tomtom215/vigil/internal/response"
	"github.com/tomtom215/vigil/internal/threat"
)

type stubProcessor struct {
	mu     sync.Mutex
	events []threat.SecurityEvent
}

func (p *stubProcessor) ProcessSecurityEvent(ctx context.Context, event *threat.SecurityEvent) *response.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return &response.Decision{
		ID:          "d-" + event.ID,
		EventID:     event.ID,
		SourceIP:    event.SourceIP,
		Action:      response.ActionContinueMonitoring,
		ThreatScore: 5,
		ThreatLevel: threat.LevelLow,
		Timestamp:   time.Now(),
	}
}

func (p *stubProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func startTestServer(t *testing.T) *EmbeddedServer {
	t.Helper()
	srv, err := NewEmbeddedServer(ServerConfig{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("NewEmbeddedServer() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func TestConsumerProcessesAndPublishesDecisions(t *testing.T) {
	srv := startTestServer(t)
	processor := &stubProcessor{}
	consumer := NewConsumer(Config{
		URL:             srv.ClientURL(),
		DecisionSubject: DefaultDecisionSubject,
	}, processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- consumer.Serve(ctx) }()

	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer conn.Close()

	decisions := make(chan *nats.Msg, 1)
	if _, err := conn.ChanSubscribe(DefaultDecisionSubject, decisions); err != nil {
		t.Fatalf("subscribe to decisions: %v", err)
	}

	// Give the queue subscription a moment to register.
	waitForCondition(t, func() bool {
		return conn.Flush() == nil
	})

	event := threat.SecurityEvent{
		ID:        "ev-1",
		Type:      threat.EventLoginFailed,
		Severity:  threat.SeverityMedium,
		SourceIP:  "10.0.0.7",
		Timestamp: time.Now(),
	}
	payload, _ := json.Marshal(event)
	if err := conn.Publish(DefaultSubject, payload); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	waitForCondition(t, func() bool { return processor.count() == 1 })

	select {
	case msg := <-decisions:
		var decision response.Decision
		if err := json.Unmarshal(msg.Data, &decision); err != nil {
			t.Fatalf("decode decision: %v", err)
		}
		if decision.EventID != "ev-1" {
			t.Errorf("decision.EventID = %q, want ev-1", decision.EventID)
		}
		if decision.SourceIP != "10.0.0.7" {
			t.Errorf("decision.SourceIP = %q", decision.SourceIP)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no decision published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestConsumerDropsMalformedEvents(t *testing.T) {
	srv := startTestServer(t)
	processor := &stubProcessor{}
	consumer := NewConsumer(Config{URL: srv.ClientURL()}, processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Serve(ctx)

	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer conn.Close()
	waitForCondition(t, func() bool { return conn.Flush() == nil })

	conn.Publish(DefaultSubject, []byte("not json"))
	conn.Publish(DefaultSubject, []byte(`{"source_ip":"10.0.0.7"}`)) // no type
	conn.Flush()

	// Valid event after the bad ones proves the consumer kept running.
	good, _ := json.Marshal(threat.SecurityEvent{ID: "ok", Type: threat.EventNetworkScan, SourceIP: "10.0.0.8"})
	conn.Publish(DefaultSubject, good)
	conn.Flush()

	waitForCondition(t, func() bool { return processor.count() == 1 })
	if processor.events[0].ID != "ok" {
		t.Errorf("processed event = %+v, want the valid one", processor.events[0])
	}
}

func TestConsumerConnectFailure(t *testing.T) {
	consumer := NewConsumer(Config{URL: "nats://127.0.0.1:1"}, &stubProcessor{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := consumer.Serve(ctx); err == nil {
		t.Error("expected a connection error")
	}
}

func TestEmbeddedServerLifecycle(t *testing.T) {
	srv := startTestServer(t)
	if !srv.IsRunning() {
		t.Error("server should be running")
	}
	if srv.ClientURL() == "" {
		t.Error("server should expose a client URL")
	}
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
