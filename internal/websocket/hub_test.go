// Vigil - Real-Time Security Threat Scoring and Automated Response
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vigil

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc, chan error) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	return hub, cancel, done
}

func newTestClient(hub *Hub) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		hub:  hub,
		send: make(chan Message, 256),
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub, cancel, done := startHub(t)
	defer cancel()

	client := newTestClient(hub)
	hub.Register <- client

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Unregister <- client
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	if _, open := <-client.send; open {
		t.Error("unregistered client's send channel should be closed")
	}

	cancel()
	<-done
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub, cancel, done := startHub(t)
	defer cancel()

	first := newTestClient(hub)
	second := newTestClient(hub)
	hub.Register <- first
	hub.Register <- second
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	hub.Broadcast(MessageTypeDecision, map[string]int{"score": 85})

	for _, client := range []*Client{first, second} {
		select {
		case msg := <-client.send:
			if msg.Type != MessageTypeDecision {
				t.Errorf("message type = %q, want %q", msg.Type, MessageTypeDecision)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("client did not receive the broadcast")
		}
	}

	cancel()
	<-done
}

func TestHubDropsStalledClients(t *testing.T) {
	hub, cancel, done := startHub(t)
	defer cancel()

	stalled := newTestClient(hub)
	stalled.send = make(chan Message) // unbuffered, never read
	hub.Register <- stalled
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.Broadcast(MessageTypeStats, nil)
	waitFor(t, func() bool { return hub.ClientCount() == 0 })

	cancel()
	<-done
}

func TestHubShutdownClosesClients(t *testing.T) {
	hub, cancel, done := startHub(t)

	client := newTestClient(hub)
	hub.Register <- client
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("RunWithContext returned %v, want context.Canceled", err)
	}
	if hub.ClientCount() != 0 {
		t.Error("shutdown should close all clients")
	}

	if _, open := <-client.send; open {
		t.Error("client send channel should be closed after shutdown")
	}
}

func TestHubBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub() // not running, queue will fill

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Broadcast(MessageTypeDecision, i)
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked with a full queue")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
