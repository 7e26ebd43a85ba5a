// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package websocket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// startHub runs a hub under a cancelable context and tears it down with
// the test.
func startHub(t *testing.T) *Hub {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop within 2s")
		}
	})
	return hub
}

// newTestClient builds a client with no underlying connection. Only the
// send channel matters for hub tests.
func newTestClient(buffer int) *Client {
	return &Client{
		id:   clientIDCounter.Add(1),
		send: make(chan Message, buffer),
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func receiveMessage(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received within 2s")
		return Message{}
	}
}

func wsDetection(id string) *detection.Detection {
	return &detection.Detection{
		ID:        id,
		Timestamp: time.Now().UTC(),
		Kind:      taxonomy.KindRogueAccessPoint,
		Protocol:  taxonomy.ProtocolWiFi,
		Method:    taxonomy.MethodDeauthFlood,
		Identity:  "aa:bb:cc:dd:ee:ff",
		Score:     80,
		Severity:  taxonomy.ThreatHigh,
		Reasoning: "deauthentication flood",
		Active:    true,
	}
}

func TestHubClientLifecycle(t *testing.T) {
	hub := startHub(t)

	c1 := newTestClient(4)
	c2 := newTestClient(4)

	hub.Register <- c1
	hub.Register <- c2
	waitFor(t, func() bool { return hub.GetClientCount() == 2 }, "expected 2 clients after register")

	hub.Unregister <- c1
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "expected 1 client after unregister")

	// Unregistering a client twice is a no-op.
	hub.Unregister <- c1
	time.Sleep(20 * time.Millisecond)
	if got := hub.GetClientCount(); got != 1 {
		t.Fatalf("GetClientCount() = %d after double unregister, want 1", got)
	}
}

func TestBroadcastDetectionFanout(t *testing.T) {
	hub := startHub(t)

	c1 := newTestClient(4)
	c2 := newTestClient(4)
	hub.Register <- c1
	hub.Register <- c2
	waitFor(t, func() bool { return hub.GetClientCount() == 2 }, "clients not registered")

	d := wsDetection("fanout-1")
	hub.BroadcastDetection(d)

	for _, c := range []*Client{c1, c2} {
		msg := receiveMessage(t, c)
		if msg.Type != MessageTypeDetection {
			t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeDetection)
		}
		got, ok := msg.Data.(*detection.Detection)
		if !ok {
			t.Fatalf("message data is %T, want *detection.Detection", msg.Data)
		}
		if got.ID != d.ID {
			t.Fatalf("detection id = %q, want %q", got.ID, d.ID)
		}
	}
}

func TestBroadcastNilDetectionIgnored(t *testing.T) {
	hub := NewHub()

	hub.BroadcastDetection(nil)
	if got := len(hub.broadcast); got != 0 {
		t.Fatalf("broadcast queue length = %d after nil detection, want 0", got)
	}

	hub.BroadcastDetection(wsDetection("real"))
	if got := len(hub.broadcast); got != 1 {
		t.Fatalf("broadcast queue length = %d, want 1", got)
	}
}

func TestBroadcastAggregateAndStatistics(t *testing.T) {
	hub := startHub(t)

	c := newTestClient(4)
	hub.Register <- c
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "client not registered")

	hub.BroadcastAggregate(detection.AggregateIncident{
		Score:    72,
		Severity: taxonomy.ThreatHigh,
	})
	msg := receiveMessage(t, c)
	if msg.Type != MessageTypeAggregate {
		t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeAggregate)
	}
	agg, ok := msg.Data.(detection.AggregateIncident)
	if !ok {
		t.Fatalf("message data is %T, want detection.AggregateIncident", msg.Data)
	}
	if agg.Score != 72 {
		t.Fatalf("aggregate score = %d, want 72", agg.Score)
	}

	hub.BroadcastStatistics(detection.Statistics{Total: 3})
	msg = receiveMessage(t, c)
	if msg.Type != MessageTypeStatistics {
		t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeStatistics)
	}
	stats, ok := msg.Data.(StatisticsData)
	if !ok {
		t.Fatalf("message data is %T, want StatisticsData", msg.Data)
	}
	if stats.Statistics.Total != 3 {
		t.Fatalf("statistics total = %d, want 3", stats.Statistics.Total)
	}
	if stats.Timestamp == "" {
		t.Fatal("statistics timestamp is empty")
	}
}

func TestSlowClientDropped(t *testing.T) {
	hub := startHub(t)

	slow := newTestClient(1)
	hub.Register <- slow
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "client not registered")

	// The first message fills the 1-slot buffer; the second cannot be
	// delivered and must evict the client.
	hub.BroadcastDetection(wsDetection("fill"))
	hub.BroadcastDetection(wsDetection("overflow"))

	waitFor(t, func() bool { return hub.GetClientCount() == 0 }, "slow client was not dropped")

	// The buffered message is still readable, then the channel is closed.
	msg := receiveMessage(t, slow)
	if msg.Type != MessageTypeDetection {
		t.Fatalf("buffered message type = %q, want %q", msg.Type, MessageTypeDetection)
	}
	if _, open := <-slow.send; open {
		t.Fatal("send channel still open after eviction")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	c := newTestClient(4)
	hub.Register <- c
	waitFor(t, func() bool { return hub.GetClientCount() == 1 }, "client not registered")

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if got := hub.GetClientCount(); got != 0 {
		t.Fatalf("GetClientCount() = %d after shutdown, want 0", got)
	}
	if _, open := <-c.send; open {
		t.Fatal("client send channel still open after shutdown")
	}
}

func TestBroadcastQueueFullDoesNotBlock(t *testing.T) {
	hub := NewHub()

	for i := 0; i < cap(hub.broadcast); i++ {
		hub.BroadcastDetection(wsDetection(fmt.Sprintf("d-%d", i)))
	}
	if got := len(hub.broadcast); got != cap(hub.broadcast) {
		t.Fatalf("broadcast queue length = %d, want %d", got, cap(hub.broadcast))
	}

	// With the queue full the next broadcast is dropped, not blocked on.
	hub.BroadcastDetection(wsDetection("dropped"))
	if got := len(hub.broadcast); got != cap(hub.broadcast) {
		t.Fatalf("broadcast queue length = %d after overflow, want %d", got, cap(hub.broadcast))
	}
}

func TestMarshalMessage(t *testing.T) {
	raw, err := MarshalMessage(Message{
		Type: MessageTypeDetection,
		Data: wsDetection("marshal-1"),
	})
	if err != nil {
		t.Fatalf("MarshalMessage() error = %v", err)
	}
	for _, want := range []string{`"type":"detection"`, `"id":"marshal-1"`, `"device_kind":"rogue_access_point"`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("marshaled message missing %s: %s", want, raw)
		}
	}
}
