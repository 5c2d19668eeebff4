// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// fakeGateway runs a minimal Discord gateway on an httptest server: it sends
// HELLO, validates IDENTIFY, sends READY, and then replays the given
// dispatch events.
func fakeGateway(t *testing.T, events []gatewayPayload) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		hello := gatewayPayload{Op: opHello}
		hello.D, _ = json.Marshal(helloData{HeartbeatInterval: 45000})
		if err := conn.WriteJSON(hello); err != nil {
			t.Errorf("write hello: %v", err)
			return
		}

		var identify gatewayPayload
		if err := conn.ReadJSON(&identify); err != nil {
			t.Errorf("read identify: %v", err)
			return
		}
		if identify.Op != opIdentify {
			t.Errorf("expected IDENTIFY, got op %d", identify.Op)
			return
		}
		var identity identifyData
		if err := json.Unmarshal(identify.D, &identity); err != nil {
			t.Errorf("parse identify: %v", err)
			return
		}
		if identity.Token != "test-token" {
			t.Errorf("identify token = %q", identity.Token)
		}
		if identity.Intents&intentMessageContent == 0 {
			t.Error("MESSAGE_CONTENT intent not requested")
		}

		seq := int64(1)
		ready := gatewayPayload{Op: opDispatch, T: "READY", S: &seq}
		ready.D, _ = json.Marshal(readyData{User: User{ID: "bot-1", Username: "plexcord", Bot: true}})
		if err := conn.WriteJSON(ready); err != nil {
			return
		}

		for i := range events {
			seq++
			events[i].S = &seq
			if err := conn.WriteJSON(events[i]); err != nil {
				return
			}
		}

		// Hold the connection open; the client closes it on shutdown.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestGatewayClient_MessageCreate(t *testing.T) {
	userMsg := gatewayPayload{Op: opDispatch, T: "MESSAGE_CREATE"}
	userMsg.D, _ = json.Marshal(Message{
		ID:        "m1",
		ChannelID: "123",
		Content:   "!sync",
		Author:    User{ID: "user-1", Username: "alice"},
	})

	server := fakeGateway(t, []gatewayPayload{userMsg})
	defer server.Close()

	client := NewGatewayClientWithURL("test-token", wsURL(server))
	received := make(chan Message, 1)
	client.OnMessageCreate(func(msg Message) {
		received <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	select {
	case msg := <-received:
		if msg.Content != "!sync" {
			t.Errorf("content = %q, want !sync", msg.Content)
		}
		if msg.ChannelID != "123" {
			t.Errorf("channel = %q, want 123", msg.ChannelID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("MESSAGE_CREATE callback not invoked")
	}

	if client.BotUserID() != "bot-1" {
		t.Errorf("bot user ID = %q, want bot-1", client.BotUserID())
	}
}

func TestGatewayClient_IgnoresOwnMessages(t *testing.T) {
	botMsg := gatewayPayload{Op: opDispatch, T: "MESSAGE_CREATE"}
	botMsg.D, _ = json.Marshal(Message{
		ID:        "m1",
		ChannelID: "123",
		Content:   "## Movies",
		Author:    User{ID: "bot-1", Username: "plexcord", Bot: true},
	})
	userMsg := gatewayPayload{Op: opDispatch, T: "MESSAGE_CREATE"}
	userMsg.D, _ = json.Marshal(Message{
		ID:        "m2",
		ChannelID: "123",
		Content:   "!update",
		Author:    User{ID: "user-1", Username: "alice"},
	})

	server := fakeGateway(t, []gatewayPayload{botMsg, userMsg})
	defer server.Close()

	client := NewGatewayClientWithURL("test-token", wsURL(server))
	received := make(chan Message, 2)
	client.OnMessageCreate(func(msg Message) {
		received <- msg
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	// The bot-authored message precedes the user one on the wire, so
	// receiving the user message proves the bot message was filtered.
	select {
	case msg := <-received:
		if msg.ID != "m2" {
			t.Errorf("received message %q, want m2 (bot message should be filtered)", msg.ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("user message never delivered")
	}
}

func TestGatewayClient_ServerHeartbeatRequest(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotHeartbeat := make(chan int64, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello := gatewayPayload{Op: opHello}
		hello.D, _ = json.Marshal(helloData{HeartbeatInterval: 45000})
		_ = conn.WriteJSON(hello)

		var identify gatewayPayload
		_ = conn.ReadJSON(&identify)

		// Request an immediate heartbeat (op 1 from server).
		_ = conn.WriteJSON(gatewayPayload{Op: opHeartbeat})

		var hb gatewayPayload
		if err := conn.ReadJSON(&hb); err != nil {
			return
		}
		if hb.Op == opHeartbeat {
			var seq int64
			_ = json.Unmarshal(hb.D, &seq)
			gotHeartbeat <- seq
		}
	}))
	defer server.Close()

	client := NewGatewayClientWithURL("test-token", wsURL(server))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	select {
	case <-gotHeartbeat:
	case <-time.After(5 * time.Second):
		t.Fatal("client did not answer server heartbeat request")
	}
}

func TestGatewayClient_ConnectTwice(t *testing.T) {
	server := fakeGateway(t, nil)
	defer server.Close()

	client := NewGatewayClientWithURL("test-token", wsURL(server))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Fatal("expected connected state")
	}
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("second connect should be a no-op, got %v", err)
	}
}
