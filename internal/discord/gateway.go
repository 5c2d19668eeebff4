// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

package discord

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/plexcord/plexcord/internal/logging"
	"github.com/plexcord/plexcord/internal/metrics"
)

// defaultGatewayURL is the Discord gateway WebSocket endpoint.
const defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway intents requested at IDENTIFY. MESSAGE_CONTENT is a privileged
// intent and must also be enabled in the Discord developer portal.
const (
	intentGuilds         = 1 << 0
	intentGuildMessages  = 1 << 9
	intentMessageContent = 1 << 15
)

// Gateway opcodes (the subset this client handles).
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// GatewayClient maintains a persistent connection to the Discord gateway
// and dispatches MESSAGE_CREATE events to a registered callback.
//
// Key behaviors:
//   - Automatic reconnection with exponential backoff (1s doubling to 32s)
//   - Heartbeat at the server-advertised interval, with ACK tracking
//   - Bot's own messages are filtered before the callback fires
//   - Graceful shutdown via Close
type GatewayClient struct {
	token      string
	gatewayURL string

	conn     *websocket.Conn
	connMu   sync.RWMutex
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Set from the HELLO payload; read by the heartbeat loop.
	heartbeatInterval time.Duration
	lastSeq           int64
	ackReceived       bool
	stateMu           sync.Mutex

	// Bot identity captured from READY, used to ignore our own messages.
	botUserID string
	botMu     sync.RWMutex

	callbackMu      sync.RWMutex
	onMessageCreate func(Message)
}

// NewGatewayClient creates a gateway client for the given bot token.
// The client is not connected until Connect is called.
func NewGatewayClient(token string) *GatewayClient {
	return &GatewayClient{
		token:      token,
		gatewayURL: defaultGatewayURL,
		stopChan:   make(chan struct{}),
	}
}

// NewGatewayClientWithURL creates a gateway client against a non-default
// gateway endpoint. Used by tests to point at a local WebSocket server.
func NewGatewayClientWithURL(token, gatewayURL string) *GatewayClient {
	c := NewGatewayClient(token)
	c.gatewayURL = gatewayURL
	return c
}

// gatewayPayload is the envelope for all gateway frames.
type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// helloData is the opcode 10 payload.
type helloData struct {
	HeartbeatInterval int `json:"heartbeat_interval"` // milliseconds
}

// identifyData is the opcode 2 payload.
type identifyData struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// readyData is the READY dispatch payload (the subset we use).
type readyData struct {
	User      User   `json:"user"`
	SessionID string `json:"session_id"`
}

// OnMessageCreate registers the handler invoked for each MESSAGE_CREATE
// event. Messages authored by the bot itself are filtered out.
//
// Thread Safety: safe for concurrent calls.
func (c *GatewayClient) OnMessageCreate(fn func(Message)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onMessageCreate = fn
}

// Connect establishes the gateway connection, performs the HELLO/IDENTIFY
// handshake, and starts the listener and heartbeat goroutines. Safe to call
// once; subsequent calls while connected are no-ops.
func (c *GatewayClient) Connect(ctx context.Context) error {
	c.connMu.RLock()
	connected := c.conn != nil
	c.connMu.RUnlock()
	if connected {
		return nil
	}

	if err := c.handshake(ctx); err != nil {
		return err
	}

	c.wg.Add(1)
	go c.listen(ctx)

	c.wg.Add(1)
	go c.heartbeatLoop(ctx)

	return nil
}

// handshake dials the gateway, waits for HELLO, and sends IDENTIFY. It does
// not start any goroutines so the listener can call it again on reconnect.
func (c *GatewayClient) handshake(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
	}

	conn, resp, err := dialer.DialContext(ctx, c.gatewayURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("gateway dial failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("gateway dial: %w", err)
	}

	// First frame must be HELLO with the heartbeat interval.
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("set read deadline: %w", err)
	}
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Op != opHello {
		conn.Close()
		return fmt.Errorf("expected HELLO (op %d), got op %d", opHello, hello.Op)
	}

	var helloPayload helloData
	if err := json.Unmarshal(hello.D, &helloPayload); err != nil {
		conn.Close()
		return fmt.Errorf("parse hello: %w", err)
	}
	if helloPayload.HeartbeatInterval <= 0 {
		conn.Close()
		return fmt.Errorf("invalid heartbeat interval %d", helloPayload.HeartbeatInterval)
	}

	c.stateMu.Lock()
	c.heartbeatInterval = time.Duration(helloPayload.HeartbeatInterval) * time.Millisecond
	c.ackReceived = true
	c.stateMu.Unlock()

	identify := gatewayPayload{Op: opIdentify}
	identifyBody, err := json.Marshal(identifyData{
		Token:   c.token,
		Intents: intentGuilds | intentGuildMessages | intentMessageContent,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "plexcord",
			Device:  "plexcord",
		},
	})
	if err != nil {
		conn.Close()
		return fmt.Errorf("marshal identify: %w", err)
	}
	identify.D = identifyBody

	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := conn.WriteJSON(identify); err != nil {
		conn.Close()
		return fmt.Errorf("send identify: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	logging.Info().Dur("heartbeat_interval", c.heartbeatInterval).Msg("Discord gateway connected")
	return nil
}

// listen reads gateway frames and routes them. On read errors it closes the
// connection and reconnects with exponential backoff, 1s doubling to 32s.
func (c *GatewayClient) listen(ctx context.Context) {
	defer c.wg.Done()

	reconnectDelay := 1 * time.Second
	maxReconnectDelay := 32 * time.Second

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Discord gateway listener stopping (context canceled)")
			return
		case <-c.stopChan:
			logging.Info().Msg("Discord gateway listener stopping (stop signal received)")
			return
		default:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()

			if conn == nil {
				logging.Info().Dur("delay", reconnectDelay).Msg("Discord gateway connection lost, reconnecting")
				select {
				case <-time.After(reconnectDelay):
				case <-ctx.Done():
					return
				case <-c.stopChan:
					return
				}

				reconnectDelay *= 2
				if reconnectDelay > maxReconnectDelay {
					reconnectDelay = maxReconnectDelay
				}

				metrics.GatewayReconnects.Inc()
				if err := c.handshake(ctx); err != nil {
					logging.Error().Err(err).Msg("Discord gateway reconnection failed")
					continue
				}

				reconnectDelay = 1 * time.Second
				continue
			}

			// The read deadline covers at least two heartbeat intervals so
			// a healthy connection never trips it.
			if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout())); err != nil {
				logging.Warn().Err(err).Msg("Discord gateway: failed to set read deadline")
			}
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logging.Info().Msg("Discord gateway closed normally")
					c.closeConnection()
					continue
				}

				if ctx.Err() != nil {
					return
				}

				logging.Warn().Err(err).Msg("Discord gateway read error")
				c.closeConnection()
				continue
			}

			reconnectDelay = 1 * time.Second
			c.handleFrame(message)
		}
	}
}

// readTimeout derives the read deadline from the heartbeat interval.
func (c *GatewayClient) readTimeout() time.Duration {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.heartbeatInterval <= 0 {
		return 90 * time.Second
	}
	return 2*c.heartbeatInterval + 10*time.Second
}

// handleFrame parses one gateway frame and routes it by opcode.
func (c *GatewayClient) handleFrame(data []byte) {
	var payload gatewayPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		logging.Error().Err(err).Msg("Failed to parse gateway frame")
		return
	}

	if payload.S != nil {
		c.stateMu.Lock()
		c.lastSeq = *payload.S
		c.stateMu.Unlock()
	}

	switch payload.Op {
	case opDispatch:
		c.handleDispatch(payload)

	case opHeartbeat:
		// Server requested an immediate heartbeat.
		c.sendHeartbeat()

	case opHeartbeatACK:
		c.stateMu.Lock()
		c.ackReceived = true
		c.stateMu.Unlock()

	case opReconnect:
		logging.Info().Msg("Discord gateway requested reconnect")
		c.closeConnection()

	case opInvalidSession:
		logging.Warn().Msg("Discord gateway session invalidated, reconnecting")
		c.closeConnection()

	default:
		logging.Debug().Int("op", payload.Op).Msg("Unhandled gateway opcode")
	}
}

// handleDispatch routes opcode 0 events by type.
func (c *GatewayClient) handleDispatch(payload gatewayPayload) {
	switch payload.T {
	case "READY":
		var ready readyData
		if err := json.Unmarshal(payload.D, &ready); err != nil {
			logging.Error().Err(err).Msg("Failed to parse READY event")
			return
		}
		c.botMu.Lock()
		c.botUserID = ready.User.ID
		c.botMu.Unlock()
		logging.Info().Str("bot_user", ready.User.Username).Str("bot_id", ready.User.ID).Msg("Discord gateway ready")

	case "MESSAGE_CREATE":
		var msg Message
		if err := json.Unmarshal(payload.D, &msg); err != nil {
			logging.Error().Err(err).Msg("Failed to parse MESSAGE_CREATE event")
			return
		}

		c.botMu.RLock()
		ownID := c.botUserID
		c.botMu.RUnlock()
		if msg.Author.Bot || (ownID != "" && msg.Author.ID == ownID) {
			return
		}

		c.callbackMu.RLock()
		fn := c.onMessageCreate
		c.callbackMu.RUnlock()
		if fn != nil {
			fn(msg)
		}

	default:
		// GUILD_CREATE and friends arrive from the GUILDS intent; ignored.
	}
}

// heartbeatLoop sends heartbeats at the server-advertised interval. A missed
// ACK means the connection is dead and is closed for the listener to rebuild.
func (c *GatewayClient) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		c.stateMu.Lock()
		interval := c.heartbeatInterval
		c.stateMu.Unlock()
		if interval <= 0 {
			interval = 45 * time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-time.After(interval):
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}

			c.stateMu.Lock()
			acked := c.ackReceived
			c.ackReceived = false
			c.stateMu.Unlock()

			if !acked {
				logging.Warn().Msg("Discord gateway heartbeat ACK missed, closing connection")
				c.closeConnection()
				continue
			}

			c.sendHeartbeat()
		}
	}
}

// sendHeartbeat writes an opcode 1 frame carrying the last seen sequence.
func (c *GatewayClient) sendHeartbeat() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}

	c.stateMu.Lock()
	seq := c.lastSeq
	c.stateMu.Unlock()

	payload := gatewayPayload{Op: opHeartbeat}
	seqBody, err := json.Marshal(seq)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal heartbeat")
		return
	}
	payload.D = seqBody

	if err := conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		logging.Warn().Err(err).Msg("Discord gateway: failed to set write deadline")
	}
	if err := conn.WriteJSON(payload); err != nil {
		logging.Warn().Err(err).Msg("Discord gateway heartbeat failed")
		c.closeConnection()
	}
}

// BotUserID returns the bot's user ID once READY has been received, or ""
// before that.
func (c *GatewayClient) BotUserID() string {
	c.botMu.RLock()
	defer c.botMu.RUnlock()
	return c.botUserID
}

// closeConnection closes the WebSocket connection so the listener rebuilds
// it. Safe for concurrent calls.
func (c *GatewayClient) closeConnection() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		if err := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(1*time.Second),
		); err != nil {
			logging.Debug().Err(err).Msg("Discord gateway: failed to send close frame")
		}
		if err := c.conn.Close(); err != nil {
			logging.Debug().Err(err).Msg("Discord gateway: failed to close connection")
		}
		c.conn = nil
		logging.Info().Msg("Discord gateway connection closed")
	}
}

// Close gracefully shuts down the gateway client: signals the goroutines,
// closes the connection, and waits for them to exit.
func (c *GatewayClient) Close() error {
	close(c.stopChan)
	c.closeConnection()
	c.wg.Wait()

	logging.Info().Msg("Discord gateway client shut down")
	return nil
}

// IsConnected reports whether the gateway connection is established.
func (c *GatewayClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}
