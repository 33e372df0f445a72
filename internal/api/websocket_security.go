package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/LegacyBridge/internal/logging"
)

// WebSocketSecurityConfig holds WebSocket-specific security configuration.
type WebSocketSecurityConfig struct {
	// AllowedOrigins lists allowed origins; "*" allows all.
	AllowedOrigins []string
	// MaxMessageRate is the maximum number of messages per second per client.
	MaxMessageRate int
	// MaxMessageSize is the maximum incoming message size in bytes.
	MaxMessageSize int64
	// Auth, when enabled, requires the API key before the upgrade.
	Auth AuthConfig
}

// DefaultWebSocketSecurityConfig returns the limits used by the server.
func DefaultWebSocketSecurityConfig() WebSocketSecurityConfig {
	return WebSocketSecurityConfig{
		AllowedOrigins: []string{"*"},
		MaxMessageRate: 10,
		MaxMessageSize: 4096,
	}
}

// WebSocketRateLimiter tracks incoming message rates per client.
type WebSocketRateLimiter struct {
	mu      sync.RWMutex
	clients map[*Client]*tokenBucket
}

// NewWebSocketRateLimiter creates a new WebSocket rate limiter.
func NewWebSocketRateLimiter() *WebSocketRateLimiter {
	return &WebSocketRateLimiter{clients: make(map[*Client]*tokenBucket)}
}

// Register gives client a bucket allowing bursts of twice its rate.
func (rl *WebSocketRateLimiter) Register(client *Client, messagesPerSecond int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rate := float64(messagesPerSecond)
	rl.clients[client] = newTokenBucket(rate*2, rate)
}

// Unregister removes a client from rate limiting.
func (rl *WebSocketRateLimiter) Unregister(client *Client) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, client)
}

// Allow reports whether client may send another message. Unregistered
// clients are denied.
func (rl *WebSocketRateLimiter) Allow(client *Client) bool {
	rl.mu.RLock()
	bucket, ok := rl.clients[client]
	rl.mu.RUnlock()
	return ok && bucket.allow()
}

// CheckOriginWithConfig returns an upgrader origin check for config.
func CheckOriginWithConfig(config WebSocketSecurityConfig) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if isOriginAllowed(origin, config.AllowedOrigins) {
			return true
		}
		logging.SecurityEvent("websocket_origin_rejected", "websocket", "origin", origin)
		return false
	}
}

// ValidateAuthForWebSocket returns an error message when the request lacks
// a valid API key, or "" when it may connect. Browsers cannot set headers
// on a WebSocket handshake, so the api_key query parameter is accepted too.
func ValidateAuthForWebSocket(r *http.Request, config WebSocketSecurityConfig) string {
	if !config.Auth.Enabled {
		return ""
	}
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		apiKey = r.URL.Query().Get("api_key")
	}
	if apiKey == "" {
		return "Missing API key (X-API-Key header or api_key query parameter)"
	}
	if !constantTimeCompare(apiKey, config.Auth.APIKey) {
		return "Invalid API key"
	}
	return ""
}

// SecureWebSocketHandler authenticates, checks the origin, upgrades and
// registers the client with hub. Incoming messages are size and rate
// limited; the feed is otherwise one-way.
func SecureWebSocketHandler(hub *Hub, config WebSocketSecurityConfig, rateLimiter *WebSocketRateLimiter) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     CheckOriginWithConfig(config),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if msg := ValidateAuthForWebSocket(r, config); msg != "" {
			logging.SecurityEvent("websocket_unauthorized", "websocket",
				"reason", msg,
				"client_ip", getClientIP(r))
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", msg)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("websocket upgrade failed", "error", err)
			return
		}
		conn.SetReadLimit(config.MaxMessageSize)

		client := &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer)}
		if !hub.add(client) {
			conn.Close()
			return
		}
		rateLimiter.Register(client, config.MaxMessageRate)

		logging.WebSocketEvent("client_accepted", hub.ClientCount(),
			"client_ip", getClientIP(r),
			"origin", r.Header.Get("Origin"))

		go client.writePump()
		go client.readPump(rateLimiter)
	}
}

// readPump discards incoming messages, enforcing the rate limit, until the
// connection closes.
func (c *Client) readPump(rateLimiter *WebSocketRateLimiter) {
	defer func() {
		rateLimiter.Unregister(c)
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn("websocket unexpected close", "error", err)
			}
			return
		}
		if !rateLimiter.Allow(c) {
			logging.SecurityEvent("websocket_rate_limited", "websocket")
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "Rate limit exceeded"),
				time.Now().Add(writeWait))
			return
		}
		logging.Debug("websocket message ignored", "bytes", len(message))
	}
}
