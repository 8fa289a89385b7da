package ws

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"glimpse/internal/application/presence"
	"glimpse/internal/infrastructure/auth"
	"glimpse/internal/shared/biztime"
	"glimpse/internal/shared/config"
	"glimpse/internal/shared/logger"
)

const (
	// writeWait bounds a single write to a slow client.
	writeWait = 10 * time.Second
	// authWait bounds how long an unauthenticated connection may idle
	// before sending its auth message.
	authWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser extension connects from arbitrary page origins; bearer
	// token auth on the first message is the access control.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway upgrades websocket connections and runs their lifecycle: auth
// handshake, heartbeat watchdog, inbound message routing into the tracker,
// and fan-out subscription teardown plus final flush on close.
type Gateway struct {
	tracker  *presence.Tracker
	tokens   *auth.JWTService
	fanout   *Fanout
	registry *Registry
	cfg      *config.PresenceConfig
	logger   logger.Interface
}

func NewGateway(
	tracker *presence.Tracker,
	tokens *auth.JWTService,
	fanout *Fanout,
	registry *Registry,
	cfg *config.PresenceConfig,
	log logger.Interface,
) *Gateway {
	return &Gateway{
		tracker:  tracker,
		tokens:   tokens,
		fanout:   fanout,
		registry: registry,
		cfg:      cfg,
		logger:   log.Named("ws.gateway"),
	}
}

// Handle is the gin endpoint for GET /ws.
func (g *Gateway) Handle(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn)
	claims, ok := g.authenticate(client)
	if !ok {
		client.Close()
		return
	}

	ctx := c.Request.Context()
	sessionID, err := g.tracker.OpenSession(ctx, claims.UserID)
	if err != nil {
		g.logger.Errorw("failed to open presence session",
			"user_id", claims.UserID,
			"error", err,
		)
		g.writeDirect(client, newErrorMessage("failed to establish session"))
		client.Close()
		return
	}

	client.UserID = claims.UserID
	client.SessionID = sessionID
	client.Username = claims.Username
	client.DisplayName = claims.DisplayName

	if previous := g.registry.Register(client); previous != nil {
		g.logger.Infow("displacing previous connection", "user_id", claims.UserID)
		previous.Close()
	}

	g.writeDirect(client, AuthResult{
		Type:    MsgTypeAuth,
		Success: true,
		User: &AuthUser{
			UserID:      claims.UserID,
			Username:    claims.Username,
			DisplayName: claims.DisplayName,
		},
	})

	g.logger.Infow("client connected",
		"user_id", claims.UserID,
		"session_id", sessionID,
		"connections", g.registry.Count(),
	)

	g.run(client)
}

// authenticate performs the auth-first handshake: the very first message
// must be a valid auth message or the connection is refused.
func (g *Gateway) authenticate(client *Client) (*auth.Claims, bool) {
	_ = client.conn.SetReadDeadline(time.Now().Add(authWait))

	var msg ClientMessage
	if err := client.conn.ReadJSON(&msg); err != nil {
		g.logger.Debugw("auth read failed", "error", err)
		return nil, false
	}
	if msg.Type != MsgTypeAuth {
		g.writeDirect(client, newErrorMessage("authentication required"))
		return nil, false
	}

	claims, err := g.tokens.Verify(msg.Token)
	if err != nil {
		g.writeDirect(client, AuthResult{
			Type:    MsgTypeAuth,
			Success: false,
			Error:   "Invalid token",
		})
		return nil, false
	}
	return claims, true
}

// run drives an authenticated connection until it closes, then tears down
// registry state and hands the session to the tracker for its final flush.
func (g *Gateway) run(client *Client) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lastPing atomic.Int64
	lastPing.Store(biztime.NowUTC().Unix())

	go g.writePump(client, &lastPing)
	go func() {
		if err := g.fanout.Start(ctx, client); err != nil {
			g.logger.Errorw("fan-out subscription failed",
				"user_id", client.UserID,
				"error", err,
			)
		}
	}()

	g.readPump(ctx, client, &lastPing)

	cancel()
	client.Close()
	g.registry.Unregister(client)

	// Fresh context: the final flush must run even though the connection
	// context is gone.
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer flushCancel()

	if _, stillConnected := g.registry.Lookup(client.UserID); stillConnected {
		// A reconnect displaced this connection. Close its session row but
		// leave the replacement's online state alone.
		if err := g.tracker.Flush(flushCtx, client.UserID, client.SessionID); err != nil {
			g.logger.Errorw("displaced connection flush failed",
				"user_id", client.UserID,
				"session_id", client.SessionID,
				"error", err,
			)
		}
	} else if err := g.tracker.Disconnect(flushCtx, client.UserID, client.SessionID); err != nil {
		g.logger.Errorw("disconnect flush failed",
			"user_id", client.UserID,
			"session_id", client.SessionID,
			"error", err,
		)
	}

	g.logger.Infow("client disconnected",
		"user_id", client.UserID,
		"session_id", client.SessionID,
		"connections", g.registry.Count(),
	)
}

// readPump consumes inbound messages until the connection errors or the
// watchdog closes it.
func (g *Gateway) readPump(ctx context.Context, client *Client, lastPing *atomic.Int64) {
	_ = client.conn.SetReadDeadline(time.Time{})

	for {
		var msg ClientMessage
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debugw("unexpected close", "user_id", client.UserID, "error", err)
			}
			return
		}

		switch msg.Type {
		case MsgTypePing:
			lastPing.Store(biztime.NowUTC().Unix())
			client.Enqueue(PongMessage{Type: MsgTypePong, Ts: biztime.NowUTC().UnixMilli()})
			if err := g.tracker.RecordHeartbeat(ctx, client.UserID); err != nil {
				g.logger.Warnw("heartbeat refresh failed", "user_id", client.UserID, "error", err)
			}
		case MsgTypeActiveTabUpdate:
			if msg.Tab == nil {
				client.Enqueue(newErrorMessage("tab payload is required"))
				continue
			}
			if err := g.tracker.SwitchActiveTab(ctx, client.UserID, *msg.Tab); err != nil {
				g.logger.Warnw("active tab update failed", "user_id", client.UserID, "error", err)
				client.Enqueue(newErrorMessage("failed to record active tab"))
			}
		case MsgTypeAllTabsUpdate:
			if err := g.tracker.UpdateAllTabs(ctx, client.UserID, msg.Tabs); err != nil {
				g.logger.Warnw("all tabs update failed", "user_id", client.UserID, "error", err)
				client.Enqueue(newErrorMessage("failed to record tabs"))
			}
		default:
			g.logger.Debugw("ignoring unknown message type",
				"user_id", client.UserID,
				"type", msg.Type,
			)
		}
	}
}

// writePump is the single writer for the connection. It also runs the
// heartbeat watchdog: a client that stops pinging past the grace window is
// force-closed so its session flushes promptly instead of waiting for the
// TTL to lapse.
func (g *Gateway) writePump(client *Client, lastPing *atomic.Int64) {
	watchdog := time.NewTicker(g.cfg.HeartbeatExpected())
	defer watchdog.Stop()

	deadline := g.cfg.HeartbeatExpected() + g.cfg.HeartbeatGrace()

	for {
		select {
		case msg := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(msg); err != nil {
				g.logger.Debugw("write failed", "user_id", client.UserID, "error", err)
				client.Close()
				return
			}
		case <-watchdog.C:
			silent := biztime.NowUTC().Unix() - lastPing.Load()
			if silent > int64(deadline.Seconds()) {
				g.logger.Infow("heartbeat timeout, closing connection",
					"user_id", client.UserID,
					"silent_seconds", silent,
				)
				_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = client.conn.WriteJSON(newErrorMessage("heartbeat timeout"))
				client.Close()
				return
			}
		case <-client.done:
			return
		}
	}
}

// writeDirect writes synchronously, for the handshake phase before the
// write pump is running.
func (g *Gateway) writeDirect(client *Client, msg any) {
	_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := client.conn.WriteJSON(msg); err != nil {
		g.logger.Debugw("handshake write failed", "error", err)
	}
}
