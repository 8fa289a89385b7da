// Package ws is the realtime connection gateway: it authenticates websocket
// connections, routes inbound heartbeat/tab messages into the presence
// tracker, and forwards live friend events back out.
package ws

import (
	"encoding/json"

	"glimpse/internal/infrastructure/cache"
)

// Client -> server message types. The first message on a connection must be
// an auth message; everything else requires prior authentication.
const (
	MsgTypeAuth            = "auth"
	MsgTypePing            = "ping"
	MsgTypeActiveTabUpdate = "active_tab_update"
	MsgTypeAllTabsUpdate   = "all_tabs_update"
)

// Server -> client message types. The friend presence types are uppercase
// for compatibility with the browser extension's message contract.
const (
	MsgTypePong                  = "pong"
	MsgTypeError                 = "error"
	MsgTypeFriendOnline          = "FRIEND_ONLINE"
	MsgTypeFriendOffline         = "FRIEND_OFFLINE"
	MsgTypeFriendTabUpdate       = "friend_tab_update"
	MsgTypeFriendActiveTabUpdate = "friend_active_tab_update"
)

// ClientMessage is the envelope for every inbound message.
type ClientMessage struct {
	Type  string          `json:"type"`
	Token string          `json:"token,omitempty"`
	Tab   *cache.TabInfo  `json:"tab,omitempty"`
	Tabs  []cache.TabInfo `json:"tabs,omitempty"`
}

// AuthUser is the authenticated identity echoed back on a successful auth.
type AuthUser struct {
	UserID      uint   `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// AuthResult answers the auth message.
type AuthResult struct {
	Type    string    `json:"type"`
	Success bool      `json:"success"`
	User    *AuthUser `json:"user,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// PongMessage answers a ping.
type PongMessage struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
}

// ErrorMessage precedes a server-initiated close.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// FriendPresenceData is the payload of FRIEND_ONLINE / FRIEND_OFFLINE.
type FriendPresenceData struct {
	UserID      uint   `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Timestamp   int64  `json:"timestamp"`
}

// FriendPresenceMessage announces a friend's online/offline transition.
type FriendPresenceMessage struct {
	Type string             `json:"type"`
	Data FriendPresenceData `json:"data"`
}

// FriendTabMessage forwards a friend's tab event. Data is passed through
// verbatim from the event bus.
type FriendTabMessage struct {
	Type     string          `json:"type"`
	FriendID uint            `json:"friendId"`
	Data     json.RawMessage `json:"data"`
}

func newErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: MsgTypeError, Error: msg}
}
