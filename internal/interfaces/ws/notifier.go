package ws

import (
	"glimpse/internal/application/social"
)

// Friend request push types, matching the extension's message contract.
const (
	MsgTypeFriendRequestReceived = "FRIEND_REQUEST_RECEIVED"
	MsgTypeFriendRequestAccepted = "FRIEND_REQUEST_ACCEPTED"
)

// FriendRequestMessage pushes a friend request event to a connected user.
type FriendRequestMessage struct {
	Type string                     `json:"type"`
	Data social.FriendRequestNotice `json:"data"`
}

// Notifier delivers friend request pushes through the connection registry.
// Implements social.Notifier.
type Notifier struct {
	registry *Registry
}

func NewNotifier(registry *Registry) *Notifier {
	return &Notifier{registry: registry}
}

func (n *Notifier) PushFriendRequestReceived(userID uint, notice social.FriendRequestNotice) {
	n.push(userID, MsgTypeFriendRequestReceived, notice)
}

func (n *Notifier) PushFriendRequestAccepted(userID uint, notice social.FriendRequestNotice) {
	n.push(userID, MsgTypeFriendRequestAccepted, notice)
}

func (n *Notifier) push(userID uint, msgType string, notice social.FriendRequestNotice) {
	if client, ok := n.registry.Lookup(userID); ok {
		client.Enqueue(FriendRequestMessage{Type: msgType, Data: notice})
	}
}
