package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin  = "join"
	InboundTypeLeave = "leave"

	OutboundTypeConnected       = "connected"
	OutboundTypeJoined          = "joined"
	OutboundTypeLeft            = "left"
	OutboundTypeUserJoined      = "user_joined"
	OutboundTypeUserLeft        = "user_left"
	OutboundTypeActiveUsers     = "active_users"
	OutboundTypeNewMessage      = "new_message"
	OutboundTypeMessagesCleared = "messages_cleared"
)

// JoinData requests to join or leave a specific room. The username label is
// optional; anonymous subscribers receive broadcasts but no presence.
type JoinData struct {
	RoomSlug string `json:"room_slug"`
	Username string `json:"username,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ConnectedData confirms admission. Username is set for authenticated
// sessions only.
type ConnectedData struct {
	Status   string `json:"status"`
	Username string `json:"username,omitempty"`
}

// RoomAck acknowledges the client's own join or leave.
type RoomAck struct {
	RoomSlug string `json:"room_slug"`
}

// PresenceData announces another identity joining or leaving a room.
type PresenceData struct {
	RoomSlug string `json:"room_slug"`
	Username string `json:"username"`
}

// ActiveUsersData is the presence snapshot sent to a new joiner.
type ActiveUsersData struct {
	RoomSlug string   `json:"room_slug"`
	Users    []string `json:"users"`
}

// RoomMessagePayload is the persisted-room-message record forwarded to
// subscribers after a successful write.
type RoomMessagePayload struct {
	MessageID int64  `json:"message_id"`
	RoomSlug  string `json:"room_slug"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// MessagesClearedPayload notifies room subscribers that history was wiped.
type MessagesClearedPayload struct {
	RoomSlug string `json:"room_slug"`
}

// DirectMessagePayload is the encrypted-relay record forwarded to the
// recipient's inbox. The ciphertext is opaque to the server.
type DirectMessagePayload struct {
	MessageID   int64  `json:"message_id"`
	SenderID    int64  `json:"sender_id"`
	Sender      string `json:"sender"`
	Ciphertext  string `json:"ciphertext"`
	Nonce       string `json:"nonce,omitempty"`
	Salt        string `json:"salt,omitempty"`
	MessageType string `json:"message_type"`
	CreatedAt   string `json:"created_at"`
}
