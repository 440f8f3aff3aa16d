package core

import (
	"strconv"
	"strings"
)

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventConnected confirms a successful admission.
	EventConnected EventKind = iota
	// EventJoined acknowledges the connection's own join request.
	EventJoined
	// EventLeft acknowledges the connection's own leave request.
	EventLeft
	// EventUserJoined notifies a channel that another identity joined.
	EventUserJoined
	// EventUserLeft notifies a channel that an identity's last connection departed.
	EventUserLeft
	// EventActiveUsers delivers a presence snapshot to a newly joined connection.
	EventActiveUsers
	// EventExternal forwards a persisted-message notification verbatim.
	// Name carries the event name (new_message, messages_cleared) and
	// Payload the opaque record produced by the persistence layer.
	EventExternal
)

// Event is sent to connections to describe what happened in the system.
type Event struct {
	Kind       EventKind
	Channel    string
	Identity   string
	Identities []string // for EventActiveUsers
	Name       string   // for EventExternal
	Payload    any      // for EventExternal, forwarded as-is
}

const (
	roomChannelPrefix = "room:"
	userChannelPrefix = "user:"
)

// RoomChannel derives the broadcast channel key for a room slug.
func RoomChannel(slug string) string {
	return roomChannelPrefix + slug
}

// InboxChannel derives the private inbox channel key for a user id.
func InboxChannel(userID int64) string {
	return userChannelPrefix + strconv.FormatInt(userID, 10)
}

// RoomSlug extracts the slug from a room channel key. Returns the key
// unchanged if it does not carry the room prefix.
func RoomSlug(channel string) string {
	return strings.TrimPrefix(channel, roomChannelPrefix)
}
