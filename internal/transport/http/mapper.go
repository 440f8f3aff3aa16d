package http

import (
	"encoding/json"

	"github.com/vibechat/relay/internal/core"
	"github.com/vibechat/relay/internal/proto"
)

// inboundToCommand maps a wire message to a gateway command. A nil command
// means the message was malformed or unknown and must be dropped silently.
func inboundToCommand(inbound proto.Inbound) *core.Command {
	switch inbound.Type {
	case proto.InboundTypeJoin, proto.InboundTypeLeave:
		var join proto.JoinData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil
		}
		if join.RoomSlug == "" {
			return nil
		}
		kind := core.CommandJoin
		if inbound.Type == proto.InboundTypeLeave {
			kind = core.CommandLeave
		}
		return &core.Command{
			Kind:     kind,
			Channel:  core.RoomChannel(join.RoomSlug),
			Identity: join.Username,
		}
	default:
		return nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventConnected:
		return proto.Outbound{
			Type: proto.OutboundTypeConnected,
			Data: proto.ConnectedData{Status: "connected", Username: event.Identity},
		}
	case core.EventJoined:
		return proto.Outbound{
			Type: proto.OutboundTypeJoined,
			Data: proto.RoomAck{RoomSlug: core.RoomSlug(event.Channel)},
		}
	case core.EventLeft:
		return proto.Outbound{
			Type: proto.OutboundTypeLeft,
			Data: proto.RoomAck{RoomSlug: core.RoomSlug(event.Channel)},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type: proto.OutboundTypeUserJoined,
			Data: proto.PresenceData{RoomSlug: core.RoomSlug(event.Channel), Username: event.Identity},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Type: proto.OutboundTypeUserLeft,
			Data: proto.PresenceData{RoomSlug: core.RoomSlug(event.Channel), Username: event.Identity},
		}
	case core.EventActiveUsers:
		users := event.Identities
		if users == nil {
			users = []string{}
		}
		return proto.Outbound{
			Type: proto.OutboundTypeActiveUsers,
			Data: proto.ActiveUsersData{RoomSlug: core.RoomSlug(event.Channel), Users: users},
		}
	case core.EventExternal:
		return proto.Outbound{Type: event.Name, Data: event.Payload}
	default:
		return proto.Outbound{Type: "event"}
	}
}
