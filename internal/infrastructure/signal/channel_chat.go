package signal

import (
	"streamfy/internal/core/domain"
	"streamfy/pkg/utils"
)

// JoinChannelChat subscribes c to a channel's chat group. The group is
// independent of stream rooms, so a client may be in both. Joining twice
// is a no-op.
func (h *Hub) JoinChannelChat(c *Client, channelID domain.ChannelID) error {
	return h.call(func() {
		if h.clients[c.ID] != c {
			return
		}
		members, ok := h.channelChats[channelID]
		if !ok {
			members = make(map[domain.ConnectionID]*Client)
			h.channelChats[channelID] = members
		}
		members[c.ID] = c
		c.channels[channelID] = struct{}{}
		h.logger.Debugw("Client joined channel chat", "connection_id", c.ID, "channel_id", channelID)
	})
}

// LeaveChannelChat unsubscribes c. Leaving a group it never joined is a
// no-op.
func (h *Hub) LeaveChannelChat(c *Client, channelID domain.ChannelID) error {
	return h.call(func() { h.leaveChannelChat(c, channelID) })
}

func (h *Hub) leaveChannelChat(c *Client, channelID domain.ChannelID) {
	delete(c.channels, channelID)
	members, ok := h.channelChats[channelID]
	if !ok {
		return
	}
	delete(members, c.ID)
	if len(members) == 0 {
		delete(h.channelChats, channelID)
	}
}

// ChannelMessage sends text to every member of the channel's chat group,
// the sender included. The sender must have joined the group.
func (h *Hub) ChannelMessage(c *Client, channelID domain.ChannelID, text, displayName string) error {
	text = utils.TruncateString(utils.SanitizeString(text), h.cfg.MaxChatLength)

	var err error
	callErr := h.call(func() {
		if _, ok := c.channels[channelID]; !ok {
			err = domain.ErrNotInChannel
			return
		}
		data := encode(ChannelChatMessage{
			Type:        TypeChannelMessage,
			ChannelID:   channelID,
			From:        c.ID,
			DisplayName: displayNameOf(c, displayName),
			Text:        text,
			Timestamp:   h.now().UnixMilli(),
		})
		for _, member := range h.channelChats[channelID] {
			h.deliver(member, data)
		}
		h.metrics.IncBroadcast(TypeChannelMessage)
	})
	if callErr != nil {
		return callErr
	}
	return err
}
