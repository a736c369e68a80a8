package signal

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/pkg/utils"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

var ErrHubStopped = errors.New("hub stopped")

// HubMetrics receives hub level counters and gauges.
type HubMetrics interface {
	SetConnections(n int)
	SetRooms(n int)
	IncBroadcast(kind string)
	IncSignalRelayed(kind string)
	IncSignalDropped(kind string)
	IncClientDropped()
}

type noopHubMetrics struct{}

func (noopHubMetrics) SetConnections(int)      {}
func (noopHubMetrics) SetRooms(int)            {}
func (noopHubMetrics) IncBroadcast(string)     {}
func (noopHubMetrics) IncSignalRelayed(string) {}
func (noopHubMetrics) IncSignalDropped(string) {}
func (noopHubMetrics) IncClientDropped()       {}

type nopActivity struct{}

func (nopActivity) Record(context.Context, domain.ActivityType, string, map[string]interface{}) {}

type HubConfig struct {
	MaxChatLength int
}

// Hub owns every connected client and all room state. Commands are
// executed one at a time by the goroutine started with Run, so presence
// changes and the messages they produce are observed by all clients in
// the same order.
type Hub struct {
	presence  ports.PresenceStore
	activity  ports.ActivityLogger
	publisher ports.ChannelStatusPublisher
	metrics   HubMetrics
	logger    *zap.SugaredLogger
	cfg       HubConfig
	now       func() time.Time

	cmds chan func()
	done chan struct{}

	// loop-owned
	clients      map[domain.ConnectionID]*Client
	channelChats map[domain.ChannelID]map[domain.ConnectionID]*Client

	liveMu sync.RWMutex
	live   map[domain.ChannelID]struct{}
}

// NewHub creates a hub. Run must be started before any other call.
func NewHub(presence ports.PresenceStore, activity ports.ActivityLogger, metrics HubMetrics, cfg HubConfig, logger *zap.SugaredLogger) *Hub {
	if metrics == nil {
		metrics = noopHubMetrics{}
	}
	if activity == nil {
		activity = nopActivity{}
	}
	if cfg.MaxChatLength <= 0 {
		cfg.MaxChatLength = 500
	}
	return &Hub{
		presence: presence,
		activity: activity,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		cmds:     make(chan func(), 256),
		done:     make(chan struct{}),
		clients:  make(map[domain.ConnectionID]*Client),
		live:     make(map[domain.ChannelID]struct{}),

		channelChats: make(map[domain.ChannelID]map[domain.ConnectionID]*Client),
	}
}

// SetPublisher installs the cross-instance channel status publisher. It
// must be called before Run.
func (h *Hub) SetPublisher(p ports.ChannelStatusPublisher) {
	h.publisher = p
}

// Run processes hub commands until ctx is cancelled. On exit every
// client's send queue is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info("Hub started")

	for {
		select {
		case <-ctx.Done():
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.metrics.SetConnections(0)
			h.logger.Info("Hub stopped")
			return
		case fn := <-h.cmds:
			fn()
		}
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// call runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) call(fn func()) error {
	finished := make(chan struct{})
	select {
	case h.cmds <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubStopped
	}
	select {
	case <-finished:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Register adds c and sends it a welcome message.
func (h *Hub) Register(c *Client) error {
	return h.call(func() {
		h.clients[c.ID] = c
		h.deliver(c, encode(WelcomeMessage{Type: TypeWelcome, ID: c.ID}))
		h.metrics.SetConnections(len(h.clients))
		h.logger.Infow("Client connected", "connection_id", c.ID, "display_name", c.DisplayName)
	})
}

// Unregister removes the client, leaving its room first. Calling it more
// than once is harmless.
func (h *Hub) Unregister(c *Client) error {
	return h.call(func() {
		if h.clients[c.ID] != c {
			return
		}
		h.leave(c)
		for channelID := range c.channels {
			h.leaveChannelChat(c, channelID)
		}
		delete(h.clients, c.ID)
		close(c.send)
		h.metrics.SetConnections(len(h.clients))
		h.logger.Infow("Client disconnected", "connection_id", c.ID)
	})
}

// Join moves c into roomID and announces it to the room.
func (h *Hub) Join(ctx context.Context, c *Client, roomID domain.RoomID, displayName string) error {
	var err error
	callErr := h.call(func() {
		name := displayNameOf(c, displayName)

		var joined bool
		joined, err = h.presence.Join(c.ID, roomID, name)
		if err != nil || !joined {
			return
		}
		c.DisplayName = name

		others := lo.Filter(h.presence.MembersOf(roomID), func(m domain.Member, _ int) bool {
			return m.ID != c.ID
		})
		h.deliver(c, encode(MemberListMessage{Type: TypeMemberList, RoomID: roomID, Members: others}))
		h.broadcastExcept(roomID, c.ID, TypeMemberJoined, encode(MemberEventMessage{
			Type:        TypeMemberJoined,
			ID:          c.ID,
			DisplayName: name,
		}))

		count := h.presence.CountOf(roomID)
		h.broadcastViewerCount(roomID)
		h.metrics.SetRooms(len(h.presence.Rooms()))

		h.activity.Record(ctx, domain.ActivityStreamStarted, name, map[string]interface{}{
			"room_id":      string(roomID),
			"viewer_count": count,
		})
		h.logger.Infow("Client joined room", "connection_id", c.ID, "room_id", roomID, "viewer_count", count)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Leave removes c from its room.
func (h *Hub) Leave(c *Client) error {
	var left bool
	if err := h.call(func() { left = h.leave(c) }); err != nil {
		return err
	}
	if !left {
		return domain.ErrNotInRoom
	}
	return nil
}

func (h *Hub) leave(c *Client) bool {
	roomID, member, ok := h.presence.Leave(c.ID)
	if !ok {
		return false
	}
	if h.presence.CountOf(roomID) > 0 {
		h.broadcast(roomID, TypeMemberLeft, encode(MemberEventMessage{
			Type:        TypeMemberLeft,
			ID:          member.ID,
			DisplayName: member.DisplayName,
		}))
		h.broadcastViewerCount(roomID)
	}
	h.metrics.SetRooms(len(h.presence.Rooms()))
	h.logger.Infow("Client left room", "connection_id", c.ID, "room_id", roomID)
	return true
}

// Chat broadcasts text to the room c is in.
func (h *Hub) Chat(ctx context.Context, c *Client, roomID domain.RoomID, text string) error {
	text = utils.TruncateString(utils.SanitizeString(text), h.cfg.MaxChatLength)

	var err error
	callErr := h.call(func() {
		var room domain.RoomID
		if room, err = h.memberRoom(c, roomID); err != nil {
			return
		}
		name := displayNameOf(c, "")
		h.broadcast(room, TypeChat, encode(ChatMessage{
			Type:        TypeChat,
			RoomID:      room,
			From:        c.ID,
			DisplayName: name,
			Text:        text,
			Timestamp:   h.now().UnixMilli(),
		}))
		h.activity.Record(ctx, domain.ActivityMessageSent, name, map[string]interface{}{
			"room_id": string(room),
			"length":  len(text),
		})
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// Reaction broadcasts an emoji. displayName overrides the client's name
// for this message only.
func (h *Hub) Reaction(c *Client, roomID domain.RoomID, emoji, displayName string) error {
	var err error
	callErr := h.call(func() {
		var room domain.RoomID
		if room, err = h.memberRoom(c, roomID); err != nil {
			return
		}
		name := displayNameOf(c, displayName)
		h.broadcast(room, TypeReaction, encode(ReactionMessage{
			Type:        TypeReaction,
			RoomID:      room,
			Emoji:       emoji,
			DisplayName: name,
		}))
	})
	if callErr != nil {
		return callErr
	}
	return err
}

func (h *Hub) RequestViewerCount(c *Client, roomID domain.RoomID) error {
	var err error
	callErr := h.call(func() {
		var room domain.RoomID
		if room, err = h.memberRoom(c, roomID); err != nil {
			return
		}
		h.broadcastViewerCount(room)
	})
	if callErr != nil {
		return callErr
	}
	return err
}

// SetChannelLive marks a channel live or offline and tells every
// connected client. Other instances are notified through the publisher.
func (h *Hub) SetChannelLive(ctx context.Context, actorName string, channelID domain.ChannelID, live bool) error {
	var changed bool
	if err := h.call(func() { changed = h.applyChannelStatus(channelID, live) }); err != nil {
		return err
	}

	if changed {
		activityType := domain.ActivityStreamEnded
		if live {
			activityType = domain.ActivityStreamStarted
		}
		h.activity.Record(ctx, activityType, actorName, map[string]interface{}{
			"channel_id": string(channelID),
		})
	}

	if h.publisher != nil {
		if err := h.publisher.PublishChannelStatus(ctx, channelID, live); err != nil {
			h.logger.Warnw("Failed to publish channel status", "channel_id", channelID, "error", err)
		}
	}
	return nil
}

// ApplyRemoteChannelStatus applies a transition announced by another
// instance. It is broadcast locally but neither recorded nor republished.
func (h *Hub) ApplyRemoteChannelStatus(channelID domain.ChannelID, live bool) error {
	return h.call(func() { h.applyChannelStatus(channelID, live) })
}

func (h *Hub) applyChannelStatus(channelID domain.ChannelID, live bool) bool {
	h.liveMu.Lock()
	_, wasLive := h.live[channelID]
	if live {
		h.live[channelID] = struct{}{}
	} else {
		delete(h.live, channelID)
	}
	h.liveMu.Unlock()

	data := encode(ChannelStatusMessage{Type: TypeChannelStatusChange, ChannelID: channelID, IsLive: live})
	for _, c := range h.clients {
		h.deliver(c, data)
	}
	h.metrics.IncBroadcast(TypeChannelStatusChange)
	h.logger.Infow("Channel status changed", "channel_id", channelID, "is_live", live)
	return wasLive != live
}

// SeedLiveChannels marks channels live without notifying anyone. Used at
// startup to load the cluster-wide live set.
func (h *Hub) SeedLiveChannels(ids []domain.ChannelID) {
	h.liveMu.Lock()
	defer h.liveMu.Unlock()
	for _, id := range ids {
		h.live[id] = struct{}{}
	}
}

// LiveChannels returns the live channel ids in sorted order.
func (h *Hub) LiveChannels() []domain.ChannelID {
	h.liveMu.RLock()
	ids := lo.Keys(h.live)
	h.liveMu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ConnectionCount returns the number of registered clients.
func (h *Hub) ConnectionCount() int {
	n := 0
	_ = h.call(func() { n = len(h.clients) })
	return n
}

// memberRoom resolves the room a room-scoped message targets. An empty
// roomID means the client's current room.
func (h *Hub) memberRoom(c *Client, roomID domain.RoomID) (domain.RoomID, error) {
	current, ok := h.presence.RoomOf(c.ID)
	if !ok || (roomID != "" && roomID != current) {
		return "", domain.ErrNotInRoom
	}
	return current, nil
}

func (h *Hub) broadcastViewerCount(roomID domain.RoomID) {
	h.broadcast(roomID, TypeViewerCount, encode(ViewerCountMessage{
		Type:   TypeViewerCount,
		RoomID: roomID,
		Count:  h.presence.CountOf(roomID),
	}))
}

func (h *Hub) broadcast(roomID domain.RoomID, kind string, data []byte) {
	h.broadcastExcept(roomID, "", kind, data)
}

func (h *Hub) broadcastExcept(roomID domain.RoomID, except domain.ConnectionID, kind string, data []byte) {
	for _, m := range h.presence.MembersOf(roomID) {
		if m.ID == except {
			continue
		}
		if c, ok := h.clients[m.ID]; ok {
			h.deliver(c, data)
		}
	}
	h.metrics.IncBroadcast(kind)
}

// deliver queues data for c without blocking. A client whose queue is
// full is considered dead: its socket is closed and it is unregistered.
func (h *Hub) deliver(c *Client, data []byte) {
	if c.dropped || data == nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.dropped = true
		h.metrics.IncClientDropped()
		h.logger.Warnw("Send buffer full, dropping client", "connection_id", c.ID)
		c.Close()
		go func() { _ = h.Unregister(c) }()
	}
}

// displayNameOf picks the per-message override, then the client's own
// name, then AnonymousName.
func displayNameOf(c *Client, override string) string {
	switch {
	case override != "":
		return override
	case c.DisplayName != "":
		return c.DisplayName
	default:
		return domain.AnonymousName
	}
}

func encode(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
