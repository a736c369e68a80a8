package http

import (
	"net/http"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/pkg/errors"
	"streamfy/pkg/validation"

	"github.com/gin-gonic/gin"
	webrtc "github.com/pion/webrtc/v3"
)

// LiveChannelLister reports which channels are currently live.
type LiveChannelLister interface {
	LiveChannels() []domain.ChannelID
}

type RoomHandler struct {
	presence   ports.PresenceStore
	live       LiveChannelLister
	iceServers []webrtc.ICEServer
}

var _ ports.RoomHTTPHandler = (*RoomHandler)(nil)

func NewRoomHandler(presence ports.PresenceStore, live LiveChannelLister, iceServers []webrtc.ICEServer) *RoomHandler {
	return &RoomHandler{
		presence:   presence,
		live:       live,
		iceServers: iceServers,
	}
}

func (h *RoomHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.GET("/rooms/:roomId", h.GetRoom)
		api.GET("/channels/live", h.ListLiveChannels)
		api.GET("/ice-servers", h.GetICEServers)
	}
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")
	if err := validation.ValidateRoomID(roomID); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	members := h.presence.MembersOf(domain.RoomID(roomID))
	if len(members) == 0 {
		c.Error(toAppError(domain.ErrRoomNotFound))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_id": roomID,
		"count":   len(members),
		"members": members,
	})
}

func (h *RoomHandler) ListLiveChannels(c *gin.Context) {
	channels := h.live.LiveChannels()
	if channels == nil {
		channels = []domain.ChannelID{}
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

func (h *RoomHandler) GetICEServers(c *gin.Context) {
	servers := h.iceServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	c.JSON(http.StatusOK, gin.H{"ice_servers": servers})
}
