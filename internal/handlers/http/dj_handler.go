package http

import (
	"net/http"
	"strconv"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/ports"
	"streamfy/internal/infrastructure/middleware"
	"streamfy/pkg/errors"
	"streamfy/pkg/validation"

	"github.com/gin-gonic/gin"
)

type DJHandler struct {
	djService ports.DJService
}

var _ ports.DJHTTPHandler = (*DJHandler)(nil)

func NewDJHandler(djService ports.DJService) *DJHandler {
	return &DJHandler{djService: djService}
}

// SetupRoutes registers the DJ API. Reads are public; writes go through
// requireAuth.
func (h *DJHandler) SetupRoutes(router gin.IRouter, requireAuth gin.HandlerFunc) {
	api := router.Group("/api/v1/dj")
	{
		api.GET("", h.ListSessions)
		api.GET("/:channelId", h.GetState)

		write := api.Group("/:channelId", requireAuth)
		write.POST("/init", h.Initialize)
		write.POST("/queue", h.Enqueue)
		write.POST("/vote/:index", h.Vote)
		write.POST("/next", h.PlayNext)
		write.POST("/skip", h.Skip)
		write.DELETE("/queue/:index", h.RemoveTrack)
		write.DELETE("/queue", h.ClearQueue)
		write.PUT("/settings", h.UpdateSettings)
	}
}

func (h *DJHandler) Initialize(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}
	session, err := h.djService.Initialize(c.Request.Context(), channelID)
	respond(c, session, err)
}

func (h *DJHandler) GetState(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}
	session, err := h.djService.GetState(c.Request.Context(), channelID)
	respond(c, session, err)
}

func (h *DJHandler) ListSessions(c *gin.Context) {
	channels, err := h.djService.ListChannels(c.Request.Context())
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	if channels == nil {
		channels = []domain.ChannelID{}
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

func (h *DJHandler) Enqueue(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	var req ports.TrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateTrack(req.Title, req.Artist, req.URL); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return
	}

	identity, _ := middleware.IdentityFrom(c)
	session, err := h.djService.Enqueue(c.Request.Context(), channelID, req, identity)
	respond(c, session, err)
}

func (h *DJHandler) Vote(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}

	identity, _ := middleware.IdentityFrom(c)
	session, err := h.djService.Vote(c.Request.Context(), channelID, index, identity.UserID)
	respond(c, session, err)
}

func (h *DJHandler) PlayNext(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}
	session, err := h.djService.PlayNext(c.Request.Context(), channelID)
	respond(c, session, err)
}

func (h *DJHandler) Skip(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}
	session, err := h.djService.Skip(c.Request.Context(), channelID)
	respond(c, session, err)
}

func (h *DJHandler) RemoveTrack(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}
	session, err := h.djService.RemoveTrack(c.Request.Context(), channelID, index)
	respond(c, session, err)
}

func (h *DJHandler) ClearQueue(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}
	session, err := h.djService.ClearQueue(c.Request.Context(), channelID)
	respond(c, session, err)
}

func (h *DJHandler) UpdateSettings(c *gin.Context) {
	channelID, ok := channelParam(c)
	if !ok {
		return
	}

	var patch domain.DJSettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}
	session, err := h.djService.UpdateSettings(c.Request.Context(), channelID, patch)
	respond(c, session, err)
}

func respond(c *gin.Context, session *domain.DJSession, err error) {
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"dj": session})
}

func channelParam(c *gin.Context) (domain.ChannelID, bool) {
	id := c.Param("channelId")
	if err := validation.ValidateChannelID(id); err != nil {
		c.Error(errors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return domain.ChannelID(id), true
}

// indexParam parses a queue position. Range checks are left to the
// session so out-of-range positions surface as 404.
func indexParam(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.Error(errors.NewInvalidInputError("index must be an integer"))
		return 0, false
	}
	return index, true
}
