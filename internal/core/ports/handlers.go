package ports

import (
	"github.com/gin-gonic/gin"
)

type DJHTTPHandler interface {
	Initialize(c *gin.Context)
	GetState(c *gin.Context)
	ListSessions(c *gin.Context)
	Enqueue(c *gin.Context)
	Vote(c *gin.Context)
	PlayNext(c *gin.Context)
	Skip(c *gin.Context)
	RemoveTrack(c *gin.Context)
	ClearQueue(c *gin.Context)
	UpdateSettings(c *gin.Context)
}

type RoomHTTPHandler interface {
	GetRoom(c *gin.Context)
	ListLiveChannels(c *gin.Context)
	GetICEServers(c *gin.Context)
}
