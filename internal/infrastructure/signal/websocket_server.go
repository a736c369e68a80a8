package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"streamfy/internal/core/domain"
	"streamfy/internal/core/services"
	rlog "streamfy/pkg/logger"
	"streamfy/pkg/tracing"
	"streamfy/pkg/utils"
	"streamfy/pkg/validation"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ServerConfig struct {
	Client         ClientConfig
	AllowedOrigins []string
	// MaxConcurrent bounds open sockets; 0 means unlimited.
	MaxConcurrent     int
	MessagesPerSecond float64
	Burst             int
	RequireAuth       bool
}

// WebSocketServer upgrades /ws requests and turns inbound frames into
// hub commands.
type WebSocketServer struct {
	hub      *Hub
	auth     services.AuthService
	cfg      ServerConfig
	upgrader websocket.Upgrader
	slots    chan struct{}
	logger   *zap.SugaredLogger
}

func NewWebSocketServer(hub *Hub, auth services.AuthService, cfg ServerConfig, logger *zap.SugaredLogger) *WebSocketServer {
	s := &WebSocketServer{
		hub:    hub,
		auth:   auth,
		cfg:    cfg,
		logger: logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	if cfg.MaxConcurrent > 0 {
		s.slots = make(chan struct{}, cfg.MaxConcurrent)
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		default:
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}
	}

	identity, err := s.identify(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	displayName := r.URL.Query().Get("display_name")
	if displayName == "" {
		displayName = identity.DisplayName
	}
	if displayName != "" {
		if err := validation.ValidateDisplayName(displayName); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		displayName = domain.AnonymousName
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("WebSocket upgrade failed", "error", err)
		return
	}

	var limiter *rate.Limiter
	if s.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), max(s.cfg.Burst, 1))
	}

	id := domain.ConnectionID(uuid.NewString())
	client := NewClient(id, conn, identity, displayName, limiter, s.cfg.Client, s.logger)
	if err := s.hub.Register(client); err != nil {
		_ = conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump(s.handleFrame)

	_ = s.hub.Unregister(client)
}

// identify resolves the caller from a bearer token or token query
// parameter. Without a token the caller is anonymous unless auth is
// required.
func (s *WebSocketServer) identify(r *http.Request) (domain.Identity, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = services.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" || s.auth == nil {
		if s.cfg.RequireAuth {
			return domain.Identity{}, domain.ErrUnauthorized
		}
		return domain.Identity{}, nil
	}

	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		s.logger.Debugw("Rejected websocket token", "token", utils.MaskSensitive(token, 8), "error", err)
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	return claims.Identity(), nil
}

func (s *WebSocketServer) handleFrame(c *Client, data []byte) {
	ctx := rlog.WithConnectionID(context.Background(), string(c.ID))
	if !c.Identity.Anonymous() {
		ctx = rlog.WithUserID(ctx, string(c.Identity.UserID))
	}

	if !c.Allow() {
		s.sendError(c, "rate limit exceeded")
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendError(c, "invalid message format")
		return
	}

	ctx, span := tracing.TraceWebSocketMessage(ctx, msg.Type, string(c.ID))
	defer span.End()

	if err := s.handleMessage(ctx, c, msg); err != nil {
		if errors.Is(err, ErrHubStopped) {
			return
		}
		tracing.RecordError(ctx, err)
		s.logger.Debugw("Message rejected", "connection_id", c.ID, "type", msg.Type, "error", err)
		s.sendError(c, err.Error())
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, c *Client, msg ClientMessage) error {
	switch msg.Type {
	case TypeJoinRoom:
		if err := validation.ValidateRoomID(string(msg.RoomID)); err != nil {
			return err
		}
		if msg.DisplayName != "" {
			if err := validation.ValidateDisplayName(msg.DisplayName); err != nil {
				return err
			}
		}
		tracing.AddSpanAttributes(ctx, tracing.RoomIDKey.String(string(msg.RoomID)))
		return s.hub.Join(ctx, c, msg.RoomID, msg.DisplayName)

	case TypeLeaveRoom:
		return s.hub.Leave(c)

	case TypeOffer, TypeAnswer, TypeICECandidate:
		if err := validation.ValidateConnectionID(string(msg.Target)); err != nil {
			return err
		}
		return s.hub.Relay(c, msg.Type, msg.Target, msg.Payload)

	case TypeChat:
		// Over-long text is truncated by the hub rather than rejected.
		if err := validation.ValidateChatText(msg.Text, s.maxFrame()); err != nil {
			return err
		}
		return s.hub.Chat(ctx, c, msg.RoomID, msg.Text)

	case TypeReaction:
		if err := validation.ValidateEmoji(msg.Emoji); err != nil {
			return err
		}
		return s.hub.Reaction(c, msg.RoomID, msg.Emoji, msg.DisplayName)

	case TypeRequestViewerCount:
		return s.hub.RequestViewerCount(c, msg.RoomID)

	case TypeChannelGoLive, TypeChannelStopLive:
		if err := validation.ValidateChannelID(string(msg.ChannelID)); err != nil {
			return err
		}
		tracing.AddSpanAttributes(ctx, tracing.ChannelIDKey.String(string(msg.ChannelID)))
		return s.hub.SetChannelLive(ctx, displayNameOf(c, ""), msg.ChannelID, msg.Type == TypeChannelGoLive)

	case TypeJoinChannel, TypeLeaveChannel:
		if err := validation.ValidateChannelID(string(msg.ChannelID)); err != nil {
			return err
		}
		tracing.AddSpanAttributes(ctx, tracing.ChannelIDKey.String(string(msg.ChannelID)))
		if msg.Type == TypeJoinChannel {
			return s.hub.JoinChannelChat(c, msg.ChannelID)
		}
		return s.hub.LeaveChannelChat(c, msg.ChannelID)

	case TypeChannelMessage:
		if err := validation.ValidateChannelID(string(msg.ChannelID)); err != nil {
			return err
		}
		if err := validation.ValidateChatText(msg.Text, s.maxFrame()); err != nil {
			return err
		}
		if msg.DisplayName != "" {
			if err := validation.ValidateDisplayName(msg.DisplayName); err != nil {
				return err
			}
		}
		return s.hub.ChannelMessage(c, msg.ChannelID, msg.Text, msg.DisplayName)

	case "":
		return errors.New("message type is required")
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *WebSocketServer) maxFrame() int {
	if s.cfg.Client.MaxMessageSize > 0 {
		return int(s.cfg.Client.MaxMessageSize)
	}
	return 64 * 1024
}

// sendError goes through the client's queue so it stays ordered with hub
// output. It is dropped if the queue is full or closed.
func (s *WebSocketServer) sendError(c *Client, message string) {
	_ = s.hub.call(func() {
		if s.hub.clients[c.ID] == c {
			s.hub.deliver(c, encode(ErrorMessage{Type: TypeError, Message: message}))
		}
	})
}
