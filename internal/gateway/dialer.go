package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mbeoliero/chatsync/internal/config"
)

// Dialer opens a ClientConn for the given local user
type Dialer interface {
	Dial(ctx context.Context, userId string) (ClientConn, error)
}

// WebSocketDialer dials the backend gateway with gorilla/websocket
type WebSocketDialer struct {
	url        string
	token      string
	platformId int
	opts       connOptions
	dialer     *websocket.Dialer
}

// NewWebSocketDialer creates a WebSocketDialer from config
func NewWebSocketDialer(cfg *config.Config) *WebSocketDialer {
	return &WebSocketDialer{
		url:        cfg.Server.WSURL,
		token:      cfg.Auth.Token,
		platformId: cfg.Auth.PlatformId,
		opts: connOptions{
			maxMsgSize:       cfg.WebSocket.MaxMessageSize,
			writeWait:        cfg.WebSocket.WriteWait,
			pongWait:         cfg.WebSocket.PongWait,
			pingPeriod:       cfg.WebSocket.PingPeriod,
			writeChannelSize: cfg.WebSocket.WriteChannelSize,
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.WebSocket.DialTimeout,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// newDefaultWebSocketDialer uses the package timeout constants
func newDefaultWebSocketDialer(wsURL, token string, platformId int) *WebSocketDialer {
	return &WebSocketDialer{
		url:        wsURL,
		token:      token,
		platformId: platformId,
		opts: connOptions{
			maxMsgSize:       MaxMessageSize,
			writeWait:        WriteWait,
			pongWait:         PongWait,
			pingPeriod:       PingPeriod,
			writeChannelSize: WriteChannelSize,
		},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Dial connects to the gateway, authenticating with query parameters
func (d *WebSocketDialer) Dial(ctx context.Context, userId string) (ClientConn, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}

	query := u.Query()
	query.Set(QueryToken, d.token)
	query.Set(QuerySendId, userId)
	query.Set(QueryPlatformId, strconv.Itoa(d.platformId))
	query.Set(QuerySDKType, SDKTypeGo)
	u.RawQuery = query.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial: http %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	return newWebSocketClientConn(conn, d.opts), nil
}
