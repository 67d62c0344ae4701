package gateway

import "time"

// WebSocket protocol constants (aligned with open-im-server)
const (
	// Request identifiers (client -> backend)
	WSJoinGroup   = 1007 // Join a group room
	WSStartTyping = 1008 // Local user started typing
	WSStopTyping  = 1009 // Local user stopped typing

	// Push identifiers (backend -> client)
	WSPushMsg         = 2001 // Server push message
	WSKickOnlineMsg   = 2002 // Kick user offline
	WSPushTyping      = 2003 // Typing indicator
	WSPushUserOnline  = 2004 // User came online
	WSPushUserOffline = 2005 // User went offline
	WSPushOnlineUsers = 2006 // Online users snapshot
	WSDataError       = 3001 // Data error
)

// Timeout constants
const (
	// WriteWait is time allowed to write a message to the peer
	WriteWait = 10 * time.Second

	// PongWait is time allowed to read the next pong message from the peer
	PongWait = 30 * time.Second

	// PingPeriod is period between pings. Must be less than PongWait
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize is maximum message size allowed from peer
	MaxMessageSize = 51200

	// WriteChannelSize is the outbound frame buffer of a connection
	WriteChannelSize = 256
)

// Query parameter keys
const (
	QueryToken      = "token"
	QuerySendId     = "send_id"
	QueryPlatformId = "platform_id"
	QuerySDKType    = "sdk_type"
)

// SDK types
const (
	SDKTypeGo = "go"
)

// State is the connection state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)
