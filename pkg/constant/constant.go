package constant

import (
	"strings"
	"time"
)

// Session types
const (
	SessionTypeSingle = 1 // Single chat
	SessionTypeGroup  = 2 // Group chat
)

// Message types
const (
	MsgTypeText = 1
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

// Default timings
const (
	DefaultTypingTimeout  = 3 * time.Second
	DefaultTypingDebounce = 1 * time.Second
	DefaultHistoryLimit   = 50
)

// Conversation Id prefixes
const (
	SingleConversationPrefix = "si_"
	GroupConversationPrefix  = "sg_"
)

// SingleConversationId builds si_{userA}:{userB} with the ids in lexicographic order
func SingleConversationId(userA, userB string) string {
	if strings.Compare(userA, userB) > 0 {
		userA, userB = userB, userA
	}
	return SingleConversationPrefix + userA + ":" + userB
}

// GroupConversationId builds sg_{groupId}
func GroupConversationId(groupId string) string {
	return GroupConversationPrefix + groupId
}

// Redis channel patterns (without prefix)
const (
	redisChannelPush   = "push:%s"   // push:{user_id}, backend -> client frames
	redisChannelSignal = "signal:%s" // signal:{user_id}, client -> backend frames
)

// redisKeyPrefix is the global prefix for all Redis channels
var redisKeyPrefix = "chatsync:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

func RedisChannelPush() string   { return redisKeyPrefix + redisChannelPush }
func RedisChannelSignal() string { return redisKeyPrefix + redisChannelSignal }
