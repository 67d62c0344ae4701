package entity

import "github.com/mbeoliero/chatsync/pkg/constant"

// ConversationKind distinguishes direct and group conversations
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// Valid reports whether k is a known kind
func (k ConversationKind) Valid() bool {
	return k == KindDirect || k == KindGroup
}

// Identity is a user or group as seen by the client
type Identity struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// LastMessage is the denormalized projection of a conversation's newest message
type LastMessage struct {
	Id         string `json:"id"`
	Content    string `json:"content"`
	SenderId   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	CreatedAt  int64  `json:"created_at"`
	IsRead     bool   `json:"is_read"`
}

// ConversationKey identifies a conversation: one per (kind, counterpart id)
type ConversationKey struct {
	Kind ConversationKind
	Id   string
}

// Conversation is a direct or group thread summarized by its newest message
type Conversation struct {
	Kind        ConversationKind `json:"kind"`
	Counterpart Identity         `json:"counterpart"`
	LastMessage *LastMessage     `json:"last_message,omitempty"`
	UnreadCount int64            `json:"unread_count"`
}

// Key returns the identity key of the conversation
func (c *Conversation) Key() ConversationKey {
	return ConversationKey{Kind: c.Kind, Id: c.Counterpart.Id}
}

// SameAs reports whether c and other are the same entity
func (c *Conversation) SameAs(other *Conversation) bool {
	return other != nil && c.Key() == other.Key()
}

// Clone returns a deep copy
func (c *Conversation) Clone() *Conversation {
	cp := *c
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}

// ConversationId returns the backend conversation id as seen by selfId
func (c *Conversation) ConversationId(selfId string) string {
	if c.Kind == KindGroup {
		return constant.GroupConversationId(c.Counterpart.Id)
	}
	return constant.SingleConversationId(selfId, c.Counterpart.Id)
}

// TypingTarget returns the addressee of typing signals for this conversation
func (c *Conversation) TypingTarget() TypingTarget {
	if c.Kind == KindGroup {
		return TypingTarget{GroupId: c.Counterpart.Id}
	}
	return TypingTarget{UserId: c.Counterpart.Id}
}

// TypingTarget addresses a typing signal: exactly one of UserId or GroupId is set
type TypingTarget struct {
	UserId  string `json:"recv_id,omitempty"`
	GroupId string `json:"group_id,omitempty"`
}
