package service

import (
	"context"

	"github.com/mbeoliero/chatsync/internal/entity"
)

// Backend is the request/response side of the chat backend
type Backend interface {
	GetConversations(ctx context.Context) ([]*entity.Conversation, error)
	// GetDirectHistory and GetGroupHistory return messages newest first
	GetDirectHistory(ctx context.Context, counterpartId string, limit int) ([]*entity.Message, error)
	GetGroupHistory(ctx context.Context, groupId string, limit int) ([]*entity.Message, error)
	MarkDirectRead(ctx context.Context, counterpartId string) error
	SendDirect(ctx context.Context, recipientId, content string) error
	SendGroup(ctx context.Context, groupId, content string) error
}

// Signaler emits fire-and-forget signals over the live connection
type Signaler interface {
	JoinGroup(ctx context.Context, groupId string) error
	StartTyping(ctx context.Context, target entity.TypingTarget) error
	StopTyping(ctx context.Context, target entity.TypingTarget) error
}

// Connection is the live event channel consumed by the Engine
type Connection interface {
	Signaler

	SetUserId(userId string)
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool

	OnConnectionChange(fn func(connected bool)) func()
	OnMessage(fn func(msg *entity.Message)) func()
	OnTyping(fn func(ev *entity.TypingEvent)) func()
	OnUserOnline(fn func(userId string)) func()
	OnUserOffline(fn func(userId string)) func()
	OnOnlineUsers(fn func(userIds []string)) func()
}
