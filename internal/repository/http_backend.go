package repository

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/config"
	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/constant"
)

// HTTPBackend serves conversation lists, history, mark-read and send over REST
type HTTPBackend struct {
	client *Client

	mu     sync.RWMutex
	userId string
}

// NewHTTPBackend creates an HTTPBackend from config
func NewHTTPBackend(cfg *config.Config) (*HTTPBackend, error) {
	c, err := NewClient(cfg.Server.BaseURL, cfg.Sync.RequestTimeout, WithToken(cfg.Auth.Token))
	if err != nil {
		return nil, err
	}
	return &HTTPBackend{client: c, userId: cfg.Auth.UserId}, nil
}

// NewHTTPBackendWithClient wraps an existing Client
func NewHTTPBackendWithClient(c *Client) *HTTPBackend {
	return &HTTPBackend{client: c}
}

// SetUserId sets the local user used to derive direct conversation ids
func (b *HTTPBackend) SetUserId(userId string) {
	b.mu.Lock()
	b.userId = userId
	b.mu.Unlock()
}

func (b *HTTPBackend) selfId() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.userId
}

// GetConversations lists the current user's conversations in backend order
func (b *HTTPBackend) GetConversations(ctx context.Context) ([]*entity.Conversation, error) {
	var infos []*ConversationInfo
	if err := b.client.get(ctx, "/conversation/list", nil, &infos); err != nil {
		return nil, err
	}

	convs := make([]*entity.Conversation, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		conv := info.ToConversation()
		if conv == nil {
			log.CtxWarn(ctx, "skip unknown conversation: conversation_id=%s, type=%d", info.ConversationId, info.ConversationType)
			continue
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

// GetDirectHistory returns the newest messages with counterpartId, newest first
func (b *HTTPBackend) GetDirectHistory(ctx context.Context, counterpartId string, limit int) ([]*entity.Message, error) {
	return b.history(ctx, constant.SingleConversationId(b.selfId(), counterpartId), limit)
}

// GetGroupHistory returns the newest messages of groupId, newest first
func (b *HTTPBackend) GetGroupHistory(ctx context.Context, groupId string, limit int) ([]*entity.Message, error) {
	return b.history(ctx, constant.GroupConversationId(groupId), limit)
}

func (b *HTTPBackend) history(ctx context.Context, conversationId string, limit int) ([]*entity.Message, error) {
	params := url.Values{}
	params.Set("conversation_id", conversationId)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var result HistoryResponse
	if err := b.client.get(ctx, "/msg/history", params, &result); err != nil {
		return nil, err
	}

	msgs := make([]*entity.Message, 0, len(result.Messages))
	for _, m := range result.Messages {
		if m != nil {
			msgs = append(msgs, m.ToMessage())
		}
	}
	return msgs, nil
}

// MarkDirectRead marks the direct conversation with counterpartId read up to its max seq
func (b *HTTPBackend) MarkDirectRead(ctx context.Context, counterpartId string) error {
	return b.client.post(ctx, "/conversation/mark_read", &MarkReadRequest{
		ConversationId: constant.SingleConversationId(b.selfId(), counterpartId),
		ReadSeq:        0,
	}, nil)
}

// SendDirect sends a text message to a user
func (b *HTTPBackend) SendDirect(ctx context.Context, recipientId, content string) error {
	return b.send(ctx, &SendMessageRequest{
		RecvId:      recipientId,
		SessionType: constant.SessionTypeSingle,
	}, content)
}

// SendGroup sends a text message to a group
func (b *HTTPBackend) SendGroup(ctx context.Context, groupId, content string) error {
	return b.send(ctx, &SendMessageRequest{
		GroupId:     groupId,
		SessionType: constant.SessionTypeGroup,
	}, content)
}

func (b *HTTPBackend) send(ctx context.Context, req *SendMessageRequest, content string) error {
	req.ClientMsgId = uuid.NewString()
	req.MsgType = constant.MsgTypeText
	req.Content = MessageContent{Text: content}

	var result MessageInfo
	if err := b.client.post(ctx, "/msg/send", req, &result); err != nil {
		return err
	}
	log.CtxDebug(ctx, "message sent: client_msg_id=%s, server_msg_id=%d", req.ClientMsgId, result.Id)
	return nil
}
