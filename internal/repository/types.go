package repository

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/constant"
)

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageContent represents the content of a message
type MessageContent struct {
	Text   string `json:"text,omitempty"`
	Image  string `json:"image,omitempty"`
	Video  string `json:"video,omitempty"`
	Audio  string `json:"audio,omitempty"`
	File   string `json:"file,omitempty"`
	Custom string `json:"custom,omitempty"`
}

// MessageInfo represents message info
type MessageInfo struct {
	Id             int64          `json:"id"`
	ConversationId string         `json:"conversation_id"`
	Seq            int64          `json:"seq"`
	ClientMsgId    string         `json:"client_msg_id"`
	SenderId       string         `json:"sender_id"`
	SenderNickname string         `json:"sender_nickname,omitempty"`
	SenderAvatar   string         `json:"sender_avatar,omitempty"`
	RecvId         string         `json:"recv_id,omitempty"`
	GroupId        string         `json:"group_id,omitempty"`
	SessionType    int32          `json:"session_type"`
	MsgType        int32          `json:"msg_type"`
	Content        MessageContent `json:"content"`
	SendAt         int64          `json:"send_at"`
	IsRead         bool           `json:"is_read"`
	IsEdited       bool           `json:"is_edited"`
}

// ToMessage converts the DTO to entity.Message
func (m *MessageInfo) ToMessage() *entity.Message {
	msg := &entity.Message{
		Id: strconv.FormatInt(m.Id, 10),
		Sender: entity.Identity{
			Id:     m.SenderId,
			Name:   m.SenderNickname,
			Avatar: m.SenderAvatar,
		},
		RecipientId: m.RecvId,
		GroupId:     m.GroupId,
		Content:     m.Content.Text,
		CreatedAt:   m.SendAt,
		IsRead:      m.IsRead,
		IsEdited:    m.IsEdited,
	}
	if m.SessionType == constant.SessionTypeGroup && msg.GroupId == "" {
		msg.GroupId = groupIdFromConversationId(m.ConversationId)
	}
	return msg
}

// ConversationInfo represents conversation info as listed for the current user
type ConversationInfo struct {
	ConversationId   string       `json:"conversation_id"`
	ConversationType int32        `json:"conversation_type"`
	PeerUserId       string       `json:"peer_user_id,omitempty"`
	PeerNickname     string       `json:"peer_nickname,omitempty"`
	PeerAvatar       string       `json:"peer_avatar,omitempty"`
	GroupId          string       `json:"group_id,omitempty"`
	GroupName        string       `json:"group_name,omitempty"`
	GroupAvatar      string       `json:"group_avatar,omitempty"`
	UnreadCount      int64        `json:"unread_count"`
	MaxSeq           int64        `json:"max_seq"`
	ReadSeq          int64        `json:"read_seq"`
	UpdatedAt        int64        `json:"updated_at"`
	LastMessage      *MessageInfo `json:"last_message,omitempty"`
}

// ToConversation converts the DTO to entity.Conversation. Unknown types yield nil.
func (c *ConversationInfo) ToConversation() *entity.Conversation {
	conv := &entity.Conversation{UnreadCount: c.UnreadCount}
	switch c.ConversationType {
	case constant.SessionTypeSingle:
		conv.Kind = entity.KindDirect
		conv.Counterpart = entity.Identity{Id: c.PeerUserId, Name: c.PeerNickname, Avatar: c.PeerAvatar}
	case constant.SessionTypeGroup:
		conv.Kind = entity.KindGroup
		groupId := c.GroupId
		if groupId == "" {
			groupId = groupIdFromConversationId(c.ConversationId)
		}
		conv.Counterpart = entity.Identity{Id: groupId, Name: c.GroupName, Avatar: c.GroupAvatar}
	default:
		return nil
	}
	if conv.Counterpart.Id == "" {
		return nil
	}
	if c.LastMessage != nil {
		conv.LastMessage = c.LastMessage.ToMessage().Summary()
	}
	return conv
}

func groupIdFromConversationId(convId string) string {
	groupId, ok := strings.CutPrefix(convId, constant.GroupConversationPrefix)
	if !ok {
		return ""
	}
	return groupId
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ClientMsgId string         `json:"client_msg_id"`
	RecvId      string         `json:"recv_id,omitempty"`  // For single chat
	GroupId     string         `json:"group_id,omitempty"` // For group chat
	SessionType int32          `json:"session_type"`
	MsgType     int32          `json:"msg_type"`
	Content     MessageContent `json:"content"`
}

// HistoryResponse represents message history response, newest first
type HistoryResponse struct {
	Messages []*MessageInfo `json:"messages"`
	MaxSeq   int64          `json:"max_seq"`
}

// MarkReadRequest represents mark read request
type MarkReadRequest struct {
	ConversationId string `json:"conversation_id"`
	ReadSeq        int64  `json:"read_seq"`
}
