package gateway

import (
	"encoding/json"
	"strconv"

	"github.com/mbeoliero/chatsync/internal/entity"
)

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32           `json:"req_identifier"` // Request type
	MsgIncr       string          `json:"msg_incr"`       // Client message counter/trace Id
	OperationId   string          `json:"operation_id"`   // Operation Id
	SendId        string          `json:"send_id"`        // Sender user Id
	Data          json.RawMessage `json:"data,omitempty"` // Business data
}

// WSResponse represents a WebSocket response or push message
type WSResponse struct {
	ReqIdentifier int32           `json:"req_identifier"` // Request type (echo back) or push type
	MsgIncr       string          `json:"msg_incr"`       // Message counter (echo back)
	OperationId   string          `json:"operation_id"`   // Operation Id (echo back)
	ErrCode       int             `json:"err_code"`       // Error code, 0 = success
	ErrMsg        string          `json:"err_msg"`        // Error message
	Data          json.RawMessage `json:"data,omitempty"` // Response data
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

// MessageData represents a pushed message
type MessageData struct {
	ServerMsgId    int64          `json:"server_msg_id"`
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

// ToMessage converts MessageData to entity.Message
func (d *MessageData) ToMessage() *entity.Message {
	return &entity.Message{
		Id: strconv.FormatInt(d.ServerMsgId, 10),
		Sender: entity.Identity{
			Id:     d.SenderId,
			Name:   d.SenderNickname,
			Avatar: d.SenderAvatar,
		},
		RecipientId: d.RecvId,
		GroupId:     d.GroupId,
		Content:     d.Content.Text,
		CreatedAt:   d.SendAt,
		IsRead:      d.IsRead,
		IsEdited:    d.IsEdited,
	}
}

// PushMsgData represents push message data
type PushMsgData struct {
	Msgs map[string][]*MessageData `json:"msgs"` // conversation_id -> messages
}

// TypingData represents a typing indicator push
type TypingData struct {
	UserId  string `json:"user_id"`
	Typing  bool   `json:"typing"`
	GroupId string `json:"group_id,omitempty"`
}

// UserStatusData represents a user online/offline push
type UserStatusData struct {
	UserId string `json:"user_id"`
}

// OnlineUser is one entry of an online users snapshot
type OnlineUser struct {
	UserId   string `json:"user_id"`
	Nickname string `json:"nickname,omitempty"`
}

// OnlineUsersData represents the online users snapshot push
type OnlineUsersData struct {
	Users []OnlineUser `json:"users"`
}

// JoinGroupReq represents join group request data
type JoinGroupReq struct {
	GroupId string `json:"group_id"`
}

// TypingReq represents start/stop typing request data
type TypingReq struct {
	RecvId  string `json:"recv_id,omitempty"`
	GroupId string `json:"group_id,omitempty"`
}

// Encode encodes data to JSON bytes
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
