package entity

// Message is a chat message as delivered by the backend
type Message struct {
	Id          string   `json:"id"`
	Sender      Identity `json:"sender"`
	RecipientId string   `json:"recipient_id,omitempty"` // direct
	GroupId     string   `json:"group_id,omitempty"`     // group
	Content     string   `json:"content"`
	CreatedAt   int64    `json:"created_at"` // unix millis
	IsRead      bool     `json:"is_read"`
	IsEdited    bool     `json:"is_edited"`
}

// IsGroup reports whether the message was sent to a group
func (m *Message) IsGroup() bool {
	return m.GroupId != ""
}

// Summary returns the last-message projection of m
func (m *Message) Summary() *LastMessage {
	return &LastMessage{
		Id:         m.Id,
		Content:    m.Content,
		SenderId:   m.Sender.Id,
		SenderName: m.Sender.Name,
		CreatedAt:  m.CreatedAt,
		IsRead:     m.IsRead,
	}
}

// BelongsTo reports whether m is part of conv.
// Direct messages match on either party; group messages match on group id.
func (m *Message) BelongsTo(conv *Conversation) bool {
	if conv == nil {
		return false
	}
	if m.IsGroup() {
		return conv.Kind == KindGroup && conv.Counterpart.Id == m.GroupId
	}
	if conv.Kind != KindDirect {
		return false
	}
	return conv.Counterpart.Id == m.Sender.Id || conv.Counterpart.Id == m.RecipientId
}
