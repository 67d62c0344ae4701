package service

import (
	"context"
	"strings"
	"sync"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/errcode"
)

// ConversationStore holds the conversation summaries in fetch order
type ConversationStore struct {
	backend Backend

	mu    sync.RWMutex
	convs []*entity.Conversation
	// ids of messages already projected, so redeliveries are ignored
	applied map[string]struct{}
}

// NewConversationStore creates an empty ConversationStore
func NewConversationStore(backend Backend) *ConversationStore {
	return &ConversationStore{backend: backend, applied: make(map[string]struct{})}
}

// Load replaces the store with the backend's list. On failure the store is left untouched.
func (s *ConversationStore) Load(ctx context.Context) error {
	list, err := s.backend.GetConversations(ctx)
	if err != nil {
		log.CtxError(ctx, "load conversations failed: %v", err)
		return errcode.ErrFetchFailed.Wrap(err)
	}

	seen := make(map[entity.ConversationKey]struct{}, len(list))
	applied := make(map[string]struct{}, len(list))
	convs := make([]*entity.Conversation, 0, len(list))
	for _, conv := range list {
		if conv == nil || !conv.Kind.Valid() {
			continue
		}
		key := conv.Key()
		if _, ok := seen[key]; ok {
			log.CtxWarn(ctx, "duplicate conversation skipped: kind=%s, id=%s", key.Kind, key.Id)
			continue
		}
		seen[key] = struct{}{}
		if conv.LastMessage != nil && conv.LastMessage.Id != "" {
			applied[conv.LastMessage.Id] = struct{}{}
		}
		convs = append(convs, conv.Clone())
	}

	s.mu.Lock()
	s.convs = convs
	s.applied = applied
	s.mu.Unlock()

	log.CtxInfo(ctx, "conversations loaded: count=%d", len(convs))
	return nil
}

// ApplyIncomingMessage projects msg onto its conversation's last message and
// bumps the unread count when countUnread is set. It reports whether a
// conversation matched; unknown conversations are not created. A message id
// that was already applied leaves the store unchanged.
func (s *ConversationStore) ApplyIncomingMessage(msg *entity.Message, countUnread bool) bool {
	if msg == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, conv := range s.convs {
		if !msg.BelongsTo(conv) {
			continue
		}
		if msg.Id != "" {
			if _, dup := s.applied[msg.Id]; dup {
				return true
			}
			s.applied[msg.Id] = struct{}{}
		}
		updated := conv.Clone()
		updated.LastMessage = msg.Summary()
		if countUnread {
			updated.UnreadCount++
		}
		s.convs[i] = updated
		return true
	}

	log.Debug("no conversation for message: id=%s, sender=%s", msg.Id, msg.Sender.Id)
	return false
}

// Filter returns conversations whose counterpart name contains query, case-insensitively.
// An empty query returns every conversation in stored order.
func (s *ConversationStore) Filter(query string) []*entity.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	result := make([]*entity.Conversation, 0, len(s.convs))
	for _, conv := range s.convs {
		if needle == "" || strings.Contains(strings.ToLower(conv.Counterpart.Name), needle) {
			result = append(result, conv.Clone())
		}
	}
	return result
}

// List returns every conversation in stored order
func (s *ConversationStore) List() []*entity.Conversation {
	return s.Filter("")
}

// Get returns the conversation identified by kind and id
func (s *ConversationStore) Get(kind entity.ConversationKind, id string) (*entity.Conversation, bool) {
	key := entity.ConversationKey{Kind: kind, Id: id}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conv := range s.convs {
		if conv.Key() == key {
			return conv.Clone(), true
		}
	}
	return nil, false
}

// MarkRead zeroes the unread count of key
func (s *ConversationStore) MarkRead(key entity.ConversationKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, conv := range s.convs {
		if conv.Key() != key {
			continue
		}
		if conv.UnreadCount == 0 && (conv.LastMessage == nil || conv.LastMessage.IsRead) {
			return false
		}
		updated := conv.Clone()
		updated.UnreadCount = 0
		if updated.LastMessage != nil {
			updated.LastMessage.IsRead = true
		}
		s.convs[i] = updated
		return true
	}
	return false
}

// Reset empties the store
func (s *ConversationStore) Reset() {
	s.mu.Lock()
	s.convs = nil
	s.applied = make(map[string]struct{})
	s.mu.Unlock()
}
