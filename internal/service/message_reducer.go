package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/constant"
	"github.com/mbeoliero/chatsync/pkg/errcode"
)

// ReducerOptions tunes a MessageReducer
type ReducerOptions struct {
	HistoryLimit   int
	TypingDebounce time.Duration
	SignalTimeout  time.Duration
}

func (o *ReducerOptions) fill() {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = constant.DefaultHistoryLimit
	}
	if o.TypingDebounce <= 0 {
		o.TypingDebounce = constant.DefaultTypingDebounce
	}
	if o.SignalTimeout <= 0 {
		o.SignalTimeout = 5 * time.Second
	}
}

// MessageReducer owns the open conversation's message list, the compose
// draft and the local typing signal.
type MessageReducer struct {
	backend  Backend
	signaler Signaler
	clock    Clock
	opts     ReducerOptions

	mu       sync.Mutex
	active   *entity.Conversation
	gen      uint64
	loading  bool
	messages []*entity.Message
	ids      map[string]struct{}
	draft    string
	sending  bool

	localTyping   bool
	debounce      Timer
	debounceToken *struct{}

	onError    func(error)
	onActivate func()
}

// NewMessageReducer creates a MessageReducer with no open conversation
func NewMessageReducer(backend Backend, signaler Signaler, clock Clock, opts ReducerOptions) *MessageReducer {
	if clock == nil {
		clock = RealClock()
	}
	opts.fill()
	return &MessageReducer{
		backend:  backend,
		signaler: signaler,
		clock:    clock,
		opts:     opts,
		ids:      make(map[string]struct{}),
	}
}

// SetErrorHandler sets the receiver of asynchronous failures
func (r *MessageReducer) SetErrorHandler(fn func(error)) {
	r.mu.Lock()
	r.onError = fn
	r.mu.Unlock()
}

// SetActivateHandler sets fn to run when a conversation becomes active.
// fn runs under the reducer lock and must not call back into the reducer.
func (r *MessageReducer) SetActivateHandler(fn func()) {
	r.mu.Lock()
	r.onActivate = fn
	r.mu.Unlock()
}

// OpenConversation makes conv active, replacing the list with its history.
// A response that arrives after another conversation was opened is discarded.
func (r *MessageReducer) OpenConversation(ctx context.Context, conv *entity.Conversation) error {
	if conv == nil || !conv.Kind.Valid() || conv.Counterpart.Id == "" {
		return errcode.ErrInvalidParam
	}

	r.mu.Lock()
	prevTarget, stopPrev := r.clearTypingLocked()
	r.gen++
	gen := r.gen
	r.active = conv.Clone()
	r.messages = nil
	r.ids = make(map[string]struct{})
	r.draft = ""
	r.loading = true
	if r.onActivate != nil {
		r.onActivate()
	}
	r.mu.Unlock()

	if stopPrev {
		r.signal(ctx, prevTarget, false)
	}

	log.CtxInfo(ctx, "open conversation: kind=%s, id=%s", conv.Kind, conv.Counterpart.Id)

	var history []*entity.Message
	var err error
	if conv.Kind == entity.KindGroup {
		history, err = r.backend.GetGroupHistory(ctx, conv.Counterpart.Id, r.opts.HistoryLimit)
	} else {
		history, err = r.backend.GetDirectHistory(ctx, conv.Counterpart.Id, r.opts.HistoryLimit)
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		log.CtxDebug(ctx, "discard stale history: kind=%s, id=%s", conv.Kind, conv.Counterpart.Id)
		return nil
	}
	r.loading = false
	if err != nil {
		r.mu.Unlock()
		log.CtxError(ctx, "fetch history failed: kind=%s, id=%s, err=%v", conv.Kind, conv.Counterpart.Id, err)
		return errcode.ErrFetchFailed.Wrap(err)
	}

	// History is newest first; messages streamed in during the fetch stay at the tail
	streamed := r.messages
	r.messages = make([]*entity.Message, 0, len(history)+len(streamed))
	r.ids = make(map[string]struct{}, len(history)+len(streamed))
	for i := len(history) - 1; i >= 0; i-- {
		r.appendLocked(history[i])
	}
	for _, m := range streamed {
		r.appendLocked(m)
	}
	count := len(r.messages)
	r.mu.Unlock()

	log.CtxDebug(ctx, "history loaded: kind=%s, id=%s, count=%d", conv.Kind, conv.Counterpart.Id, count)

	if conv.Kind == entity.KindGroup {
		if err := r.signaler.JoinGroup(ctx, conv.Counterpart.Id); err != nil {
			log.CtxWarn(ctx, "join group failed: group_id=%s, err=%v", conv.Counterpart.Id, err)
			r.reportError(err)
		}
	} else {
		if err := r.backend.MarkDirectRead(ctx, conv.Counterpart.Id); err != nil {
			log.CtxWarn(ctx, "mark read failed: user_id=%s, err=%v", conv.Counterpart.Id, err)
			r.reportError(err)
		}
	}
	return nil
}

// AppendIncoming appends msg to the open conversation's list.
// It returns false for duplicates and for messages of other conversations.
func (r *MessageReducer) AppendIncoming(msg *entity.Message) bool {
	if msg == nil || msg.Id == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !msg.BelongsTo(r.active) {
		return false
	}
	return r.appendLocked(msg)
}

func (r *MessageReducer) appendLocked(msg *entity.Message) bool {
	if msg == nil {
		return false
	}
	if _, ok := r.ids[msg.Id]; ok {
		return false
	}
	r.ids[msg.Id] = struct{}{}
	cp := *msg
	r.messages = append(r.messages, &cp)
	return true
}

// Send posts content to the open conversation. The draft is cleared up front
// and restored to content if the backend rejects the message. The list is
// not touched; the pushed echo delivers the message.
func (r *MessageReducer) Send(ctx context.Context, content string) error {
	text := strings.TrimSpace(content)
	if text == "" {
		return errcode.ErrEmptyMessage
	}

	r.mu.Lock()
	if r.active == nil {
		r.mu.Unlock()
		return errcode.ErrNoConversation
	}
	if r.sending {
		r.mu.Unlock()
		return errcode.ErrSendInFlight
	}
	r.sending = true
	conv := r.active
	gen := r.gen
	r.draft = ""
	r.mu.Unlock()

	var err error
	if conv.Kind == entity.KindGroup {
		err = r.backend.SendGroup(ctx, conv.Counterpart.Id, text)
	} else {
		err = r.backend.SendDirect(ctx, conv.Counterpart.Id, text)
	}

	r.mu.Lock()
	r.sending = false
	if err != nil {
		if gen == r.gen {
			r.draft = content
		}
		r.mu.Unlock()
		log.CtxError(ctx, "send message failed: kind=%s, id=%s, err=%v", conv.Kind, conv.Counterpart.Id, err)
		return errcode.ErrSendFailed.Wrap(err)
	}
	if gen != r.gen {
		// Opening another conversation already stopped typing for conv
		r.mu.Unlock()
		return nil
	}
	r.clearTypingLocked()
	r.mu.Unlock()

	r.signal(ctx, conv.TypingTarget(), false)
	return nil
}

// UpdateDraft stores the compose text. A non-empty draft starts local typing
// and (re)arms the debounce that stops it; an empty draft stops it at once.
func (r *MessageReducer) UpdateDraft(ctx context.Context, text string) {
	r.mu.Lock()
	r.draft = text
	if r.active == nil {
		r.mu.Unlock()
		return
	}
	target := r.active.TypingTarget()

	if strings.TrimSpace(text) == "" {
		_, wasTyping := r.clearTypingLocked()
		r.mu.Unlock()
		if wasTyping {
			r.signal(ctx, target, false)
		}
		return
	}

	start := !r.localTyping
	r.localTyping = true
	if r.debounce != nil {
		r.debounce.Stop()
	}
	token := &struct{}{}
	r.debounceToken = token
	r.debounce = r.clock.AfterFunc(r.opts.TypingDebounce, func() { r.debounceExpired(token) })
	r.mu.Unlock()

	if start {
		r.signal(ctx, target, true)
	}
}

func (r *MessageReducer) debounceExpired(token *struct{}) {
	r.mu.Lock()
	if r.debounceToken != token || r.active == nil {
		r.mu.Unlock()
		return
	}
	target := r.active.TypingTarget()
	r.clearTypingLocked()
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.SignalTimeout)
	defer cancel()
	r.signal(ctx, target, false)
}

// clearTypingLocked cancels the debounce and resets local typing.
// It returns the typing target and whether local typing was active.
func (r *MessageReducer) clearTypingLocked() (entity.TypingTarget, bool) {
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	r.debounceToken = nil

	wasTyping := r.localTyping
	r.localTyping = false
	if r.active == nil {
		return entity.TypingTarget{}, false
	}
	return r.active.TypingTarget(), wasTyping
}

func (r *MessageReducer) signal(ctx context.Context, target entity.TypingTarget, typing bool) {
	var err error
	if typing {
		err = r.signaler.StartTyping(ctx, target)
	} else {
		err = r.signaler.StopTyping(ctx, target)
	}
	if err != nil {
		log.CtxWarn(ctx, "typing signal failed: typing=%v, err=%v", typing, err)
		r.reportError(err)
	}
}

func (r *MessageReducer) reportError(err error) {
	r.mu.Lock()
	fn := r.onError
	r.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// Active returns the open conversation, or nil
func (r *MessageReducer) Active() *entity.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}
	return r.active.Clone()
}

// Messages returns the active list, oldest first
func (r *MessageReducer) Messages() []*entity.Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*entity.Message, 0, len(r.messages))
	for _, m := range r.messages {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// Draft returns the compose text
func (r *MessageReducer) Draft() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.draft
}

// IsLoading reports whether the active history fetch is in flight
func (r *MessageReducer) IsLoading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// IsSending reports whether a send is in flight
func (r *MessageReducer) IsSending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sending
}

// IsLocalTyping reports whether a start-typing signal is outstanding
func (r *MessageReducer) IsLocalTyping() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.localTyping
}

// Close cancels the debounce and clears the open conversation
func (r *MessageReducer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearTypingLocked()
	r.gen++
	r.active = nil
	r.messages = nil
	r.ids = make(map[string]struct{})
	r.draft = ""
	r.loading = false
}
