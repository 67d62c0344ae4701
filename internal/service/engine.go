package service

import (
	"context"
	"sync"
	"time"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/config"
	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/errcode"
	"github.com/mbeoliero/chatsync/pkg/event"
)

// ChangeKind names the part of the engine state that changed
type ChangeKind string

const (
	ChangeConnection    ChangeKind = "connection"
	ChangeConversations ChangeKind = "conversations"
	ChangeMessages      ChangeKind = "messages"
	ChangeDraft         ChangeKind = "draft"
	ChangePresence      ChangeKind = "presence"
	ChangeTyping        ChangeKind = "typing"
)

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the clock used by typing timers
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithTypingTimeout sets the remote typing expiry
func WithTypingTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.typingTimeout = d
	}
}

// WithReducerOptions sets history and local typing tuning
func WithReducerOptions(opts ReducerOptions) Option {
	return func(e *Engine) {
		e.reducerOpts = opts
	}
}

// WithSyncConfig applies the sync section of the config
func WithSyncConfig(cfg *config.SyncConfig) Option {
	return func(e *Engine) {
		e.typingTimeout = cfg.TypingTimeout
		e.reducerOpts = ReducerOptions{
			HistoryLimit:   cfg.HistoryLimit,
			TypingDebounce: cfg.TypingDebounce,
			SignalTimeout:  cfg.SignalTimeout,
		}
	}
}

// Engine owns one user's conversation store, message stream and presence,
// fed by a Connection and a Backend.
type Engine struct {
	backend Backend
	conn    Connection

	clock         Clock
	typingTimeout time.Duration
	reducerOpts   ReducerOptions

	store   *ConversationStore
	reducer *MessageReducer
	tracker *PresenceTracker

	mu     sync.RWMutex
	selfId string

	changeHandlers event.Set[ChangeKind]
	errorHandlers  event.Set[error]
	disposers      []func()
	closeOnce      sync.Once
}

// NewEngine creates an Engine subscribed to conn's events
func NewEngine(backend Backend, conn Connection, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		conn:    conn,
		clock:   RealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.store = NewConversationStore(backend)
	e.reducer = NewMessageReducer(backend, conn, e.clock, e.reducerOpts)
	e.tracker = NewPresenceTracker(e.clock, e.typingTimeout)

	e.reducer.SetErrorHandler(e.emitError)
	e.reducer.SetActivateHandler(e.tracker.ResetTyping)
	e.tracker.SetOnChange(func() { e.emitChange(ChangeTyping) })

	e.disposers = []func(){
		conn.OnConnectionChange(e.handleConnectionChange),
		conn.OnMessage(e.handleMessage),
		conn.OnTyping(e.handleTyping),
		conn.OnUserOnline(e.handleUserOnline),
		conn.OnUserOffline(e.handleUserOffline),
		conn.OnOnlineUsers(e.handleOnlineUsers),
	}
	return e
}

// SetCurrentUserId sets the local user. Call it before Connect.
func (e *Engine) SetCurrentUserId(userId string) {
	e.mu.Lock()
	e.selfId = userId
	e.mu.Unlock()

	e.conn.SetUserId(userId)
	e.tracker.SetCurrentUserId(userId)
	if b, ok := e.backend.(interface{ SetUserId(string) }); ok {
		b.SetUserId(userId)
	}
}

// CurrentUserId returns the local user
func (e *Engine) CurrentUserId() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.selfId
}

// Connect opens the live channel. It does not load conversations.
func (e *Engine) Connect(ctx context.Context) error {
	if e.CurrentUserId() == "" {
		return errcode.ErrInvalidParam
	}
	return e.conn.Connect(ctx)
}

// Disconnect closes the live channel
func (e *Engine) Disconnect() {
	e.conn.Disconnect()
}

// IsConnected reports whether the live channel is up
func (e *Engine) IsConnected() bool {
	return e.conn.IsConnected()
}

// OnConnectionChange registers a connection-state handler
func (e *Engine) OnConnectionChange(fn func(connected bool)) func() {
	return e.conn.OnConnectionChange(fn)
}

// OnChange registers a state-change handler
func (e *Engine) OnChange(fn func(kind ChangeKind)) func() {
	return e.changeHandlers.Add(fn)
}

// OnError registers a handler for asynchronous failures
func (e *Engine) OnError(fn func(err error)) func() {
	return e.errorHandlers.Add(fn)
}

// LoadConversations replaces the conversation list from the backend
func (e *Engine) LoadConversations(ctx context.Context) error {
	if err := e.store.Load(ctx); err != nil {
		return err
	}
	e.emitChange(ChangeConversations)
	return nil
}

// Conversations returns conversations matching query; empty returns all
func (e *Engine) Conversations(query string) []*entity.Conversation {
	return e.store.Filter(query)
}

// Conversation returns the stored conversation for kind and id
func (e *Engine) Conversation(kind entity.ConversationKind, id string) (*entity.Conversation, bool) {
	return e.store.Get(kind, id)
}

// OpenConversation makes conv the active conversation and loads its history
func (e *Engine) OpenConversation(ctx context.Context, conv *entity.Conversation) error {
	if conv == nil {
		return errcode.ErrInvalidParam
	}

	if e.store.MarkRead(conv.Key()) {
		e.emitChange(ChangeConversations)
	}

	// The reducer resets the typing set as it switches the active conversation
	err := e.reducer.OpenConversation(ctx, conv)
	e.emitChange(ChangeTyping)
	e.emitChange(ChangeMessages)
	return err
}

// OpenConversationByKey opens a stored conversation, or a bare one when
// the list does not hold it
func (e *Engine) OpenConversationByKey(ctx context.Context, kind entity.ConversationKind, id string) error {
	if !kind.Valid() || id == "" {
		return errcode.ErrInvalidParam
	}
	conv, ok := e.store.Get(kind, id)
	if !ok {
		conv = &entity.Conversation{Kind: kind, Counterpart: entity.Identity{Id: id, Name: id}}
	}
	return e.OpenConversation(ctx, conv)
}

// ActiveConversation returns the open conversation, or nil
func (e *Engine) ActiveConversation() *entity.Conversation {
	return e.reducer.Active()
}

// Messages returns the open conversation's messages, oldest first
func (e *Engine) Messages() []*entity.Message {
	return e.reducer.Messages()
}

// Draft returns the compose text
func (e *Engine) Draft() string {
	return e.reducer.Draft()
}

// UpdateDraft stores the compose text and drives local typing signals
func (e *Engine) UpdateDraft(ctx context.Context, text string) {
	e.reducer.UpdateDraft(ctx, text)
	e.emitChange(ChangeDraft)
}

// Send sends content to the open conversation
func (e *Engine) Send(ctx context.Context, content string) error {
	err := e.reducer.Send(ctx, content)
	e.emitChange(ChangeDraft)
	return err
}

// OnlineUsers returns the online set, sorted
func (e *Engine) OnlineUsers() []string {
	return e.tracker.OnlineUsers()
}

// IsOnline reports whether userId is online
func (e *Engine) IsOnline(userId string) bool {
	return e.tracker.IsOnline(userId)
}

// TypingUsers returns users typing in the open conversation, sorted
func (e *Engine) TypingUsers() []string {
	return e.tracker.TypingUsers()
}

// Close drops every subscription and timer and disconnects
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		for _, dispose := range e.disposers {
			dispose()
		}
		e.disposers = nil
		e.reducer.Close()
		e.tracker.Close()
		e.store.Reset()
		e.conn.Disconnect()
		log.Info("engine closed")
	})
}

func (e *Engine) handleConnectionChange(connected bool) {
	log.Info("connection changed: connected=%v", connected)
	e.emitChange(ChangeConnection)
}

func (e *Engine) handleMessage(msg *entity.Message) {
	if msg == nil {
		return
	}
	selfId := e.CurrentUserId()
	inOpen := msg.BelongsTo(e.reducer.Active())
	countUnread := !inOpen && msg.Sender.Id != selfId

	if e.store.ApplyIncomingMessage(msg, countUnread) {
		e.emitChange(ChangeConversations)
	}
	if inOpen && e.reducer.AppendIncoming(msg) {
		e.emitChange(ChangeMessages)
	}
}

func (e *Engine) handleTyping(ev *entity.TypingEvent) {
	if ev == nil {
		return
	}
	if !ev.Typing {
		if e.tracker.StopTyping(ev.UserId) {
			e.emitChange(ChangeTyping)
		}
		return
	}
	if !e.typingInOpen(ev) {
		return
	}
	if e.tracker.StartTyping(ev.UserId) {
		e.emitChange(ChangeTyping)
	}
}

// typingInOpen reports whether ev addresses the open conversation
func (e *Engine) typingInOpen(ev *entity.TypingEvent) bool {
	active := e.reducer.Active()
	if active == nil {
		return false
	}
	if active.Kind == entity.KindGroup {
		return ev.GroupId == active.Counterpart.Id
	}
	return ev.GroupId == "" && ev.UserId == active.Counterpart.Id
}

func (e *Engine) handleUserOnline(userId string) {
	e.tracker.SetOnline(userId)
	e.emitChange(ChangePresence)
}

func (e *Engine) handleUserOffline(userId string) {
	e.tracker.SetOffline(userId)
	e.emitChange(ChangePresence)
}

func (e *Engine) handleOnlineUsers(userIds []string) {
	e.tracker.BulkSetOnline(userIds)
	e.emitChange(ChangePresence)
}

func (e *Engine) emitChange(kind ChangeKind) {
	e.changeHandlers.Emit(kind)
}

func (e *Engine) emitError(err error) {
	if e.errorHandlers.Len() == 0 {
		log.Warn("unhandled engine error: %v", err)
		return
	}
	e.errorHandlers.Emit(err)
}
