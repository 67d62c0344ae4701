package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/errcode"
	"github.com/mbeoliero/chatsync/pkg/event"
)

// fakeClock fires timers only when advanced
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs every timer that became due
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*fakeTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && !t.at.After(c.now) {
				t.fired = true
				due = append(due, t)
			}
		}
		c.mu.Unlock()
		if len(due) == 0 {
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		for _, t := range due {
			t.fn()
		}
	}
}

type sentMessage struct {
	kind    entity.ConversationKind
	id      string
	content string
}

// fakeBackend serves canned data. A gate channel per history key blocks that fetch.
type fakeBackend struct {
	mu         sync.Mutex
	convs      []*entity.Conversation
	convErr    error
	history    map[string][]*entity.Message
	historyErr error
	gates      map[string]chan struct{}
	markReadOf []string
	markErr    error
	sent       []sentMessage
	sendErr    error
	sendGate   chan struct{}
	userId     string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		history: make(map[string][]*entity.Message),
		gates:   make(map[string]chan struct{}),
	}
}

func (b *fakeBackend) SetUserId(userId string) {
	b.mu.Lock()
	b.userId = userId
	b.mu.Unlock()
}

func (b *fakeBackend) GetConversations(context.Context) ([]*entity.Conversation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.convErr != nil {
		return nil, b.convErr
	}
	out := make([]*entity.Conversation, 0, len(b.convs))
	for _, c := range b.convs {
		out = append(out, c.Clone())
	}
	return out, nil
}

func (b *fakeBackend) getHistory(ctx context.Context, key string) ([]*entity.Message, error) {
	b.mu.Lock()
	gate := b.gates[key]
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.historyErr != nil {
		return nil, b.historyErr
	}
	return b.history[key], nil
}

func (b *fakeBackend) GetDirectHistory(ctx context.Context, counterpartId string, _ int) ([]*entity.Message, error) {
	return b.getHistory(ctx, "direct:"+counterpartId)
}

func (b *fakeBackend) GetGroupHistory(ctx context.Context, groupId string, _ int) ([]*entity.Message, error) {
	return b.getHistory(ctx, "group:"+groupId)
}

func (b *fakeBackend) MarkDirectRead(_ context.Context, counterpartId string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markReadOf = append(b.markReadOf, counterpartId)
	return b.markErr
}

func (b *fakeBackend) send(ctx context.Context, kind entity.ConversationKind, id, content string) error {
	b.mu.Lock()
	gate := b.sendGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, sentMessage{kind: kind, id: id, content: content})
	return nil
}

func (b *fakeBackend) SendDirect(ctx context.Context, recipientId, content string) error {
	return b.send(ctx, entity.KindDirect, recipientId, content)
}

func (b *fakeBackend) SendGroup(ctx context.Context, groupId, content string) error {
	return b.send(ctx, entity.KindGroup, groupId, content)
}

type signalCall struct {
	name   string
	target entity.TypingTarget
	group  string
}

// fakeConn records signals and lets tests inject events
type fakeConn struct {
	mu        sync.Mutex
	userId    string
	connected bool
	signals   []signalCall
	signalErr error

	connHandlers     event.Set[bool]
	msgHandlers      event.Set[*entity.Message]
	typingHandlers   event.Set[*entity.TypingEvent]
	onlineHandlers   event.Set[string]
	offlineHandlers  event.Set[string]
	snapshotHandlers event.Set[[]string]
}

func (c *fakeConn) SetUserId(userId string) {
	c.mu.Lock()
	c.userId = userId
	c.mu.Unlock()
}

func (c *fakeConn) Connect(context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = true
	c.mu.Unlock()
	c.connHandlers.Emit(true)
	return nil
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	was := c.connected
	c.connected = false
	c.mu.Unlock()
	if was {
		c.connHandlers.Emit(false)
	}
}

func (c *fakeConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeConn) record(call signalCall) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.signalErr != nil {
		return c.signalErr
	}
	if !c.connected {
		return errcode.ErrNotConnected
	}
	c.signals = append(c.signals, call)
	return nil
}

func (c *fakeConn) JoinGroup(_ context.Context, groupId string) error {
	return c.record(signalCall{name: "join", group: groupId})
}

func (c *fakeConn) StartTyping(_ context.Context, target entity.TypingTarget) error {
	return c.record(signalCall{name: "start", target: target})
}

func (c *fakeConn) StopTyping(_ context.Context, target entity.TypingTarget) error {
	return c.record(signalCall{name: "stop", target: target})
}

func (c *fakeConn) calls() []signalCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]signalCall(nil), c.signals...)
}

func (c *fakeConn) OnConnectionChange(fn func(bool)) func() { return c.connHandlers.Add(fn) }
func (c *fakeConn) OnMessage(fn func(*entity.Message)) func() {
	return c.msgHandlers.Add(fn)
}
func (c *fakeConn) OnTyping(fn func(*entity.TypingEvent)) func() {
	return c.typingHandlers.Add(fn)
}
func (c *fakeConn) OnUserOnline(fn func(string)) func()    { return c.onlineHandlers.Add(fn) }
func (c *fakeConn) OnUserOffline(fn func(string)) func()   { return c.offlineHandlers.Add(fn) }
func (c *fakeConn) OnOnlineUsers(fn func([]string)) func() { return c.snapshotHandlers.Add(fn) }

func direct(id, name string) *entity.Conversation {
	return &entity.Conversation{Kind: entity.KindDirect, Counterpart: entity.Identity{Id: id, Name: name}}
}

func group(id, name string) *entity.Conversation {
	return &entity.Conversation{Kind: entity.KindGroup, Counterpart: entity.Identity{Id: id, Name: name}}
}

func directMsg(id, from, to, content string) *entity.Message {
	return &entity.Message{Id: id, Sender: entity.Identity{Id: from, Name: from}, RecipientId: to, Content: content}
}

func groupMsg(id, from, groupId, content string) *entity.Message {
	return &entity.Message{Id: id, Sender: entity.Identity{Id: from, Name: from}, GroupId: groupId, Content: content}
}

func messageIds(msgs []*entity.Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.Id)
	}
	return ids
}
