package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/chatsync/internal/config"
	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/errcode"
)

type engineFixture struct {
	backend *fakeBackend
	conn    *fakeConn
	clock   *fakeClock
	engine  *Engine

	mu      sync.Mutex
	changes []ChangeKind
	errs    []error
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		backend: newFakeBackend(),
		conn:    &fakeConn{},
		clock:   newFakeClock(),
	}
	f.backend.convs = []*entity.Conversation{direct("u2", "Bob"), direct("u3", "Carol"), group("g1", "Team")}
	f.engine = NewEngine(f.backend, f.conn, WithClock(f.clock))
	f.engine.OnChange(func(kind ChangeKind) {
		f.mu.Lock()
		f.changes = append(f.changes, kind)
		f.mu.Unlock()
	})
	f.engine.OnError(func(err error) {
		f.mu.Lock()
		f.errs = append(f.errs, err)
		f.mu.Unlock()
	})
	f.engine.SetCurrentUserId("u1")
	t.Cleanup(f.engine.Close)
	return f
}

func (f *engineFixture) reset() {
	f.mu.Lock()
	f.changes = nil
	f.mu.Unlock()
}

func (f *engineFixture) changed() []ChangeKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChangeKind(nil), f.changes...)
}

func TestEngineRequiresUserBeforeConnect(t *testing.T) {
	e := NewEngine(newFakeBackend(), &fakeConn{})
	defer e.Close()

	err := e.Connect(context.Background())
	assert.True(t, errors.Is(err, errcode.ErrInvalidParam))
}

func TestEngineConnectDoesNotLoad(t *testing.T) {
	f := newEngineFixture(t)

	var states []bool
	f.engine.OnConnectionChange(func(c bool) { states = append(states, c) })

	require.NoError(t, f.engine.Connect(context.Background()))
	assert.True(t, f.engine.IsConnected())
	assert.Equal(t, "u1", f.conn.userId)
	assert.Equal(t, "u1", f.backend.userId)
	assert.Empty(t, f.engine.Conversations(""))
	assert.Contains(t, f.changed(), ChangeConnection)

	f.engine.Disconnect()
	assert.Equal(t, []bool{true, false}, states)
}

func TestEngineRoutesMessagesWithUnreadCounts(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Connect(ctx))
	require.NoError(t, f.engine.LoadConversations(ctx))
	require.NoError(t, f.engine.OpenConversationByKey(ctx, entity.KindDirect, "u2"))
	f.reset()

	// Open conversation: appended, no unread
	f.conn.msgHandlers.Emit(directMsg("m1", "u2", "u1", "hi"))
	// Other conversation: unread bump, not appended
	f.conn.msgHandlers.Emit(directMsg("m2", "u3", "u1", "hey"))
	// Own message elsewhere: no unread bump
	f.conn.msgHandlers.Emit(groupMsg("m3", "u1", "g1", "all"))
	// Duplicate delivery is a no-op for the list
	f.conn.msgHandlers.Emit(directMsg("m1", "u2", "u1", "hi"))

	assert.Equal(t, []string{"m1"}, messageIds(f.engine.Messages()))

	bob, _ := f.engine.Conversation(entity.KindDirect, "u2")
	carol, _ := f.engine.Conversation(entity.KindDirect, "u3")
	team, _ := f.engine.Conversation(entity.KindGroup, "g1")
	assert.Equal(t, int64(0), bob.UnreadCount)
	assert.Equal(t, "m1", bob.LastMessage.Id)
	assert.Equal(t, int64(1), carol.UnreadCount)
	assert.Equal(t, "hey", carol.LastMessage.Content)
	assert.Equal(t, int64(0), team.UnreadCount)
	assert.Equal(t, "m3", team.LastMessage.Id)

	assert.Contains(t, f.changed(), ChangeMessages)
	assert.Contains(t, f.changed(), ChangeConversations)
}

func TestEngineOpenClearsUnreadAndTyping(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Connect(ctx))
	require.NoError(t, f.engine.LoadConversations(ctx))
	require.NoError(t, f.engine.OpenConversationByKey(ctx, entity.KindDirect, "u2"))

	f.conn.msgHandlers.Emit(directMsg("m1", "u3", "u1", "hey"))
	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u2", Typing: true})
	assert.Equal(t, []string{"u2"}, f.engine.TypingUsers())

	require.NoError(t, f.engine.OpenConversationByKey(ctx, entity.KindDirect, "u3"))
	assert.Empty(t, f.engine.TypingUsers())
	carol, _ := f.engine.Conversation(entity.KindDirect, "u3")
	assert.Equal(t, int64(0), carol.UnreadCount)
	assert.Equal(t, []string{"u2", "u3"}, f.backend.markReadOf)
}

func TestEngineKeepsTypingArrivingDuringHistoryFetch(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Connect(ctx))
	require.NoError(t, f.engine.OpenConversationByKey(ctx, entity.KindDirect, "u2"))
	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u2", Typing: true})

	gate := make(chan struct{})
	f.backend.gates["direct:u3"] = gate
	done := make(chan error, 1)
	go func() { done <- f.engine.OpenConversationByKey(ctx, entity.KindDirect, "u3") }()
	require.Eventually(t, f.engine.reducer.IsLoading, time.Second, time.Millisecond)

	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u2", Typing: true})
	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u3", Typing: true})
	close(gate)
	require.NoError(t, <-done)

	assert.Equal(t, []string{"u3"}, f.engine.TypingUsers())
}

func TestEngineOpenGroupClearsUnread(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Connect(ctx))
	require.NoError(t, f.engine.LoadConversations(ctx))

	f.conn.msgHandlers.Emit(groupMsg("m1", "u2", "g1", "all"))
	team, _ := f.engine.Conversation(entity.KindGroup, "g1")
	require.Equal(t, int64(1), team.UnreadCount)

	require.NoError(t, f.engine.OpenConversationByKey(ctx, entity.KindGroup, "g1"))
	team, _ = f.engine.Conversation(entity.KindGroup, "g1")
	assert.Equal(t, int64(0), team.UnreadCount)
	assert.Empty(t, f.backend.markReadOf)
}

func TestEngineTypingIsScopedToOpenConversation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Connect(ctx))

	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u2", Typing: true})
	assert.Empty(t, f.engine.TypingUsers())

	require.NoError(t, f.engine.OpenConversationByKey(ctx, entity.KindGroup, "g1"))
	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u2", Typing: true, GroupId: "g1"})
	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u3", Typing: true, GroupId: "g2"})
	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u1", Typing: true, GroupId: "g1"})
	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u4", Typing: true, GroupId: "g1"})
	assert.Equal(t, []string{"u2", "u4"}, f.engine.TypingUsers())

	f.conn.typingHandlers.Emit(&entity.TypingEvent{UserId: "u4", Typing: false, GroupId: "g1"})
	assert.Equal(t, []string{"u2"}, f.engine.TypingUsers())

	f.reset()
	f.clock.Advance(3 * time.Second)
	assert.Empty(t, f.engine.TypingUsers())
	assert.Equal(t, []ChangeKind{ChangeTyping}, f.changed())
}

func TestEnginePresence(t *testing.T) {
	f := newEngineFixture(t)

	f.conn.onlineHandlers.Emit("u1")
	f.conn.onlineHandlers.Emit("u2")
	assert.Equal(t, []string{"u1", "u2"}, f.engine.OnlineUsers())

	f.conn.offlineHandlers.Emit("u2")
	assert.Equal(t, []string{"u1"}, f.engine.OnlineUsers())

	f.conn.snapshotHandlers.Emit([]string{"u3"})
	assert.Equal(t, []string{"u3"}, f.engine.OnlineUsers())
	assert.True(t, f.engine.IsOnline("u3"))
}

func TestEngineReportsAsyncErrors(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// Not connected: the join signal fails but the open succeeds
	require.NoError(t, f.engine.OpenConversationByKey(ctx, entity.KindGroup, "g9"))
	require.Len(t, f.errs, 1)
	assert.True(t, errcode.IsConnectionError(f.errs[0]))
	assert.Equal(t, "g9", f.engine.ActiveConversation().Counterpart.Id)
}

func TestEngineSendAndDraft(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Connect(ctx))
	require.NoError(t, f.engine.OpenConversationByKey(ctx, entity.KindDirect, "u2"))

	f.engine.UpdateDraft(ctx, "hi")
	assert.Equal(t, "hi", f.engine.Draft())
	require.NoError(t, f.engine.Send(ctx, "hi"))
	assert.Empty(t, f.engine.Draft())
	assert.Equal(t, []sentMessage{{kind: entity.KindDirect, id: "u2", content: "hi"}}, f.backend.sent)
	assert.Empty(t, f.engine.Messages())
}

func TestEngineCloseUnsubscribes(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	require.NoError(t, f.engine.Connect(ctx))
	require.NoError(t, f.engine.LoadConversations(ctx))

	f.engine.Close()
	f.engine.Close()

	assert.False(t, f.engine.IsConnected())
	assert.Equal(t, 0, f.conn.msgHandlers.Len())
	assert.Equal(t, 0, f.conn.typingHandlers.Len())
	assert.Empty(t, f.engine.Conversations(""))
}

func TestWithSyncConfig(t *testing.T) {
	e := NewEngine(newFakeBackend(), &fakeConn{}, WithSyncConfig(&config.SyncConfig{
		TypingTimeout:  5 * time.Second,
		TypingDebounce: 2 * time.Second,
		HistoryLimit:   20,
	}))
	defer e.Close()

	assert.Equal(t, 5*time.Second, e.tracker.timeout)
	assert.Equal(t, 2*time.Second, e.reducer.opts.TypingDebounce)
	assert.Equal(t, 20, e.reducer.opts.HistoryLimit)
}
