package gateway

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/errcode"
	"github.com/mbeoliero/chatsync/pkg/event"
	"github.com/mbeoliero/chatsync/pkg/idgen"
)

// Conn manages the persistent channel to the backend.
// It never retries on its own; drops are reported through OnConnectionChange.
type Conn struct {
	dialer Dialer

	mu     sync.Mutex
	userId string
	state  State
	cc     ClientConn
	gen    uint64

	connHandlers    event.Set[bool]
	msgHandlers     event.Set[*entity.Message]
	typingHandlers  event.Set[*entity.TypingEvent]
	onlineHandlers  event.Set[string]
	offlineHandlers event.Set[string]
	snapshotHandler event.Set[[]string]
}

// NewConn creates a disconnected Conn
func NewConn(dialer Dialer) *Conn {
	return &Conn{
		dialer: dialer,
		state:  StateDisconnected,
	}
}

// SetUserId sets the local user used for dialing and as the frame sender
func (c *Conn) SetUserId(userId string) {
	c.mu.Lock()
	c.userId = userId
	c.mu.Unlock()
}

// State returns the current connection state
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the channel is up
func (c *Conn) IsConnected() bool {
	return c.State() == StateConnected
}

// Connect dials the backend. It is a no-op while connecting or connected.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	userId := c.userId
	c.mu.Unlock()

	log.CtxInfo(ctx, "connecting: user_id=%s", userId)

	cc, err := c.dialer.Dial(ctx, userId)
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		log.CtxWarn(ctx, "connect failed: user_id=%s, err=%v", userId, err)
		return errcode.ErrConnectFailed.Wrap(err)
	}

	c.mu.Lock()
	if c.gen != gen {
		// Disconnect was called while dialing
		c.mu.Unlock()
		_ = cc.Close()
		return errcode.ErrConnectFailed.Wrap(ErrConnClosed)
	}
	c.state = StateConnected
	c.cc = cc
	c.mu.Unlock()

	log.CtxInfo(ctx, "connected: user_id=%s", userId)
	c.connHandlers.Emit(true)

	go c.readLoop(gen, cc)
	return nil
}

// Disconnect closes the channel. Safe to call in any state.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	wasConnected := c.state == StateConnected
	cc := c.cc
	c.cc = nil
	c.state = StateDisconnected
	c.gen++
	c.mu.Unlock()

	if cc != nil {
		if err := cc.Close(); err != nil {
			log.Debug("close connection error: %v", err)
		}
	}
	if wasConnected {
		log.Info("disconnected")
		c.connHandlers.Emit(false)
	}
}

// drop tears down the connection of generation gen after a read failure or kick
func (c *Conn) drop(gen uint64, reason error) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	cc := c.cc
	c.cc = nil
	c.state = StateDisconnected
	c.gen++
	c.mu.Unlock()

	if cc != nil {
		_ = cc.Close()
	}
	log.Warn("connection dropped: %v", reason)
	c.connHandlers.Emit(false)
}

func (c *Conn) readLoop(gen uint64, cc ClientConn) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("read loop panic: %v", r)
			c.drop(gen, ErrPanic)
		}
	}()

	for {
		data, err := cc.ReadMessage()
		if err != nil {
			c.drop(gen, err)
			return
		}
		if !c.current(gen) {
			return
		}
		if kicked := c.handleFrame(data); kicked {
			c.drop(gen, ErrKicked)
			return
		}
	}
}

func (c *Conn) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// handleFrame decodes one inbound frame and fans it out. Malformed frames are skipped.
func (c *Conn) handleFrame(data []byte) (kicked bool) {
	var resp WSResponse
	if err := Decode(data, &resp); err != nil {
		log.Warn("invalid frame: %v", err)
		return false
	}
	if resp.ErrCode != 0 {
		log.Warn("frame error: req_identifier=%d, err_code=%d, err_msg=%s", resp.ReqIdentifier, resp.ErrCode, resp.ErrMsg)
		return false
	}

	switch resp.ReqIdentifier {
	case WSPushMsg:
		var push PushMsgData
		if err := Decode(resp.Data, &push); err != nil {
			log.Warn("invalid push message: %v", err)
			return false
		}
		for convId, msgs := range push.Msgs {
			for _, m := range msgs {
				if m == nil {
					continue
				}
				log.Debug("push message: conversation_id=%s, server_msg_id=%d", convId, m.ServerMsgId)
				c.msgHandlers.Emit(m.ToMessage())
			}
		}
	case WSPushTyping:
		var td TypingData
		if err := Decode(resp.Data, &td); err != nil || td.UserId == "" {
			log.Warn("invalid typing push: %v", err)
			return false
		}
		c.typingHandlers.Emit(&entity.TypingEvent{UserId: td.UserId, Typing: td.Typing, GroupId: td.GroupId})
	case WSPushUserOnline, WSPushUserOffline:
		var sd UserStatusData
		if err := Decode(resp.Data, &sd); err != nil || sd.UserId == "" {
			log.Warn("invalid user status push: %v", err)
			return false
		}
		if resp.ReqIdentifier == WSPushUserOnline {
			c.onlineHandlers.Emit(sd.UserId)
		} else {
			c.offlineHandlers.Emit(sd.UserId)
		}
	case WSPushOnlineUsers:
		var od OnlineUsersData
		if err := Decode(resp.Data, &od); err != nil {
			log.Warn("invalid online users push: %v", err)
			return false
		}
		ids := make([]string, 0, len(od.Users))
		for _, u := range od.Users {
			if u.UserId != "" {
				ids = append(ids, u.UserId)
			}
		}
		c.snapshotHandler.Emit(ids)
	case WSKickOnlineMsg:
		return true
	case WSDataError:
		log.Warn("data error frame: %s", resp.ErrMsg)
	default:
		log.Debug("unhandled frame: req_identifier=%d", resp.ReqIdentifier)
	}
	return false
}

// OnConnectionChange registers a connection-state handler
func (c *Conn) OnConnectionChange(fn func(connected bool)) func() {
	return c.connHandlers.Add(fn)
}

// OnMessage registers a message handler
func (c *Conn) OnMessage(fn func(msg *entity.Message)) func() {
	return c.msgHandlers.Add(fn)
}

// OnTyping registers a typing handler
func (c *Conn) OnTyping(fn func(ev *entity.TypingEvent)) func() {
	return c.typingHandlers.Add(fn)
}

// OnUserOnline registers a user-online handler
func (c *Conn) OnUserOnline(fn func(userId string)) func() {
	return c.onlineHandlers.Add(fn)
}

// OnUserOffline registers a user-offline handler
func (c *Conn) OnUserOffline(fn func(userId string)) func() {
	return c.offlineHandlers.Add(fn)
}

// OnOnlineUsers registers an online-users snapshot handler
func (c *Conn) OnOnlineUsers(fn func(userIds []string)) func() {
	return c.snapshotHandler.Add(fn)
}

// JoinGroup asks the backend to route the group's pushes to this connection
func (c *Conn) JoinGroup(ctx context.Context, groupId string) error {
	if groupId == "" {
		return errcode.ErrInvalidParam
	}
	return c.send(ctx, WSJoinGroup, &JoinGroupReq{GroupId: groupId})
}

// StartTyping signals that the local user started typing to target
func (c *Conn) StartTyping(ctx context.Context, target entity.TypingTarget) error {
	return c.sendTyping(ctx, WSStartTyping, target)
}

// StopTyping signals that the local user stopped typing to target
func (c *Conn) StopTyping(ctx context.Context, target entity.TypingTarget) error {
	return c.sendTyping(ctx, WSStopTyping, target)
}

func (c *Conn) sendTyping(ctx context.Context, ident int32, target entity.TypingTarget) error {
	if (target.UserId == "") == (target.GroupId == "") {
		return errcode.ErrInvalidParam
	}
	return c.send(ctx, ident, &TypingReq{RecvId: target.UserId, GroupId: target.GroupId})
}

func (c *Conn) send(ctx context.Context, ident int32, payload interface{}) error {
	c.mu.Lock()
	cc := c.cc
	userId := c.userId
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected || cc == nil {
		return errcode.ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errcode.ErrInternalServer.Wrap(err)
	}
	frame, err := Encode(&WSRequest{
		ReqIdentifier: ident,
		MsgIncr:       idgen.MustNextID(),
		OperationId:   uuid.NewString(),
		SendId:        userId,
		Data:          data,
	})
	if err != nil {
		return errcode.ErrInternalServer.Wrap(err)
	}

	if err := cc.WriteMessage(frame); err != nil {
		log.CtxWarn(ctx, "send signal failed: req_identifier=%d, err=%v", ident, err)
		return errcode.ErrConnClosed.Wrap(err)
	}
	log.CtxDebug(ctx, "sent signal: req_identifier=%d", ident)
	return nil
}
