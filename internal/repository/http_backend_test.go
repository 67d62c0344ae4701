package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/pkg/errcode"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

func newTestBackend(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*HTTPBackend, <-chan recordedRequest) {
	t.Helper()
	reqs := make(chan recordedRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs <- recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization"), body: body}
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, 5*time.Second, WithToken("tok"))
	require.NoError(t, err)
	b := NewHTTPBackendWithClient(c)
	b.SetUserId("u1")
	return b, reqs
}

func writeData(w http.ResponseWriter, data interface{}) {
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(&Response{Code: 0, Msg: "success", Data: raw})
}

func TestGetConversations(t *testing.T) {
	b, reqs := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, []*ConversationInfo{
			{ConversationId: "si_u1:u2", ConversationType: 1, PeerUserId: "u2", PeerNickname: "Bob", UnreadCount: 2,
				LastMessage: &MessageInfo{Id: 7, SenderId: "u2", SenderNickname: "Bob", RecvId: "u1", Content: MessageContent{Text: "hey"}, SendAt: 100}},
			{ConversationId: "sg_g1", ConversationType: 2, GroupName: "Team"},
			{ConversationId: "x", ConversationType: 9},
		})
	})

	convs, err := b.GetConversations(context.Background())
	require.NoError(t, err)

	req := <-reqs
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/conversation/list", req.path)
	assert.Equal(t, "Bearer tok", req.auth)

	require.Len(t, convs, 2)
	assert.Equal(t, entity.KindDirect, convs[0].Kind)
	assert.Equal(t, "Bob", convs[0].Counterpart.Name)
	assert.Equal(t, int64(2), convs[0].UnreadCount)
	require.NotNil(t, convs[0].LastMessage)
	assert.Equal(t, "7", convs[0].LastMessage.Id)
	assert.Equal(t, "hey", convs[0].LastMessage.Content)

	assert.Equal(t, entity.KindGroup, convs[1].Kind)
	assert.Equal(t, "g1", convs[1].Counterpart.Id)
	assert.Nil(t, convs[1].LastMessage)
}

func TestGetHistoryUsesConversationIds(t *testing.T) {
	b, reqs := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, &HistoryResponse{Messages: []*MessageInfo{
			{Id: 2, SenderId: "u3", RecvId: "u1", Content: MessageContent{Text: "new"}},
			{Id: 1, SenderId: "u1", RecvId: "u3", Content: MessageContent{Text: "old"}},
		}})
	})
	ctx := context.Background()

	msgs, err := b.GetDirectHistory(ctx, "u3", 50)
	require.NoError(t, err)
	req := <-reqs
	assert.Equal(t, "/msg/history", req.path)
	assert.Equal(t, "conversation_id=si_u1%3Au3&limit=50", req.query)
	require.Len(t, msgs, 2)
	assert.Equal(t, "2", msgs[0].Id)
	assert.Equal(t, "old", msgs[1].Content)

	_, err = b.GetGroupHistory(ctx, "g1", 0)
	require.NoError(t, err)
	req = <-reqs
	assert.Equal(t, "conversation_id=sg_g1", req.query)
}

func TestMarkReadAndSend(t *testing.T) {
	b, reqs := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		writeData(w, nil)
	})
	ctx := context.Background()

	require.NoError(t, b.MarkDirectRead(ctx, "u2"))
	req := <-reqs
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/conversation/mark_read", req.path)
	assert.JSONEq(t, `{"conversation_id":"si_u1:u2","read_seq":0}`, string(req.body))

	require.NoError(t, b.SendGroup(ctx, "g1", "hello"))
	req = <-reqs
	assert.Equal(t, "/msg/send", req.path)
	var sent SendMessageRequest
	require.NoError(t, json.Unmarshal(req.body, &sent))
	assert.Equal(t, "g1", sent.GroupId)
	assert.Empty(t, sent.RecvId)
	assert.Equal(t, int32(2), sent.SessionType)
	assert.Equal(t, int32(1), sent.MsgType)
	assert.Equal(t, "hello", sent.Content.Text)
	assert.NotEmpty(t, sent.ClientMsgId)

	require.NoError(t, b.SendDirect(ctx, "u2", "hi"))
	req = <-reqs
	require.NoError(t, json.Unmarshal(req.body, &sent))
	assert.Equal(t, "u2", sent.RecvId)
	assert.Equal(t, int32(1), sent.SessionType)
}

func TestAPIErrorIsDecoded(t *testing.T) {
	b, _ := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(&Response{Code: 1003, Msg: "token expired"})
	})

	_, err := b.GetConversations(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errcode.ErrUnauthorized))

	var apiErr *errcode.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "token expired", apiErr.Msg)
}

func TestBareHTTPStatusIsMapped(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnauthorized)
	b, _ := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte("denied"))
	})

	_, err := b.GetConversations(context.Background())
	assert.True(t, errors.Is(err, errcode.ErrUnauthorized))

	status.Store(http.StatusNotFound)
	_, err = b.GetDirectHistory(context.Background(), "u2", 10)
	assert.True(t, errors.Is(err, errcode.ErrNotFound))

	status.Store(http.StatusBadGateway)
	_, err = b.GetConversations(context.Background())
	require.Error(t, err)
	var apiErr *errcode.Error
	assert.False(t, errors.As(err, &apiErr))
}
