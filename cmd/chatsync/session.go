package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/chatsync/internal/config"
	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/internal/gateway"
	"github.com/mbeoliero/chatsync/internal/repository"
	"github.com/mbeoliero/chatsync/internal/service"
	"github.com/mbeoliero/chatsync/pkg/jwt"
)

// session bundles the engine with the resources it was built from
type session struct {
	cfg    *config.Config
	engine *service.Engine
	closer func()
}

// newSession loads config, resolves the local user and wires the engine
func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	userId := cfg.Auth.UserId
	if userId == "" {
		claims, err := jwt.Identify(cfg.Auth.Token, cfg.Auth.Secret)
		if err != nil {
			return nil, fmt.Errorf("resolve user from token: %w", err)
		}
		userId = claims.UserId
	}
	log.CtxInfo(ctx, "session user: user_id=%s, transport=%s", userId, cfg.Transport)

	backend, err := repository.NewHTTPBackend(cfg)
	if err != nil {
		return nil, err
	}

	var dialer gateway.Dialer
	closer := func() {}
	switch cfg.Transport {
	case config.TransportRedis:
		rd := gateway.NewRedisDialer(cfg)
		dialer = rd
		closer = func() {
			if err := rd.Close(); err != nil {
				log.Warn("close redis: %v", err)
			}
		}
	default:
		dialer = gateway.NewWebSocketDialer(cfg)
	}

	engine := service.NewEngine(backend, gateway.NewConn(dialer), service.WithSyncConfig(&cfg.Sync))
	engine.SetCurrentUserId(userId)
	engine.OnError(func(err error) {
		log.Warn("engine error: %v", err)
	})

	return &session{cfg: cfg, engine: engine, closer: closer}, nil
}

// Close tears down the engine and transport
func (s *session) Close() {
	s.engine.Close()
	s.closer()
}

// parseConversationRef parses direct:<id> or group:<id>
func parseConversationRef(ref string) (entity.ConversationKind, string, error) {
	kind, id, ok := strings.Cut(ref, ":")
	if !ok || id == "" || !entity.ConversationKind(kind).Valid() {
		return "", "", fmt.Errorf("invalid conversation %q, want direct:<id> or group:<id>", ref)
	}
	return entity.ConversationKind(kind), id, nil
}
