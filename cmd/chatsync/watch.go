package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/spf13/cobra"

	"github.com/mbeoliero/chatsync/internal/entity"
	"github.com/mbeoliero/chatsync/internal/service"
	"github.com/mbeoliero/chatsync/pkg/backoff"
)

var watchOpen string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect and follow conversations until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var openKind entity.ConversationKind
		var openId string
		if watchOpen != "" {
			var err error
			if openKind, openId, err = parseConversationRef(watchOpen); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		s, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		dropped := make(chan struct{}, 1)
		s.engine.OnConnectionChange(func(connected bool) {
			if connected {
				return
			}
			select {
			case dropped <- struct{}{}:
			default:
			}
		})
		s.engine.OnChange(func(kind service.ChangeKind) {
			logChange(s.engine, kind)
		})

		rc := s.cfg.Reconnect
		bo := backoff.New(rc.BaseDelay, rc.MaxDelay, rc.MaxAttempts)

		for {
			select {
			case <-dropped:
			default:
			}

			err := s.engine.Connect(ctx)
			if err == nil {
				bo.MarkConnected()
				onConnected(ctx, s.engine, openKind, openId)

				select {
				case <-ctx.Done():
					log.CtxInfo(ctx, "shutting down")
					return nil
				case <-dropped:
					if !rc.Enabled {
						return errors.New("connection lost")
					}
				}
			} else {
				if ctx.Err() != nil {
					return nil
				}
				if !rc.Enabled {
					return err
				}
				log.CtxWarn(ctx, "connect failed: %v", err)
			}

			if !bo.ShouldRetry() {
				return fmt.Errorf("giving up after %d reconnect attempts", bo.Attempt())
			}
			delay := bo.Next()
			log.CtxInfo(ctx, "reconnecting: attempt=%d, delay=%s", bo.Attempt(), delay)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchOpen, "open", "", "conversation to open: direct:<id> or group:<id>")
}

// onConnected reloads the list and reopens the watched conversation
func onConnected(ctx context.Context, engine *service.Engine, openKind entity.ConversationKind, openId string) {
	if err := engine.LoadConversations(ctx); err != nil {
		log.CtxWarn(ctx, "load conversations: %v", err)
	} else {
		log.CtxInfo(ctx, "conversations: count=%d", len(engine.Conversations("")))
	}

	if openId == "" {
		return
	}
	if err := engine.OpenConversationByKey(ctx, openKind, openId); err != nil {
		log.CtxWarn(ctx, "open conversation: %v", err)
		return
	}
	for _, m := range engine.Messages() {
		printMessage(m)
	}
}

func logChange(engine *service.Engine, kind service.ChangeKind) {
	switch kind {
	case service.ChangeMessages:
		msgs := engine.Messages()
		if len(msgs) > 0 {
			printMessage(msgs[len(msgs)-1])
		}
	case service.ChangeTyping:
		log.Info("typing: %v", engine.TypingUsers())
	case service.ChangePresence:
		log.Info("online: %v", engine.OnlineUsers())
	case service.ChangeConnection:
		log.Info("connected: %v", engine.IsConnected())
	}
}

func printMessage(m *entity.Message) {
	name := m.Sender.Name
	if name == "" {
		name = m.Sender.Id
	}
	ts := time.UnixMilli(m.CreatedAt).Format("15:04:05")
	fmt.Printf("[%s] %s: %s\n", ts, name, m.Content)
}
