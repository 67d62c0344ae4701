package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbeoliero/chatsync/internal/entity"
)

var (
	sendTo    string
	sendGroup string
)

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a message to a user or group",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (sendTo == "") == (sendGroup == "") {
			return errors.New("exactly one of --to or --group is required")
		}
		kind, id := entity.KindDirect, sendTo
		if sendGroup != "" {
			kind, id = entity.KindGroup, sendGroup
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.Connect(ctx); err != nil {
			return err
		}
		if err := s.engine.OpenConversationByKey(ctx, kind, id); err != nil {
			return err
		}
		if err := s.engine.Send(ctx, strings.Join(args, " ")); err != nil {
			return err
		}

		fmt.Printf("Sent to %s:%s\n", kind, id)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient user id")
	sendCmd.Flags().StringVar(&sendGroup, "group", "", "recipient group id")
}
