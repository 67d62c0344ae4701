package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	conversationsFilter string
	conversationsJSON   bool
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s, err := newSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.LoadConversations(ctx); err != nil {
			return err
		}
		convs := s.engine.Conversations(conversationsFilter)

		if conversationsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(convs)
		}

		if len(convs) == 0 {
			fmt.Println("No conversations.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tID\tNAME\tUNREAD\tLAST MESSAGE")
		for _, c := range convs {
			last := ""
			if c.LastMessage != nil {
				last = fmt.Sprintf("%s: %s", c.LastMessage.SenderName, truncate(c.LastMessage.Content, 40))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.Kind, c.Counterpart.Id, c.Counterpart.Name, c.UnreadCount, last)
		}
		return w.Flush()
	},
}

func init() {
	conversationsCmd.Flags().StringVar(&conversationsFilter, "filter", "", "case-insensitive name filter")
	conversationsCmd.Flags().BoolVar(&conversationsJSON, "json", false, "output as JSON")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
