package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show aggregate state statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			// The CLI starts with a cold index; pull every persisted
			// session in before computing stats.
			ids, err := e.backend.ListSessions(ctx)
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			for _, id := range ids {
				if _, err := e.mgr.GetSession(ctx, id); err != nil {
					return fmt.Errorf("load session %q: %w", id, err)
				}
			}

			info := e.mgr.StateInfo()
			fmt.Printf("Backend:         %s\n", e.cfg.Backend)
			fmt.Printf("Total sessions:  %d\n", info.TotalSessions)
			fmt.Printf("Total agents:    %d\n", info.TotalAgents)
			fmt.Printf("Active agents:   %d\n", info.ActiveAgents)

			if len(ids) == 0 {
				return nil
			}

			sort.Strings(ids)
			fmt.Printf("\n%-34s %-22s %-22s %7s %9s\n", "SESSION", "CREATED", "LAST ACCESSED", "AGENTS", "MESSAGES")
			fmt.Println(strings.Repeat("-", 98))
			for _, id := range ids {
				sess, err := e.mgr.GetSession(ctx, id)
				if err != nil {
					return err
				}
				fmt.Printf("%-34s %-22s %-22s %7d %9d\n",
					sess.ID,
					sess.CreatedAt.Format("2006-01-02 15:04:05"),
					sess.LastAccessed.Format("2006-01-02 15:04:05"),
					len(sess.Agents),
					len(sess.ConversationHistory))
			}
			return nil
		},
	}
	return cmd
}
