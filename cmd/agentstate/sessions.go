package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())
	cmd.AddCommand(newSessionsClearCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all persisted session ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			ids, err := e.backend.ListSessions(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}
			sort.Strings(ids)
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print one session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			sess, err := e.mgr.GetSession(ctx, args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sess)
		},
	}
}

func newSessionsClearCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "clear [session-id]",
		Short: "Delete one session, or all with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if all {
				if err := e.mgr.ClearAllSessions(ctx); err != nil {
					return err
				}
				fmt.Println("All sessions cleared.")
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("provide a session id or --all")
			}
			if err := e.mgr.ClearSession(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Session %s cleared.\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every session")

	return cmd
}
