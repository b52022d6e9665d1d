package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/szaher/agentstate/internal/persist"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the state file and report changes",
		Long: `Watches the file backend's state file and prints aggregate statistics
whenever another process writes to it. If metrics_addr is configured,
also serves Prometheus metrics while running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmdContext(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			e, err := setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if persist.Kind(e.cfg.Backend) != persist.KindFile {
				return fmt.Errorf("watch requires the file backend, configured backend is %q", e.cfg.Backend)
			}

			if e.cfg.MetricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", e.mgr.Metrics().Handler())
				server := &http.Server{Addr: e.cfg.MetricsAddr, Handler: mux}
				go func() { _ = server.ListenAndServe() }()
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					_ = server.Shutdown(shutdownCtx)
				}()
			}

			return runWatchLoop(ctx, e)
		},
	}
	return cmd
}

func runWatchLoop(ctx context.Context, e *env) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: the backend replaces the file by rename, so
	// a watch on the file itself would be dropped after the first write.
	statePath := e.cfg.File.Path
	if err := watcher.Add(filepath.Dir(statePath)); err != nil {
		return fmt.Errorf("watch %s: %w", statePath, err)
	}

	printSnapshot(ctx, e)

	for {
		select {
		case <-ctx.Done():
			fmt.Println("watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(statePath) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				printSnapshot(ctx, e)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Printf("watch error: %v\n", err)
		}
	}
}

func printSnapshot(ctx context.Context, e *env) {
	ids, err := e.backend.ListSessions(ctx)
	if err != nil {
		fmt.Printf("%s read failed: %v\n", time.Now().Format(time.RFC3339), err)
		return
	}

	agents := 0
	messages := 0
	for _, id := range ids {
		sess, err := e.backend.LoadSession(ctx, id)
		if err != nil {
			continue
		}
		agents += len(sess.Agents)
		messages += len(sess.ConversationHistory)
	}
	fmt.Printf("%s sessions=%d agents=%d messages=%d\n",
		time.Now().Format(time.RFC3339), len(ids), agents, messages)
}
