package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/duobook/duobook-go/internal/reconcile"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Sync the local library with the server",
	Long: `Reconcile the local library with the server.

Deletions are exchanged first, then books, then reading positions. For each
record the newer copy wins; equal timestamps are left alone.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !ap.session.IsSessionValid(cmd.Context()) {
			return errors.New("not logged in, run 'duobook login' first")
		}

		fmt.Fprintf(ap.out, "%s Syncing with %s...\n", renderAccent("⟳"), ap.cfg.Server)
		res := ap.engine.Run(cmd.Context())
		ap.report(res)

		if !res.Success && res.Kind != reconcile.KindOffline {
			return errors.New(res.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

// autoSync runs a sync after a local change when the session and network
// allow it. Failures are reported but never fail the command.
func (a *app) autoSync(ctx context.Context) {
	if noSync {
		return
	}
	if !a.session.IsSessionValid(ctx) {
		fmt.Fprintln(a.out, renderMuted("Saved locally. Log in to sync."))
		return
	}
	if !a.session.CanAttemptSync(ctx) {
		fmt.Fprintln(a.out, renderWarn("Saved locally. Will sync when online."))
		return
	}
	a.report(a.engine.Run(ctx))
}

func (a *app) report(res reconcile.Result) {
	if res.Success {
		s := res.Stats
		fmt.Fprintln(a.out, renderPass("Synced"))
		fmt.Fprintf(a.out, "   Deletions: %d sent, %d received\n", s.DeletionsPushed, s.DeletionsPulled)
		fmt.Fprintf(a.out, "   Books: %d sent, %d received\n", s.BooksPushed, s.BooksPulled)
		fmt.Fprintf(a.out, "   Reading positions: %d sent, %d received\n", s.LocationsPushed, s.LocationsPulled)
		return
	}

	switch res.Kind {
	case reconcile.KindOffline:
		fmt.Fprintln(a.out, renderWarn(res.Error))
	default:
		fmt.Fprintln(a.out, renderFail(res.Error))
	}
	a.logger.Warn("sync failed", "kind", res.Kind, "error", res.Err)
}

func (a *app) announceNewBooks(ev reconcile.Event) {
	if len(ev.Books) == 0 {
		return
	}

	titles := make([]string, 0, len(ev.Books))
	for _, b := range ev.Books {
		if b.Title == "" {
			titles = append(titles, b.ID)
			continue
		}
		titles = append(titles, b.Title)
	}
	fmt.Fprintf(a.out, "%s %d new or updated: %s\n", renderAccent("★"), len(titles), strings.Join(titles, ", "))
}
