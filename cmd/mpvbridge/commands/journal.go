package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/mpvbridge/pkg/stores"
)

func newJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the session event journal",
		Long: `Query the SQLite journal written by "mpvbridge play --journal".

The journal keeps one row per session lifetime and every event published
for it: player events, policy violations and event loop failures.`,
	}

	cmd.AddCommand(newJournalSessionsCommand())
	cmd.AddCommand(newJournalEventsCommand())
	cmd.AddCommand(newJournalPruneCommand())

	return cmd
}

func requireJournal() (string, error) {
	if journalPath == "" {
		return "", fmt.Errorf("--journal is required")
	}
	return journalPath, nil
}

func newJournalSessionsCommand() *cobra.Command {
	var (
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List journaled sessions",
		Example: `  # List the last 20 sessions
  mpvbridge journal sessions --journal events.db --limit 20

  # List sessions that are still running
  mpvbridge journal sessions --journal events.db --status active`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := requireJournal()
			if err != nil {
				return err
			}

			var filter *stores.SessionStatus
			switch stores.SessionStatus(status) {
			case "":
			case stores.SessionStatusActive, stores.SessionStatusEnded:
				s := stores.SessionStatus(status)
				filter = &s
			default:
				return fmt.Errorf("invalid status %q (must be active or ended)", status)
			}

			journal, err := openJournal(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer journal.Close()

			sessions, err := journal.ListSessions(cmd.Context(), filter, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), sessions)
			}
			out := cmd.OutOrStdout()
			for _, s := range sessions {
				line := fmt.Sprintf("%s  %-12s %-6s started %s  events %d",
					s.ID, s.Session, s.Status, s.StartedAt.Local().Format(time.DateTime), s.EventCount)
				if s.EndedAt != nil {
					line += fmt.Sprintf("  ran %s", s.EndedAt.Sub(s.StartedAt).Round(time.Second))
				}
				if s.EndReason != nil {
					line += "  " + *s.EndReason
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only sessions with this status (active, ended)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of sessions, 0 for all")

	return cmd
}

func newJournalEventsCommand() *cobra.Command {
	var (
		session   string
		eventType string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List journaled events",
		Example: `  # Events of the main session
  mpvbridge journal events --journal events.db --session main

  # Every policy violation
  mpvbridge journal events --journal events.db --type policy.violation`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := requireJournal()
			if err != nil {
				return err
			}

			journal, err := openJournal(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer journal.Close()

			var sessionFilter, typeFilter *string
			if session != "" {
				sessionFilter = &session
			}
			if eventType != "" {
				typeFilter = &eventType
			}

			events, err := journal.ListEvents(cmd.Context(), sessionFilter, typeFilter, limit, offset)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), events)
			}
			out := cmd.OutOrStdout()
			for _, ev := range events {
				line := fmt.Sprintf("%6d %s %-12s %-26s %-7s",
					ev.ID, ev.Timestamp.Local().Format(time.DateTime), ev.Session, ev.Type, ev.Level)
				if ev.Name != nil {
					line += " " + *ev.Name
				}
				if ev.Message != nil {
					line += " " + *ev.Message
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "only events of this session key")
	cmd.Flags().StringVar(&eventType, "type", "", "only events of this type")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events, 0 for all")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many events")

	return cmd
}

func newJournalPruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old events",
		Example: `  # Keep the last 30 days
  mpvbridge journal prune --journal events.db --older-than 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := requireJournal()
			if err != nil {
				return err
			}
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			journal, err := openJournal(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer journal.Close()

			n, err := journal.PruneEvents(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d events\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "delete events older than this")

	return cmd
}
