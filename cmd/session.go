package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/autodidact/internal/objectives"
	"github.com/abhisek/autodidact/internal/session"
	"github.com/abhisek/autodidact/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect stored tutoring sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		learner := rt.learnerID
		if all {
			learner = ""
		}
		recs, err := rt.store.SessionRepo().List(ctx, learner, limit)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		fmt.Printf("%-36s  %-12s  %-24s  %-10s  %s\n", "ID", "Learner", "Topic", "Phase", "Updated")
		fmt.Println(strings.Repeat("\u2500", 104))
		for _, r := range recs {
			fmt.Printf("%-36s  %-12s  %-24s  %-10s  %s\n",
				r.ID,
				truncate(r.LearnerID, 12),
				truncate(r.Topic, 24),
				r.Phase,
				r.UpdatedAt.Local().Format("2006-01-02 15:04"),
			)
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's objectives, completion and transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transcript, _ := cmd.Flags().GetBool("transcript")

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		st, err := session.NewRepoStore(rt.store.SessionRepo()).Load(ctx, args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		writeSummary(out, session.BuildSummary(st))
		if st.InterruptionDetected {
			fmt.Fprintf(out, "Last interruption: %s\n", st.InterruptionDuration.Round(time.Minute))
		}
		fmt.Fprintf(out, "Profiles updated:  %v\n", st.ProfilesUpdated)

		if transcript {
			sep := strings.Repeat("\u2500", 60)
			fmt.Fprintln(out)
			fmt.Fprintln(out, sep)
			fmt.Fprintln(out, "TRANSCRIPT")
			fmt.Fprintln(out, sep)
			for _, e := range st.Transcript {
				fmt.Fprintf(out, "[%s] %s:\n%s\n\n", e.Timestamp.Local().Format("15:04:05"), e.Role, e.Text)
			}
		}
		return nil
	},
}

var sessionEventsCmd = &cobra.Command{
	Use:   "events <id>",
	Short: "Show a session's audit trail of transitions, commands and anomalies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		kind, _ := cmd.Flags().GetString("kind")

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		events, err := rt.store.EventRepo().QuerySessionEvents(ctx, args[0], store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No events recorded for this session.")
			return nil
		}

		fmt.Printf("%-6s  %-19s  %-10s  %-8s  %-10s  %s\n", "Seq", "Timestamp", "Kind", "By", "Phase", "Detail")
		fmt.Println(strings.Repeat("\u2500", 100))
		for _, e := range events {
			if kind != "" && e.Kind != kind {
				continue
			}
			fmt.Printf("%-6d  %-19s  %-10s  %-8s  %-10s  %s\n",
				e.Sequence,
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.Kind,
				e.Provenance,
				e.Phase,
				e.Detail,
			)
		}
		return nil
	},
}

// writeSummary prints a session summary block.
func writeSummary(w io.Writer, sum *session.Summary) {
	fmt.Fprintf(w, "Lesson:     %s\n", sum.NodeTitle)
	fmt.Fprintf(w, "Session:    %s\n", sum.SessionID)
	fmt.Fprintf(w, "Phase:      %s\n", sum.Phase)
	fmt.Fprintf(w, "Progress:   %d/%d objectives (%d%%)\n", sum.Progress.Completed, sum.Progress.Total, sum.Percent)
	fmt.Fprintf(w, "Started:    %s\n", sum.StartedAt.Local().Format("2006-01-02 15:04"))
	if sum.Completion != nil {
		c := sum.Completion
		how := "assessed"
		if c.Forced {
			how = "forced"
		}
		fmt.Fprintf(w, "Completed:  %s (%s, score %.0f%%)\n", c.CompletedAt.Local().Format("2006-01-02 15:04"), how, c.Score*100)
		fmt.Fprintf(w, "Assessed:   %d   Forced: %d\n", c.AssessedObjectives, c.ForcedObjectives)
		fmt.Fprintf(w, "Duration:   %s\n", sum.Duration.Round(time.Second))
	}
	fmt.Fprintf(w, "Messages:   %d\n", sum.Messages)

	if len(sum.Objectives) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, o := range sum.Objectives {
		mark := " "
		switch o.Status {
		case objectives.StatusCompleted:
			mark = "x"
		case objectives.StatusCurrent:
			mark = ">"
		}
		line := fmt.Sprintf("  [%s] %s", mark, o.Description)
		if o.Provenance != objectives.ProvenanceNone {
			line += fmt.Sprintf("  (%s, %.0f%%)", o.Provenance, o.Score*100)
		}
		fmt.Fprintln(w, line)
	}
}

func init() {
	sessionListCmd.Flags().IntP("limit", "n", 20, "Number of sessions to show")
	sessionListCmd.Flags().Bool("all", false, "List sessions of every learner")
	sessionShowCmd.Flags().BoolP("transcript", "t", false, "Print the full transcript")
	sessionEventsCmd.Flags().IntP("limit", "n", 0, "Number of events to show (0 = all)")
	sessionEventsCmd.Flags().StringP("kind", "k", "", "Filter by kind (transition, command, anomaly, incident, profile)")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionEventsCmd)
}
