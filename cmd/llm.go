package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/abhisek/autodidact/internal/control"
	"github.com/abhisek/autodidact/internal/llm"
	"github.com/abhisek/autodidact/internal/store"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect the model calls made by tutoring sessions",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent model calls grouped by session",
	RunE: func(cmd *cobra.Command, args []string) error {
		var f callFilter
		f.limit, _ = cmd.Flags().GetInt("limit")
		f.purpose, _ = cmd.Flags().GetString("purpose")
		f.session, _ = cmd.Flags().GetString("session")
		f.failed, _ = cmd.Flags().GetBool("failed")
		after, _ := cmd.Flags().GetInt64("after")

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		// Filters run in memory, so the limit applies after them.
		opts := store.QueryOpts{After: after}
		if !f.active() {
			opts.Limit = f.limit
		}
		list, err := rt.store.EventRepo().QueryLLMEvents(ctx, opts)
		if err != nil {
			return fmt.Errorf("query model calls: %w", err)
		}
		writeCallGroups(cmd.OutOrStdout(), f.apply(list))
		return nil
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show one model call with its prompt, reply and decoded control blocks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid call id %q: %w", args[0], err)
		}

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		e, err := rt.store.EventRepo().GetLLMEvent(ctx, id)
		if err != nil {
			return fmt.Errorf("get model call: %w", err)
		}
		if e == nil {
			return fmt.Errorf("model call %d not found", id)
		}
		writeCall(cmd.OutOrStdout(), e)
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show token usage and estimated cost per purpose, model and session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()
		return writeUsage(ctx, cmd.OutOrStdout(), rt.store.EventRepo())
	},
}

type callFilter struct {
	limit   int
	purpose string
	session string
	failed  bool
}

func (f callFilter) active() bool {
	return f.purpose != "" || f.session != "" || f.failed
}

func (f callFilter) apply(list []store.LLMRequestEvent) []store.LLMRequestEvent {
	var out []store.LLMRequestEvent
	for _, e := range list {
		switch {
		case f.purpose != "" && e.Purpose != f.purpose:
		case f.session != "" && e.SessionID != f.session:
		case f.failed && e.Success:
		default:
			out = append(out, e)
		}
		if f.limit > 0 && len(out) == f.limit {
			break
		}
	}
	return out
}

// purposeLabel names a call by the session step that made it.
func purposeLabel(purpose string) string {
	switch purpose {
	case llm.PurposeTutorTurn:
		return "tutor turn"
	case llm.PurposeProfileGeneric:
		return "learner profile"
	case llm.PurposeProfileTopic:
		return "topic profile"
	case "":
		return "other"
	}
	return purpose
}

// callGroup is the calls of one session, newest first.
type callGroup struct {
	session       string
	calls         []store.LLMRequestEvent
	in, out, fail int
}

// groupBySession keeps sessions in the order their newest call appears.
func groupBySession(list []store.LLMRequestEvent) []*callGroup {
	var groups []*callGroup
	index := make(map[string]*callGroup)
	for _, e := range list {
		g, ok := index[e.SessionID]
		if !ok {
			g = &callGroup{session: e.SessionID}
			index[e.SessionID] = g
			groups = append(groups, g)
		}
		g.calls = append(g.calls, e)
		g.in += e.InputTokens
		g.out += e.OutputTokens
		if !e.Success {
			g.fail++
		}
	}
	return groups
}

func writeCallGroups(w io.Writer, list []store.LLMRequestEvent) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No model calls recorded.")
		return
	}

	for i, g := range groupBySession(list) {
		if i > 0 {
			fmt.Fprintln(w)
		}
		name := g.session
		if name == "" {
			name = "(no session)"
		}
		fmt.Fprintf(w, "%s  %d calls, %d in / %d out tokens", name, len(g.calls), g.in, g.out)
		if g.fail > 0 {
			fmt.Fprintf(w, ", %d failed", g.fail)
		}
		fmt.Fprintln(w)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, e := range g.calls {
			status := "ok"
			if !e.Success {
				status = "failed: " + truncate(e.ErrorMessage, 40)
			}
			fmt.Fprintf(tw, "  #%d\t%s\t%s\t%s\t%d→%d\t%dms\t%s\n",
				e.ID,
				e.Timestamp.Local().Format("01-02 15:04:05"),
				purposeLabel(e.Purpose),
				truncate(e.Model, 28),
				e.InputTokens, e.OutputTokens,
				e.LatencyMs,
				status)
		}
		tw.Flush()
	}
}

func writeCall(w io.Writer, e *store.LLMRequestEvent) {
	fmt.Fprintf(w, "Call #%d, %s at %s\n", e.ID, purposeLabel(e.Purpose), e.Timestamp.Local().Format("2006-01-02 15:04:05"))
	if e.SessionID != "" {
		fmt.Fprintf(w, "  session   %s\n", e.SessionID)
	}
	fmt.Fprintf(w, "  model     %s (%s)\n", e.Model, e.Provider)
	fmt.Fprintf(w, "  tokens    %d in, %d out", e.InputTokens, e.OutputTokens)
	if usd, ok := llm.EstimateCost(e.Model, e.InputTokens, e.OutputTokens); ok {
		fmt.Fprintf(w, ", about %s", formatCost(usd))
	}
	fmt.Fprintf(w, "\n  latency   %dms\n", e.LatencyMs)
	if !e.Success {
		fmt.Fprintf(w, "  failed    %s\n", e.ErrorMessage)
	}

	writeSection(w, "Prompt", e.RequestBody)
	writeSection(w, "Reply", e.ResponseBody)

	// Tutor replies carry the control markup that drove the session.
	if e.Purpose == llm.PurposeTutorTurn && e.ResponseBody != "" {
		blocks := control.Parse(e.ResponseBody).Blocks
		fmt.Fprintf(w, "\n== Control blocks (%d)\n", len(blocks))
		for _, b := range blocks {
			line := b.Kind.String()
			if b.Reason != "" {
				line += ": " + b.Reason
			}
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func writeSection(w io.Writer, title, body string) {
	fmt.Fprintf(w, "\n== %s\n", title)
	if body == "" {
		fmt.Fprintln(w, "(not captured)")
		return
	}
	fmt.Fprintln(w, strings.TrimRight(body, "\n"))
}

func writeUsage(ctx context.Context, w io.Writer, events store.EventRepo) error {
	byPurpose, err := events.LLMUsageByPurpose(ctx)
	if err != nil {
		return fmt.Errorf("query usage: %w", err)
	}
	if len(byPurpose) == 0 {
		fmt.Fprintln(w, "No model usage recorded yet.")
		return nil
	}

	var calls, in, out int
	fmt.Fprintln(w, "By purpose")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tcalls\tinput\toutput\tavg ms\t")
	for _, u := range byPurpose {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t\n", purposeLabel(u.Purpose), u.Calls, u.InputTokens, u.OutputTokens, u.AvgLatencyMs)
		calls += u.Calls
		in += u.InputTokens
		out += u.OutputTokens
	}
	fmt.Fprintf(tw, "all\t%d\t%d\t%d\t\t\n", calls, in, out)
	tw.Flush()

	byModel, err := events.LLMUsageByModel(ctx)
	if err != nil {
		return fmt.Errorf("query model usage: %w", err)
	}
	var total float64
	var unpriced []string
	fmt.Fprintln(w, "\nEstimated cost by model")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for _, u := range byModel {
		cost := "?"
		if usd, ok := llm.EstimateCost(u.Model, u.InputTokens, u.OutputTokens); ok {
			total += usd
			cost = formatCost(usd)
		} else {
			unpriced = append(unpriced, u.Model)
		}
		fmt.Fprintf(tw, "%s\t%d calls\t%s\t\n", truncate(u.Model, 32), u.Calls, cost)
	}
	label := "total"
	if len(unpriced) > 0 {
		label = "known total"
	}
	fmt.Fprintf(tw, "%s\t\t%s\t\n", label, formatCost(total))
	tw.Flush()
	if len(unpriced) > 0 {
		fmt.Fprintf(w, "No pricing for: %s\n", strings.Join(unpriced, ", "))
	}

	bySession, err := events.LLMUsageBySession(ctx)
	if err != nil {
		return fmt.Errorf("query session usage: %w", err)
	}
	writeSessionUsage(w, bySession)
	return nil
}

// writeSessionUsage lists token usage per tutoring session. Calls made
// outside a session are left out.
func writeSessionUsage(w io.Writer, usage []store.LLMUsage) {
	var rows []store.LLMUsage
	for _, u := range usage {
		if u.SessionID != "" {
			rows = append(rows, u)
		}
	}
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(w, "\nBy session")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, u := range rows {
		fmt.Fprintf(tw, "%s\t%d calls\t%d in / %d out\n", u.SessionID, u.Calls, u.InputTokens, u.OutputTokens)
	}
	tw.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of calls to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Only calls with this purpose (tutor-turn, profile-generic, profile-topic)")
	llmListCmd.Flags().StringP("session", "s", "", "Only calls made by this session")
	llmListCmd.Flags().Bool("failed", false, "Only calls that failed")
	llmListCmd.Flags().Int64("after", 0, "Only calls with a sequence greater than this")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
