package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/abhisek/autodidact/internal/session"
	"github.com/abhisek/autodidact/internal/ui/markdown"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a session as a line-oriented chat on stdin/stdout",
	Long: "Run a tutoring session without the full-screen interface. Each line you type is one turn; " +
		"lines starting with / are session commands (see /help). An empty line retries a failed turn.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		rt, err := openRuntime(ctx, cmd, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		o, err := openSession(ctx, cmd, rt)
		if err != nil {
			return err
		}

		var render func(string) string
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			render = func(s string) string { return s }
		} else {
			render = markdown.NewAuto(80).Render
		}

		c := &chatLoop{
			engine: rt.engine,
			id:     o.State.SessionID,
			in:     bufio.NewScanner(cmd.InOrStdin()),
			out:    cmd.OutOrStdout(),
			render: render,
		}
		return c.run(ctx, o)
	},
}

func init() {
	addSessionFlags(chatCmd)
	chatCmd.Flags().Bool("raw", false, "Print tutor replies as plain markdown")
}

type chatLoop struct {
	engine *session.Engine
	id     string
	in     *bufio.Scanner
	out    io.Writer
	render func(string) string
}

func (c *chatLoop) run(ctx context.Context, o *opened) error {
	fmt.Fprintf(c.out, "Session %s\n\n", c.id)
	if o.Summary != nil {
		c.printSummary(o.Summary)
		return nil
	}
	c.tutor(o.Greeting)

	var pending string
	for {
		fmt.Fprint(c.out, "\n> ")
		if !c.in.Scan() {
			fmt.Fprintln(c.out)
			return c.in.Err()
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			if pending == "" {
				continue
			}
			line = pending
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		res, err := c.engine.Turn(ctx, c.id, line)
		var pe *session.PersistError
		switch {
		case errors.As(err, &pe) && res != nil && res.Completed:
			c.tutor(res.Reply)
			for _, n := range res.Notices {
				c.tutor(n)
			}
			if err := c.retrySave(ctx); err != nil {
				pending = line
				fmt.Fprintf(c.out, "\n(the finished session could not be saved: %v)\n(press Enter to try again)\n", err)
				continue
			}
			return c.finish(ctx)
		case errors.As(err, &pe) && res != nil:
			fmt.Fprintln(c.out, "\n(progress not saved yet; it will be retried on your next message)")
		case errors.As(err, &pe):
			// Earlier progress is still unsaved and the turn did not run.
			pending = line
			fmt.Fprintf(c.out, "\n(could not save earlier progress: %v)\n(press Enter to retry)\n", pe.Err)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			var te *session.TurnError
			if errors.As(err, &te) {
				pending = line
				fmt.Fprintf(c.out, "\n%s\n(press Enter to retry)\n", te.LearnerMessage())
				continue
			}
			if errors.Is(err, session.ErrSessionCompleted) {
				return c.finish(ctx)
			}
			return err
		}
		pending = ""

		c.tutor(res.Reply)
		for _, n := range res.Notices {
			c.tutor(n)
		}
		if res.Completed {
			return c.finish(ctx)
		}
	}
}

// saveRetryWaits are the pauses before each RetrySave attempt on a
// completion whose save failed.
var saveRetryWaits = []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}

// retrySave keeps a completed session from ending in memory only.
func (c *chatLoop) retrySave(ctx context.Context) error {
	var err error
	for _, wait := range saveRetryWaits {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if err = c.engine.RetrySave(ctx, c.id); err == nil {
			return nil
		}
	}
	return err
}

func (c *chatLoop) tutor(text string) {
	if text == "" {
		return
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.render(text))
}

func (c *chatLoop) finish(ctx context.Context) error {
	sum, err := c.engine.Summary(ctx, c.id)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out)
	c.printSummary(sum)
	return nil
}

func (c *chatLoop) printSummary(sum *session.Summary) {
	writeSummary(c.out, sum)
}
