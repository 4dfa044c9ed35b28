package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/autodidact/internal/app"
)

// runApp opens the session described by the flags and hands it to the
// full-screen chat.
func runApp(cmd *cobra.Command) error {
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	o, err := openSession(ctx, cmd, rt)
	if err != nil {
		return err
	}

	rt.logger.Info("opening chat",
		zap.String("session_id", o.State.SessionID),
		zap.String("phase", string(o.State.Phase)))

	if err := app.Run(app.Options{Engine: rt.engine, State: o.State}); err != nil {
		fmt.Fprintln(os.Stderr, "Error running program:", err)
		return err
	}

	if st, err := rt.engine.Get(ctx, o.State.SessionID); err == nil && !st.Completed() {
		fmt.Printf("Session saved. Resume with: autodidact --session %s\n", st.SessionID)
	}
	return nil
}
