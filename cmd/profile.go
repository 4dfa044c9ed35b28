package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/autodidact/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect and update the learner profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the learner's profile documents as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		narrative, _ := cmd.Flags().GetBool("narrative")

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		generic, topical, err := rt.profiles.Documents(ctx, rt.learnerID, topic)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}

		out := cmd.OutOrStdout()
		if narrative {
			if topic == "" {
				topical = nil
			}
			text := profile.Narrative(generic, topical)
			if text == "" {
				text = "Nothing confirmed about this learner yet."
			}
			fmt.Fprintln(out, text)
			return nil
		}

		docs := []*profile.Document{generic}
		if topic != "" {
			docs = append(docs, topical)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		for _, d := range docs {
			if err := enc.Encode(d); err != nil {
				return fmt.Errorf("encode profile: %w", err)
			}
		}
		return enc.Close()
	},
}

var profileHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored revisions of a profile document",
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, _ := cmd.Flags().GetString("topic")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd, false)
		if err != nil {
			return err
		}
		defer rt.Close()

		scope := profile.ScopeGeneric
		if topic != "" {
			scope = profile.ScopeTopic
		}
		docs, err := rt.profileStore().History(ctx, rt.learnerID, scope, topic, limit)
		if err != nil {
			return fmt.Errorf("load history: %w", err)
		}
		if len(docs) == 0 {
			fmt.Println("No revisions stored.")
			return nil
		}

		fmt.Printf("%-8s  %-16s  %-9s  %-10s  %s\n", "Version", "Updated", "Sessions", "Confirmed", "Confidence")
		for _, d := range docs {
			fmt.Printf("%-8d  %-16s  %-9d  %-10d  %s\n",
				d.Version,
				d.UpdatedAt.Local().Format("2006-01-02 15:04"),
				d.SessionsAnalyzed,
				d.ConfirmedCount(),
				d.ConfidenceLevel(),
			)
		}
		return nil
	},
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update <session-id>",
	Short: "Run the profile update for a completed session whose update did not finish",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := openRuntime(ctx, cmd, true)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.engine.RetrySave(ctx, args[0]); err != nil {
			return err
		}
		st, err := rt.engine.UpdateProfiles(ctx, args[0])
		if err != nil {
			return err
		}
		if !st.ProfilesUpdated {
			return fmt.Errorf("profile update for session %s did not complete; see `autodidact session events %s`", args[0], args[0])
		}
		fmt.Printf("Profiles updated for learner %s from session %s.\n", st.LearnerID, st.SessionID)
		return nil
	},
}

func init() {
	profileShowCmd.Flags().String("topic", "", "Also show the topic document for this topic")
	profileShowCmd.Flags().Bool("narrative", false, "Print the narrative the tutor sees instead of YAML")
	profileHistoryCmd.Flags().String("topic", "", "Topic document to list (default: generic document)")
	profileHistoryCmd.Flags().IntP("limit", "n", 10, "Number of revisions to show")

	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileHistoryCmd)
	profileCmd.AddCommand(profileUpdateCmd)
}
