package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/autodidact/internal/session"
)

// lessonFile is the --objectives-file format. A bare YAML list of strings
// is accepted as well and read as the objectives.
type lessonFile struct {
	Title      string   `yaml:"title"`
	Topic      string   `yaml:"topic"`
	NodeID     string   `yaml:"node_id"`
	Objectives []string `yaml:"objectives"`
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("session", "", "Resume (or create) the session with this id")
	cmd.Flags().StringArray("objective", nil, "Learning objective for a new session (repeatable)")
	cmd.Flags().String("objectives-file", "", "YAML file with the lesson title, topic and objectives")
	cmd.Flags().String("title", "", "Lesson title for a new session")
	cmd.Flags().String("topic", "", "Topic for a new session (selects the topic profile)")
	cmd.Flags().String("node", "", "Content node id for a new session")
}

func loadLessonFile(path string) (*lessonFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read objectives file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse objectives file %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return &lessonFile{}, nil
	}

	var lf lessonFile
	doc := root.Content[0]
	if doc.Kind == yaml.SequenceNode {
		err = doc.Decode(&lf.Objectives)
	} else {
		err = doc.Decode(&lf)
	}
	if err != nil {
		return nil, fmt.Errorf("parse objectives file %s: %w", path, err)
	}
	return &lf, nil
}

// lessonFromFlags builds the StartInput described by the command's flags.
// ok is false when no lesson was described.
func lessonFromFlags(cmd *cobra.Command, learnerID string) (in session.StartInput, ok bool, err error) {
	in.LearnerID = learnerID
	in.SessionID, _ = cmd.Flags().GetString("session")

	if path, _ := cmd.Flags().GetString("objectives-file"); path != "" {
		lf, err := loadLessonFile(path)
		if err != nil {
			return in, false, err
		}
		in.NodeTitle, in.Topic, in.NodeID = lf.Title, lf.Topic, lf.NodeID
		in.Objectives = append(in.Objectives, lf.Objectives...)
		ok = true
	}

	objs, _ := cmd.Flags().GetStringArray("objective")
	if len(objs) > 0 {
		in.Objectives = append(in.Objectives, objs...)
		ok = true
	}

	if v, _ := cmd.Flags().GetString("title"); v != "" {
		in.NodeTitle = v
	}
	if v, _ := cmd.Flags().GetString("topic"); v != "" {
		in.Topic = v
	}
	if v, _ := cmd.Flags().GetString("node"); v != "" {
		in.NodeID = v
	}

	switch {
	case in.NodeTitle == "" && in.Topic == "":
		in.NodeTitle, in.Topic = "Untitled lesson", "general"
	case in.NodeTitle == "":
		in.NodeTitle = in.Topic
	case in.Topic == "":
		in.Topic = strings.ToLower(in.NodeTitle)
	}
	if in.NodeID == "" {
		in.NodeID = in.Topic
	}
	return in, ok, nil
}

// opened is a session ready to be driven by a front end.
type opened struct {
	State *session.State
	// Greeting is the first tutor text to show: the intro of a new session
	// or the resumption summary of an interrupted one.
	Greeting string
	Summary  *session.Summary
}

// openSession resumes --session when it exists and otherwise starts a new
// session from the lesson flags.
func openSession(ctx context.Context, cmd *cobra.Command, rt *runtime) (*opened, error) {
	in, haveLesson, err := lessonFromFlags(cmd, rt.learnerID)
	if err != nil {
		return nil, err
	}

	if in.SessionID != "" {
		res, err := rt.engine.Resume(ctx, in.SessionID)
		if err != nil && res != nil && rt.persistWarning(err) {
			err = nil
		}
		switch {
		case err == nil:
			greeting := res.Message
			if greeting == "" {
				greeting = res.State.LastTutorText()
			}
			return &opened{State: res.State, Greeting: greeting, Summary: res.Summary}, nil
		case errors.Is(err, session.ErrSessionNotFound) && haveLesson:
		default:
			return nil, err
		}
	}

	if !haveLesson {
		return nil, errors.New("nothing to open: pass --session <id> or describe a lesson with --objective / --objectives-file")
	}

	st, err := rt.engine.Start(ctx, in)
	if err != nil && !(st != nil && rt.persistWarning(err)) {
		return nil, err
	}
	return &opened{State: st, Greeting: st.LastTutorText()}, nil
}

// persistWarning logs a save failure that left a usable in-memory state.
// The engine keeps that state and retries the write on the next turn.
func (r *runtime) persistWarning(err error) bool {
	var pe *session.PersistError
	if !errors.As(err, &pe) {
		return false
	}
	r.logger.Warn("session state not saved", zap.String("session_id", pe.SessionID), zap.Error(pe.Err))
	return true
}
