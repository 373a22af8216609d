package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gosuda/temsim/internal/room"
	"github.com/gosuda/temsim/internal/scenario"
	"github.com/gosuda/temsim/internal/sessionlog"
)

var (
	flagReplayArchive string
	flagReplayRoom    string
	flagReplaySession string
)

var replayCmd = &cobra.Command{
	Use:   "replay [session.jsonl]",
	Short: "Re-run a recorded session and compare the outcome",
	Long: "replay re-executes the accepted actions of a recorded session against a fresh\n" +
		"simulation and checks that it ends with the recorded score and phase. The log\n" +
		"comes from a JSONL session file or from the archive (--archive, --room, --session).",
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	flags := replayCmd.Flags()
	flags.StringVar(&flagReplayArchive, "archive", "", "pebble archive directory")
	flags.StringVar(&flagReplayRoom, "room", "", "room id inside the archive")
	flags.StringVar(&flagReplaySession, "session", "", "session id inside the archive (only session of the room when empty)")
}

var errReplayMismatch = errors.New("replay diverged from the recording")

func runReplay(cmd *cobra.Command, args []string) error {
	lib, err := loadLibrary()
	if err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}
	records, err := replayRecords(args)
	if err != nil {
		return err
	}
	return replaySession(cmd.OutOrStdout(), lib, records)
}

func replayRecords(args []string) ([]sessionlog.Record, error) {
	switch {
	case len(args) == 1 && flagReplayArchive != "":
		return nil, errors.New("give either a session file or --archive, not both")
	case len(args) == 1:
		return sessionlog.ReadFile(args[0])
	case flagReplayArchive == "":
		return nil, errors.New("need a session file or --archive")
	case flagReplayRoom == "":
		return nil, errors.New("--archive needs --room")
	}

	archive, err := sessionlog.OpenArchive(flagReplayArchive)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	session := flagReplaySession
	if session == "" {
		sessions, err := archive.Sessions(flagReplayRoom)
		if err != nil {
			return nil, err
		}
		switch len(sessions) {
		case 0:
			return nil, fmt.Errorf("no sessions archived for room %q", flagReplayRoom)
		case 1:
			session = sessions[0]
		default:
			return nil, fmt.Errorf("room %q has %d sessions, pick one with --session: %v", flagReplayRoom, len(sessions), sessions)
		}
	}
	return archive.Records(flagReplayRoom, session)
}

func replaySession(w io.Writer, lib *scenario.Library, records []sessionlog.Record) error {
	res, _, err := room.Replay(lib, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "room      %s\n", res.Room)
	fmt.Fprintf(w, "session   %s\n", res.Session)
	fmt.Fprintf(w, "scenario  %s\n", res.Scenario)
	fmt.Fprintf(w, "ticks     %d\n", res.Ticks)
	fmt.Fprintf(w, "actions   %d\n", res.Actions)
	fmt.Fprintf(w, "score     %d (recorded %d)\n", res.Score, res.RecordedScore)
	fmt.Fprintf(w, "phase     %s (recorded %s)\n", res.Phase, res.RecordedPhase)
	if res.Outcome != "" {
		fmt.Fprintf(w, "outcome   %s\n", res.Outcome)
	}
	if !res.Match() {
		return errReplayMismatch
	}
	return nil
}
