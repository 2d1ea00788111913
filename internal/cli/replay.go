package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/kelwitness/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// ReplayIdentifierResult holds the replay result for one identifier.
type ReplayIdentifierResult struct {
	Identifier string `json:"identifier"`
	Sequence   int64  `json:"sequence_number"`
	Consistent bool   `json:"consistent"`
	Error      string `json:"error,omitempty"`
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Identifiers   []ReplayIdentifierResult `json:"identifiers"`
	Total         int                      `json:"total"`
	AllConsistent bool                     `json:"all_consistent"`
}

// RenderText implements TextRenderer.
func (r ReplayResult) RenderText(w io.Writer) {
	if r.Total == 0 {
		fmt.Fprintln(w, "No identifiers found in database.")
		return
	}
	for _, id := range r.Identifiers {
		if id.Consistent {
			fmt.Fprintf(w, "ok       %s (sequence %d)\n", id.Identifier, id.Sequence)
		} else {
			fmt.Fprintf(w, "MISMATCH %s: %s\n", id.Identifier, id.Error)
		}
	}
	if r.AllConsistent {
		fmt.Fprintf(w, "\nAll %d identifiers replay to their stored key state.\n", r.Total)
	} else {
		fmt.Fprintf(w, "\nInconsistencies found among %d identifiers.\n", r.Total)
	}
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Check every stored log against its stored key state",
		Long: `Replay every stored key event log from empty state and check that it
reproduces the key state the database holds for that identifier.

Exit codes:
  0 - Every identifier is consistent
  1 - At least one identifier's stored state differs from its log
  2 - Command error (database not found, etc.)

Examples:
  witness replay --db ./witness.db
  witness replay --db ./witness.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	verified, err := st.VerifyAll(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list identifiers", err)
	}

	result := ReplayResult{
		Identifiers:   make([]ReplayIdentifierResult, 0, len(verified)),
		Total:         len(verified),
		AllConsistent: true,
	}
	for _, v := range verified {
		r := ReplayIdentifierResult{
			Identifier: string(v.Identifier),
			Sequence:   v.State.SequenceNumber,
			Consistent: v.Err == nil,
		}
		if v.Err != nil {
			r.Error = v.Err.Error()
			result.AllConsistent = false
		}
		result.Identifiers = append(result.Identifiers, r)
	}

	if err := opts.formatter(cmd).Success(result); err != nil {
		return err
	}
	if !result.AllConsistent {
		return NewExitError(ExitFailure, "replay found inconsistent key states")
	}
	return nil
}
