package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/kelwitness/internal/kel"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
}

// StateResult is a key state as printed by the CLI.
type StateResult struct {
	kel.KeyState
	Events int `json:"events"`
}

// RenderText implements TextRenderer.
func (r StateResult) RenderText(w io.Writer) {
	fmt.Fprintf(w, "identifier:          %s\n", r.Identifier)
	fmt.Fprintf(w, "sequence number:     %d\n", r.SequenceNumber)
	fmt.Fprintf(w, "last event:          %s %s\n", r.LastEventType, r.LastDigest)
	fmt.Fprintf(w, "signing threshold:   %d of %d\n", r.SigningThreshold, len(r.SigningKeys))
	for i, k := range r.SigningKeys {
		fmt.Fprintf(w, "  key %d:             %s\n", i, k)
	}
	if r.Transferable() {
		fmt.Fprintf(w, "next key commitment: %s\n", r.NextKeyCommitment)
	} else {
		fmt.Fprintln(w, "next key commitment: none (non-transferable)")
	}
	fmt.Fprintf(w, "events:              %d\n", r.Events)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <kel-file>",
		Short: "Replay an event stream and print the resulting key state",
		Long: `Replay a key event log from a file (or "-" for stdin) without a database.

The file holds one signed event per line, the same stream served by
GET /key_logs/{id}. Every event is checked exactly as the witness would
check it on submission.

Exit codes:
  0 - The log folds to a key state
  1 - An event was rejected
  2 - Command error (file not found, unreadable)

Examples:
  witness verify ./kel.jsonl
  curl -s localhost:9599/key_logs/D... | witness verify - --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, args[0], cmd)
		},
	}

	return cmd
}

func runVerify(opts *VerifyOptions, path string, cmd *cobra.Command) error {
	data, err := readInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event stream", err)
	}

	out := opts.formatter(cmd)
	events, err := kel.ParseStream(data)
	if err == nil {
		var st kel.KeyState
		st, err = kel.NewProcessor().Replay(events)
		if err == nil {
			return out.Success(StateResult{KeyState: st, Events: len(events)})
		}
	}

	if pe, ok := kel.AsProcessingError(err); ok {
		_ = out.Error(string(pe.Code), pe.Message, map[string]any{
			"identifier": pe.Identifier,
			"sequence":   pe.Sequence,
		})
		return WrapExitError(ExitFailure, "event stream rejected", err)
	}
	return WrapExitError(ExitCommandError, "failed to verify event stream", err)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}
