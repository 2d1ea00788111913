package cli

import (
	"crypto/ed25519"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/zeebo/blake3"

	"github.com/roach88/kelwitness/internal/kel"
)

const seedContext = "kelwitness/cli/seed-key/v1"

// InceptionOptions holds flags for the inception command.
type InceptionOptions struct {
	*RootOptions
	Seed            string
	Keys            int
	Threshold       int
	NonTransferable bool
}

// InceptionResult is a signed inception event ready for submission.
type InceptionResult struct {
	Identifier kel.Identifier  `json:"identifier"`
	Event      kel.SignedEvent `json:"event"`

	stream []byte
}

// RenderText implements TextRenderer. The text form is the event stream
// itself, so it can be piped straight into POST /messages/{id}.
func (r InceptionResult) RenderText(w io.Writer) {
	_, _ = w.Write(r.stream)
}

// NewInceptionCommand creates the inception command.
func NewInceptionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InceptionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inception",
		Short: "Emit a signed inception event from a seed",
		Long: `Derive key generations deterministically from --seed and emit a signed
inception event. Generation 0 signs; the event commits to generation 1.

The seed is the only secret: anyone who knows it can rotate the
identifier. Use it for testing and demos, not for real identifiers.

Examples:
  witness inception --seed alice > alice.kel
  witness inception --seed alice --keys 3 --threshold 2
  witness inception --seed alice --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInception(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Seed, "seed", "", "secret seed the keys are derived from (required)")
	_ = cmd.MarkFlagRequired("seed")
	cmd.Flags().IntVar(&opts.Keys, "keys", 1, "number of signing keys per generation")
	cmd.Flags().IntVar(&opts.Threshold, "threshold", 1, "signatures required")
	cmd.Flags().BoolVar(&opts.NonTransferable, "non-transferable", false, "omit the next-key commitment")

	return cmd
}

func runInception(opts *InceptionOptions, cmd *cobra.Command) error {
	if opts.Keys < 1 || opts.Threshold < 1 || opts.Threshold > opts.Keys {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("threshold %d outside [1, %d]", opts.Threshold, opts.Keys))
	}

	current := seedKeys(opts.Seed, 0, opts.Keys)
	ev := kel.Event{
		Identifier:       kel.IdentifierFor(current[0].Public().(ed25519.PublicKey)),
		SequenceNumber:   0,
		EventType:        kel.Inception,
		SigningThreshold: opts.Threshold,
		SigningKeys:      kel.PublicKeys(current...),
	}
	if !opts.NonTransferable {
		commitment, err := kel.Commit(opts.Threshold, kel.PublicKeys(seedKeys(opts.Seed, 1, opts.Keys)...))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to commit next keys", err)
		}
		ev.NextKeyCommitment = commitment
	}

	se, err := kel.SignEvent(ev, current...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to sign inception", err)
	}
	// Self-check with the same rules the witness applies.
	if _, err := kel.NewProcessor().Process(ev.Identifier, nil, se); err != nil {
		return WrapExitError(ExitFailure, "generated inception does not verify", err)
	}
	stream, err := kel.EncodeStream([]kel.SignedEvent{se})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to encode inception", err)
	}

	return opts.formatter(cmd).Success(InceptionResult{Identifier: ev.Identifier, Event: se, stream: stream})
}

// seedKeys derives generation gen of n keys from seed.
func seedKeys(seed string, gen, n int) []ed25519.PrivateKey {
	keys := make([]ed25519.PrivateKey, n)
	for i := range keys {
		var s [ed25519.SeedSize]byte
		blake3.DeriveKey(seedContext, []byte(fmt.Sprintf("%s/%d/%d", seed, gen, i)), s[:])
		keys[i] = ed25519.NewKeyFromSeed(s[:])
	}
	return keys
}
