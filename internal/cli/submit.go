package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/attest/internal/coalesce"
	"github.com/roach88/attest/internal/ledger"
	"github.com/roach88/attest/internal/op"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Signer string
	Nonce  int64
}

// SubmitResult is the success payload of the submit command.
type SubmitResult struct {
	Accepted    bool   `json:"accepted"`
	Fingerprint string `json:"fingerprint"`
	Signer      string `json:"signer"`
}

func (r SubmitResult) String() string {
	if r.Accepted {
		return fmt.Sprintf("accepted %s (signer %s)", r.Fingerprint, r.Signer)
	}
	return fmt.Sprintf("rejected %s: already claimed", r.Fingerprint)
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <kind> <record-id>",
		Short: "Submit an operation, claiming its fingerprint if unclaimed",
		Long: `Submit an operation to the registry.

The operation is fingerprinted from its kind, record id and nonce. The first
submission of a fingerprint is accepted and bound to the signer forever;
every later submission of the same fingerprint is rejected (exit code 1).

Example:
  attest submit create user_123 --signer billing-svc --nonce 1700000000`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Signer, "signer", "", "signer identity (default: a fresh UUID)")
	cmd.Flags().Int64Var(&opts.Nonce, "nonce", -1, "operation nonce (default: current unix nanos)")

	return cmd
}

func runSubmit(opts *SubmitOptions, kind, recordID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	signer := opts.Signer
	if signer == "" {
		signer = uuid.Must(uuid.NewV7()).String()
		formatter.VerboseLog("no --signer given, using %s", signer)
	}
	nonce := opts.Nonce
	if nonce < 0 {
		nonce = time.Now().UnixNano()
	}

	operation, err := op.NewOperation(op.Kind(kind), recordID, nonce)
	if err != nil {
		formatter.Error(ErrCodeEncoding, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid operation", err)
	}
	fp, err := op.Encode(operation)
	if err != nil {
		formatter.Error(ErrCodeEncoding, err.Error(), nil)
		return WrapExitError(ExitCommandError, "encode operation", err)
	}

	ctx := cmd.Context()
	reg, closer, err := openRegistry(ctx, opts.RootOptions)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer closer.Close()

	accepted, err := reg.Submit(ctx, operation, signer)
	if err != nil {
		switch {
		case ledger.IsBackendUnavailable(err):
			formatter.Error(ErrCodeBackend, err.Error(), nil)
		case coalesce.IsWaitAbandoned(err):
			formatter.Error(ErrCodeTimeout, err.Error(), nil)
		default:
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "submit", err)
	}

	result := SubmitResult{
		Accepted:    accepted,
		Fingerprint: fp.String(),
		Signer:      signer,
	}
	if !accepted {
		// The winning signer, not ours, owns the fingerprint.
		if winner, found, lookupErr := reg.SignerOf(ctx, operation); lookupErr == nil && found {
			result.Signer = winner
		}
		if err := formatter.Success(result); err != nil {
			return err
		}
		return NewExitError(ExitRejected, "fingerprint already claimed")
	}
	return formatter.Success(result)
}
