package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/attest/internal/ledger"
	"github.com/roach88/attest/internal/op"
)

// SignerOptions holds flags for the signer command.
type SignerOptions struct {
	*RootOptions
	Nonce int64
}

// SignerResult is the success payload of the signer command.
type SignerResult struct {
	Fingerprint string `json:"fingerprint"`
	Signer      string `json:"signer"`
}

func (r SignerResult) String() string {
	return fmt.Sprintf("%s claimed by %s", r.Fingerprint, r.Signer)
}

// NewSignerCommand creates the signer command.
func NewSignerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SignerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "signer <kind> <record-id>",
		Short: "Look up which signer claimed an operation's fingerprint",
		Long: `Look up the signer bound to an operation's fingerprint.

Exits 0 with the signer when the fingerprint is claimed, 1 when it is not.

Example:
  attest signer create user_123 --nonce 1700000000`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSigner(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Nonce, "nonce", 0, "operation nonce")

	return cmd
}

func runSigner(opts *SignerOptions, kind, recordID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	operation, err := op.NewOperation(op.Kind(kind), recordID, opts.Nonce)
	if err != nil {
		formatter.Error(ErrCodeEncoding, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid operation", err)
	}

	ctx := cmd.Context()
	reg, closer, err := openRegistry(ctx, opts.RootOptions)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer closer.Close()

	signer, found, err := reg.SignerOf(ctx, operation)
	if err != nil {
		if ledger.IsBackendUnavailable(err) {
			formatter.Error(ErrCodeBackend, err.Error(), nil)
		} else {
			formatter.Error(ErrCodeGeneric, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "lookup signer", err)
	}
	if !found {
		fp, _ := op.Encode(operation)
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("no entry for %s", fp), nil)
		return NewExitError(ExitRejected, "fingerprint not claimed")
	}

	fp, _ := op.Encode(operation)
	return formatter.Success(SignerResult{
		Fingerprint: fp.String(),
		Signer:      signer,
	})
}
