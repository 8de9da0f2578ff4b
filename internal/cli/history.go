package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/attest/internal/audit"
)

// HistoryResult is the success payload of the history command.
type HistoryResult struct {
	Signer string        `json:"signer"`
	Events []audit.Event `json:"events"`
}

func (r HistoryResult) String() string {
	if len(r.Events) == 0 {
		return fmt.Sprintf("no accepted operations for %s", r.Signer)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d accepted operation(s) for %s:", len(r.Events), r.Signer)
	for _, ev := range r.Events {
		fmt.Fprintf(&b, "\n  seq=%d nonce=%d %s", ev.Seq, ev.Nonce, ev.Fingerprint)
	}
	return b.String()
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <signer>",
		Short: "List a signer's accepted operations in acceptance order",
		Long: `List every operation a signer has successfully claimed, ordered by
ledger sequence. Rejected submissions never appear here.

Example:
  attest history billing-svc --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runHistory(opts *RootOptions, signer string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ctx := cmd.Context()
	reg, closer, err := openRegistry(ctx, opts)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer closer.Close()

	events := reg.HistoryOf(signer)
	if events == nil {
		events = []audit.Event{}
	}
	return formatter.Success(HistoryResult{
		Signer: signer,
		Events: events,
	})
}
