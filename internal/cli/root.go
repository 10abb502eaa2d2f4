package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the fleshrecord command tree.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fleshrecord",
		Short: "Scheduled financial reports from a Firefly III ledger",
		Long: `fleshrecord watches per-user report schedules, generates AI financial
reports from Firefly III transaction data, and delivers them to chat
webhooks. It also exposes an HTTP surface for ledger-event webhooks,
transaction ingestion and assistant queries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewTokenCommand())

	return cmd
}
