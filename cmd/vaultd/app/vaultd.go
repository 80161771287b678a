package app

import "github.com/spf13/cobra"

// Command builds the vaultd root command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaultd",
		Short: "Multi-tenant RSA signing vault",
	}

	cmd.AddCommand(
		serve(),
		rotateNow(),
	)

	return cmd
}
