package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rescale/fwrelease/internal/envview"
	"github.com/rescale/fwrelease/internal/hooks"
)

// newTagCmd creates the 'tag' command.
func newTagCmd() *cobra.Command {
	var number bool

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Print the release tag of the current ledger",
		Long: `Print the release tag (<version>-<env>-<commit>) stored in the ledger,
or with --number the numeric version (1.2.9 -> 129).

Examples:
  git tag "v$(fwrelease tag)"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			rec, err := hooks.Ledger(s.deps, envview.NewMapView(nil)).LoadOrInit(GetContext())
			if err != nil {
				return err
			}
			if number {
				fmt.Fprintln(cmd.OutOrStdout(), rec.NumericVersion())
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.FullTag())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&number, "number", "n", false, "Print the numeric version instead")
	return cmd
}
