package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wikimedia/hyperswitch/internal/filter/builtin"
	"github.com/wikimedia/hyperswitch/spec"
)

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec-file>",
		Short: "Load a spec file and report any structural errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			result, err := spec.Load(doc, spec.Options{DisableHandlers: true, Registry: builtin.NewRegistry(nil)})
			if err != nil {
				return fmt.Errorf("%s is invalid: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid (%d resource(s) collected)\n", args[0], len(result.Resources))
			return nil
		},
	}
	return cmd
}
