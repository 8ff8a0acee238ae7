package version

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AttachCobraVersionCommand attaches a `version` subcommand to the provided root command.
func AttachCobraVersionCommand(root *cobra.Command) {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information.",
		Long:  "Print the version, commit hash and build time. Values come from build ldflags or, for go install builds, from the VCS stamp.",
		Run: func(cmd *cobra.Command, _ []string) {
			out := Full()
			if short {
				out = Short()
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version")
	root.AddCommand(cmd)
}
