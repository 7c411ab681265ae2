package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(),
				"descriptor %s\n  commit:  %s\n  built:   %s\n  runtime: %s %s/%s\n",
				Version, GitCommit, BuildDate,
				runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
