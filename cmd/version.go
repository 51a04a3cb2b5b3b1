package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patrongate/patrongate/internal/build"
)

// NewVersionCommand prints the build metadata stamped at link time.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of patrongate",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("%s version %s (commit %s, built %s)\n",
				build.ProjectName, build.Version, build.Commit, build.Date)
		},
		Args: cobra.NoArgs,
	}
}
