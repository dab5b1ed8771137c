package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var GitLastTag string
var GitHead string
var GitBranch string
var GitPatch string

func VersionToString() string {
	if GitPatch == "" {
		return fmt.Sprintf("%s (%s: %s)", GitLastTag, GitBranch, GitHead)
	}
	return fmt.Sprintf("%s-%s (%s: %s)", GitLastTag, GitPatch, GitBranch, GitHead)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	// The version does not depend on the configuration.
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version: %s\n", VersionToString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
