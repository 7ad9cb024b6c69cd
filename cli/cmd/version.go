package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eser/stack-sub001/internal/bundler"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version information",
	Long:  `Display the version, commit hash, build date and available backends.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("bundler %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		fmt.Printf("Backends: %s\n", strings.Join(bundler.BackendNames(), ", "))
	},
}
