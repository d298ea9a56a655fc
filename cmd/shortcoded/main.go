// Command shortcoded runs the short code generation service and its
// maintenance tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is the release reported by --version.
const Version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "shortcoded [command] [flags]",
		Version: Version,
		Short:   "shortcoded issues unique base62 short codes.",
		Long: `shortcoded issues unique, collision-checked base62 short codes.

Configuration is read from the environment, after loading a .env file from
the working directory when one exists.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newServeCmd(),
		newEncodeCmd(),
		newDecodeCmd(),
		newSampleCmd(),
		newMigrateCmd(),
	)
	return root
}
