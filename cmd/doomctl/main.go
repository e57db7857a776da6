// Command doomctl is the operator CLI for one-shot pipeline actions:
// running a discovery sweep, enqueueing a single video by hand, applying
// the database schema, and publishing a deep-scan job directly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "doomctl",
	Short: "Operator CLI for the doomscroller pipeline",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
