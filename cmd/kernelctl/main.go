// Command kernelctl replays and inspects the JSON trace cmd/kernel
// writes when booted with -trace: a line per dispatch, per timer
// firing, and per boot milestone.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kernelctl",
		Short: "Inspect offline boot/dispatch/timer traces",
	}
	root.AddCommand(traceCmd())
	return root
}
