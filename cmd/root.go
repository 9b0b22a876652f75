package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "payouts",
	Short: "Mission payout microservice",
	Long:  "A payout microservice that splits captured mission payments among payees, executes rail transfers, and runs the distribution sweep.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
