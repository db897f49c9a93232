package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at release time via -ldflags.
var version = "1.0.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codeverse %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
