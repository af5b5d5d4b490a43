package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the automod version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("automod %s (%s/%s)\n", version, runtime.GOOS, runtime.GOARCH)
		},
	}
}
