package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "automod",
		Short:         "Room automation bot: joins audio rooms, screens guests, answers pings",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newListenCommand())
	rootCmd.AddCommand(newJoinCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
