package main

import (
	"github.com/spf13/cobra"
)

func newListenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Poll notifications and auto-join rooms the bot is pinged into",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, manager := bootstrap()

			manager.StartListener()
			waitForShutdown()
			manager.StopListener()
			manager.StopSession()
			return nil
		},
	}
}
