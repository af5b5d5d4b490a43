package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func newJoinCommand() *cobra.Command {
	var roomID string
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join one room directly and moderate it until it ends",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, manager := bootstrap()

			if err := manager.StartSession(cmd.Context(), roomID); err != nil {
				return err
			}
			slog.Info("session running", "room_id", roomID)
			waitForShutdown()
			manager.StopSession()
			return nil
		},
	}
	cmd.Flags().StringVar(&roomID, "room", "", "Room ID to join")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}
