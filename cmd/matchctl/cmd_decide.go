package main

import (
	"fmt"
	"strconv"

	"housing-allocation-backend/internal/services/matching"

	"github.com/spf13/cobra"
)

func parseMatchID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid match id %q", arg)
	}
	return uint(id), nil
}

func cliActor(userID uint, username string) matching.ActorContext {
	actor := matching.ActorContext{Username: username, IPAddress: "cli"}
	if userID > 0 {
		actor.UserID = &userID
	}
	return actor
}

func approveCmd() *cobra.Command {
	var (
		userID   uint
		username string
	)

	cmd := &cobra.Command{
		Use:   "approve <match-id>",
		Short: "Approve a pending match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMatchID(args[0])
			if err != nil {
				return err
			}
			app, err := newApp(cmd)
			if err != nil {
				return fmt.Errorf("approve: %w", err)
			}
			defer app.Close()

			d, err := app.Service.Approve(cmd.Context(), id, cliActor(userID, username))
			if err != nil {
				return fmt.Errorf("approve: %w", err)
			}
			fmt.Printf("Match %d approved, application %d created", d.MatchID, *d.ApplicationID)
			if !d.UnitsDecremented {
				fmt.Print(" (project had no units left)")
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().UintVar(&userID, "user", 0, "id of the approving user")
	cmd.Flags().StringVar(&username, "username", "", "name of the approving user")
	return cmd
}

func rejectCmd() *cobra.Command {
	var (
		userID   uint
		username string
		reason   string
	)

	cmd := &cobra.Command{
		Use:   "reject <match-id>",
		Short: "Reject a pending match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMatchID(args[0])
			if err != nil {
				return err
			}
			app, err := newApp(cmd)
			if err != nil {
				return fmt.Errorf("reject: %w", err)
			}
			defer app.Close()

			d, err := app.Service.Reject(cmd.Context(), id, reason, cliActor(userID, username))
			if err != nil {
				return fmt.Errorf("reject: %w", err)
			}
			fmt.Printf("Match %d rejected\n", d.MatchID)
			return nil
		},
	}

	cmd.Flags().UintVar(&userID, "user", 0, "id of the rejecting user")
	cmd.Flags().StringVar(&username, "username", "", "name of the rejecting user")
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}
