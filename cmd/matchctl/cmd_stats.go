package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show allocation statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			defer app.Close()

			stats, err := app.Service.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("stats: fetching statistics: %w", err)
			}

			fmt.Printf("Beneficiaries: %d  Projects: %d  Applications: %d  Matches: %d\n",
				stats.Beneficiaries, stats.Projects, stats.Applications, stats.Matches)
			fmt.Printf("Available units: %d\n", stats.TotalAvailableUnits)
			if stats.AverageCompatibility != nil {
				fmt.Printf("Average compatibility: %.2f\n", *stats.AverageCompatibility)
			}

			fmt.Println("\nMatches by state:")
			for s, c := range stats.MatchesByState {
				fmt.Printf("  %-12s %d\n", s, c)
			}

			fmt.Println("\nProjects by status:")
			for s, c := range stats.ProjectsByStatus {
				fmt.Printf("  %-18s %d\n", s, c)
			}
			return nil
		},
	}
}
