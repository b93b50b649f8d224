package main

import (
	"fmt"

	"housing-allocation-backend/internal/models"
	"housing-allocation-backend/internal/services/allocation"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	var (
		regionID       uint
		municipalityID uint
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the matching engine once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			defer app.Close()

			req := allocation.RunRequest{ProjectLimit: limit, Trigger: models.TriggerCLI}
			if cmd.Flags().Changed("region") {
				req.RegionID = &regionID
			}
			if cmd.Flags().Changed("municipality") {
				req.MunicipalityID = &municipalityID
			}

			outcome, err := app.Service.ExecuteRun(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			res := outcome.Result
			fmt.Printf("Run %s\n", outcome.Run.ID)
			fmt.Printf("Processed: %d  Created: %d  Errors: %d\n\n", res.Processed, res.Created, res.Errors)
			for _, d := range res.Details {
				fmt.Printf("  %-30s %-30s %6.2f\n", d.BeneficiaryName, d.ProjectName, d.Score)
			}
			return nil
		},
	}

	cmd.Flags().UintVar(&regionID, "region", 0, "only match beneficiaries and projects in this region")
	cmd.Flags().UintVar(&municipalityID, "municipality", 0, "only match beneficiaries and projects in this municipality")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of candidate projects (0 = all)")
	return cmd
}
