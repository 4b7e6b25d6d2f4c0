package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/subscription-engine/app/repository"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/database"
)

func seedPlansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-plans",
		Short: "Insert or refresh the default plan catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := cliLogger()
			database.SetupDatabase(log)
			created, err := repository.SeedPlans(cmd.Context(), repository.NewPlanRepository(database.GetDB()))
			if err != nil {
				return err
			}
			log.Info().Int("created", created).Int("total", len(repository.DefaultPlans())).Msg("plans seeded")
			return nil
		},
	}
}
