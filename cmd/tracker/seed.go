package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prodline/tracker/internal/models"
	"github.com/prodline/tracker/internal/storage"
)

// sampleBuilds is the demo catalog loaded by `tracker seed`.
var sampleBuilds = []models.Build{
	{BuildNumber: "B00001", NumberOfParts: 1, TimePerPart: 1},
	{BuildNumber: "B00002", NumberOfParts: 1, TimePerPart: 0.2},
	{BuildNumber: "B00003", NumberOfParts: 20, TimePerPart: 3},
	{BuildNumber: "B00004", NumberOfParts: 40, TimePerPart: 1},
	{BuildNumber: "B00005", NumberOfParts: 15, TimePerPart: 2.5},
	{BuildNumber: "B00006", NumberOfParts: 35, TimePerPart: 1.8},
	{BuildNumber: "B00007", NumberOfParts: 28, TimePerPart: 2.2},
	{BuildNumber: "123463", NumberOfParts: 22, TimePerPart: 1.9},
}

func newSeedCmd(configPath *string) *cobra.Command {
	var clearOnly bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the sample build catalog into the backend database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			store, err := storage.NewDuckStore(cfg.Storage.DataDirectory)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := store.ClearBuilds(ctx); err != nil {
				return fmt.Errorf("failed to clear builds: %w", err)
			}
			if clearOnly {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "all builds cleared")
				return nil
			}

			for _, b := range sampleBuilds {
				if err := store.UpsertBuild(ctx, b); err != nil {
					return fmt.Errorf("failed to seed build %s: %w", b.BuildNumber, err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "build %s: %d parts, %g min/part\n",
					b.BuildNumber, b.NumberOfParts, b.TimePerPart)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d builds\n", len(sampleBuilds))
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearOnly, "clear", false, "clear the catalog without inserting sample builds")
	return cmd
}
