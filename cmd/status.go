package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/database"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show what is stored in the database",
		Long: `Print row counts per table, or with --training the stored steps of one
training and their validated/blocked state.`,
		RunE: runStatus,
	}
	cmd.Flags().String("training", "", "list the stored steps of this training")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, ctx, err := setup(cmd)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	defer func() { _ = log.Sync() }()

	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := database.NewProgressRepository(db)

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)

	trainingID, _ := cmd.Flags().GetString("training")
	if trainingID == "" {
		counts, countErr := repo.CountByTable(ctx)
		if countErr != nil {
			return countErr
		}
		t.AppendHeader(table.Row{"Table", "Rows"})
		for _, name := range []string{"paths", "trainings", "steps", "contents"} {
			t.AppendRow(table.Row{name, counts[name]})
		}
		t.Render()
		return nil
	}

	steps, err := repo.StepsForTraining(ctx, trainingID)
	if err != nil {
		return err
	}
	t.SetTitle("Training " + trainingID)
	t.AppendHeader(table.Row{"#", "Step", "Title", "Type", "Validated", "Blocked"})
	for _, s := range steps {
		t.AppendRow(table.Row{s.Index, s.ID, s.Title, s.Type, s.IsValidated, s.IsBlocked})
	}
	t.Render()
	return nil
}
