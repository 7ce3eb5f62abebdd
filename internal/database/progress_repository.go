package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
)

// stepSelectColumns lists columns for SELECT queries on steps.
const stepSelectColumns = `id, platform_id, training_id, title, type, is_validated, is_blocked,
	created_time, updated_time`

// ProgressRepository reads persisted progress back for staged runs.
type ProgressRepository struct {
	db *sqlx.DB
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// TrainingIDs returns the distinct platform ids of persisted trainings.
// Trainings keyed by a synthetic id are left out.
func (r *ProgressRepository) TrainingIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT platform_id
		FROM trainings
		WHERE platform_id <> ''
		ORDER BY platform_id
	`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("failed to list training ids: %w", err)
	}
	return ids, nil
}

// StepsForTraining returns the persisted steps of a training ordered by
// numeric id. Index is the position in that order.
func (r *ProgressRepository) StepsForTraining(ctx context.Context, trainingID string) ([]domain.Step, error) {
	query := `SELECT ` + stepSelectColumns + `
		FROM steps
		WHERE training_id = $1
		ORDER BY id::BIGINT`

	var steps []domain.Step
	if err := r.db.SelectContext(ctx, &steps, query, trainingID); err != nil {
		return nil, fmt.Errorf("failed to list steps for training %s: %w", trainingID, err)
	}
	for i := range steps {
		steps[i].Index = i
	}
	return steps, nil
}

// CountByTable returns the row count of each progress table.
func (r *ProgressRepository) CountByTable(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(progressTables))
	for _, name := range progressTables {
		var n int
		if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+name); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}

var progressTables = []string{"paths", "trainings", "steps", "contents"}
