package database

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/metrics"
)

// maxBindParams is the PostgreSQL limit on parameters in one statement.
const maxBindParams = 65535

// UpsertResult reports one reconciled entity batch.
type UpsertResult struct {
	Entity string
	// Rows is the number of distinct ids written.
	Rows       int
	Statements int
	Duration   time.Duration
}

// Batch is everything a run produced, reconciled parents first.
type Batch struct {
	Paths     []domain.Path
	Trainings []domain.Training
	Steps     []domain.Step
	Contents  []domain.Content
}

// Reconciler writes scraped entities with idempotent upserts. It never deletes.
type Reconciler struct {
	db      *sqlx.DB
	metrics *metrics.Metrics
	log     logger.Logger
}

// NewReconciler returns a Reconciler. m may be nil.
func NewReconciler(db *sqlx.DB, m *metrics.Metrics, log logger.Logger) *Reconciler {
	return &Reconciler{db: db, metrics: m, log: log}
}

// table describes how one entity maps onto its table. The first column is
// the conflict key.
type table[T any] struct {
	entity  string
	name    string
	columns []string
	key     func(T) string
	values  func(T) []any
}

var pathTable = table[domain.Path]{
	entity:  "path",
	name:    "paths",
	columns: []string{"id", "platform_id", "title", "progression", "score"},
	key:     func(p domain.Path) string { return p.ID },
	values: func(p domain.Path) []any {
		return []any{p.ID, p.PlatformID, p.Title, p.Progression, p.Score}
	},
}

var trainingTable = table[domain.Training]{
	entity:  "training",
	name:    "trainings",
	columns: []string{"id", "platform_id", "path_id", "title", "type", "progression", "score"},
	key:     func(t domain.Training) string { return t.ID },
	values: func(t domain.Training) []any {
		return []any{t.ID, t.PlatformID, t.PathID, t.Title, t.Type, t.Progression, t.Score}
	},
}

var stepTable = table[domain.Step]{
	entity:  "step",
	name:    "steps",
	columns: []string{"id", "platform_id", "training_id", "title", "type", "is_validated", "is_blocked"},
	key:     func(s domain.Step) string { return s.ID },
	values: func(s domain.Step) []any {
		return []any{s.ID, s.PlatformID, s.TrainingID, s.Title, string(s.Type), s.IsValidated, s.IsBlocked}
	},
}

var contentTable = table[domain.Content]{
	entity:  "content",
	name:    "contents",
	columns: []string{"id", "step_id", "filename", "type"},
	key:     func(c domain.Content) string { return c.ID },
	values: func(c domain.Content) []any {
		return []any{c.ID, c.StepID, c.Filename, string(c.Type)}
	},
}

// ReconcilePaths upserts paths keyed by id.
func (r *Reconciler) ReconcilePaths(ctx context.Context, paths []domain.Path) (UpsertResult, error) {
	return upsert(ctx, r, pathTable, paths)
}

// ReconcileTrainings upserts trainings keyed by id.
func (r *Reconciler) ReconcileTrainings(ctx context.Context, trainings []domain.Training) (UpsertResult, error) {
	return upsert(ctx, r, trainingTable, trainings)
}

// ReconcileSteps upserts steps keyed by id.
func (r *Reconciler) ReconcileSteps(ctx context.Context, steps []domain.Step) (UpsertResult, error) {
	return upsert(ctx, r, stepTable, steps)
}

// ReconcileContents upserts content records keyed by step id.
func (r *Reconciler) ReconcileContents(ctx context.Context, contents []domain.Content) (UpsertResult, error) {
	return upsert(ctx, r, contentTable, contents)
}

// Reconcile writes paths, trainings, steps and contents in that order. The
// first failing batch stops the sequence; batches before it stay committed.
func (r *Reconciler) Reconcile(ctx context.Context, b Batch) ([]UpsertResult, error) {
	stages := []func(context.Context) (UpsertResult, error){
		func(ctx context.Context) (UpsertResult, error) { return r.ReconcilePaths(ctx, b.Paths) },
		func(ctx context.Context) (UpsertResult, error) { return r.ReconcileTrainings(ctx, b.Trainings) },
		func(ctx context.Context) (UpsertResult, error) { return r.ReconcileSteps(ctx, b.Steps) },
		func(ctx context.Context) (UpsertResult, error) { return r.ReconcileContents(ctx, b.Contents) },
	}

	results := make([]UpsertResult, 0, len(stages))
	for _, stage := range stages {
		res, err := stage(ctx)
		if err != nil {
			return results, domain.Abort(domain.KindReconciliation, "reconcile", res.Entity, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func upsert[T any](ctx context.Context, r *Reconciler, t table[T], items []T) (UpsertResult, error) {
	result := UpsertResult{Entity: t.entity}
	rows := dedupe(items, t.key)
	if len(rows) == 0 {
		return result, nil
	}

	start := time.Now()
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin %s transaction: %w", t.entity, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	chunkSize := maxBindParams / len(t.columns)
	for lo := 0; lo < len(rows); lo += chunkSize {
		hi := min(lo+chunkSize, len(rows))
		chunk := rows[lo:hi]

		args := make([]any, 0, len(chunk)*len(t.columns))
		for _, item := range chunk {
			args = append(args, t.values(item)...)
		}
		if _, execErr := tx.ExecContext(ctx, upsertQuery(t.name, t.columns, len(chunk)), args...); execErr != nil {
			return result, fmt.Errorf("failed to upsert %s rows: %w", t.entity, execErr)
		}
		result.Statements++
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return result, fmt.Errorf("failed to commit %s transaction: %w", t.entity, commitErr)
	}

	result.Rows = len(rows)
	result.Duration = time.Since(start)
	r.metrics.RecordUpsert(t.entity, int64(result.Rows), result.Duration)
	r.log.Info("Reconciled entities",
		logger.String("entity", t.entity),
		logger.Int("rows", result.Rows),
		logger.Int("statements", result.Statements),
		logger.Duration("duration", result.Duration),
	)
	return result, nil
}

// dedupe keeps one item per key, the last occurrence, at the position of
// the first. One statement cannot update the same row twice.
func dedupe[T any](items []T, key func(T) string) []T {
	pos := make(map[string]int, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if i, ok := pos[k]; ok {
			out[i] = item
			continue
		}
		pos[k] = len(out)
		out = append(out, item)
	}
	return out
}

// upsertQuery builds a multi-row INSERT that updates every non-key column on
// conflict and leaves created_time alone.
func upsertQuery(tableName string, columns []string, rows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(tableName)
	b.WriteString(" (")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(") VALUES ")

	n := 1
	for row := range rows {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for col := range columns {
			if col > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		}
		b.WriteByte(')')
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(columns[0])
	b.WriteString(") DO UPDATE SET ")
	for _, col := range columns[1:] {
		b.WriteString(col)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(col)
		b.WriteString(", ")
	}
	b.WriteString("updated_time = NOW()")
	return b.String()
}
