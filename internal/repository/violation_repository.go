package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examguard-backend/internal/model"
)

// ViolationRepository handles violation event data access.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// Insert persists one violation event.
func (r *ViolationRepository) Insert(ctx context.Context, ev *model.ViolationEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO violation_events (id, attempt_id, exam_id, student_id, type, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.AttemptID, ev.ExamID, ev.StudentID, ev.Type, ev.Metadata, ev.OccurredAt)
	return err
}

// BulkInsert writes a batch of events with the binary copy protocol.
// Used by the persistence worker draining the Redis queue.
func (r *ViolationRepository) BulkInsert(ctx context.Context, events []model.ViolationEvent) (int64, error) {
	rows := make([][]any, len(events))
	for i, ev := range events {
		rows[i] = []any{ev.ID, ev.AttemptID, ev.ExamID, ev.StudentID, ev.Type, ev.Metadata, ev.OccurredAt}
	}
	return r.pool.CopyFrom(ctx,
		pgx.Identifier{"violation_events"},
		[]string{"id", "attempt_id", "exam_id", "student_id", "type", "metadata", "occurred_at"},
		pgx.CopyFromRows(rows))
}

// ListByAttempt retrieves the raw event history of one attempt.
func (r *ViolationRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.ViolationEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, exam_id, student_id, type, metadata, occurred_at
		 FROM violation_events WHERE attempt_id = $1
		 ORDER BY occurred_at ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.ViolationEvent
	for rows.Next() {
		var ev model.ViolationEvent
		if err := rows.Scan(&ev.ID, &ev.AttemptID, &ev.ExamID, &ev.StudentID, &ev.Type, &ev.Metadata, &ev.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteByAttempt removes all events of one attempt (administrative
// ledger reset).
func (r *ViolationRepository) DeleteByAttempt(ctx context.Context, attemptID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM violation_events WHERE attempt_id = $1`, attemptID)
	return err
}

// CountByTypeForExam aggregates event counts per type across an exam.
// Feeds the proctor monitoring overview.
func (r *ViolationRepository) CountByTypeForExam(ctx context.Context, examID uuid.UUID) (map[model.ViolationType]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT type, COUNT(*) FROM violation_events WHERE exam_id = $1 GROUP BY type`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.ViolationType]int)
	for rows.Next() {
		var t model.ViolationType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}
