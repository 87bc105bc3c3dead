package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examguard-backend/internal/model"
)

// ExamSessionRepository handles scheduled exam sitting data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, starts_at, ends_at FROM exam_sessions WHERE id = $1`, id,
	).Scan(&s.ID, &s.ExamID, &s.StartsAt, &s.EndsAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create schedules a new sitting of an exam.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, starts_at, ends_at)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		s.ExamID, s.StartsAt, s.EndsAt,
	).Scan(&s.ID)
}

// ListByExam retrieves all sittings of one exam, newest first.
func (r *ExamSessionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, starts_at, ends_at
		 FROM exam_sessions WHERE exam_id = $1
		 ORDER BY starts_at DESC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.ExamSession
	for rows.Next() {
		var s model.ExamSession
		if err := rows.Scan(&s.ID, &s.ExamID, &s.StartsAt, &s.EndsAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
