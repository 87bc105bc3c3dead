package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examguard-backend/internal/model"
)

// ResponseRepository handles stored answer data access.
type ResponseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository creates a new ResponseRepository.
func NewResponseRepository(pool *pgxpool.Pool) *ResponseRepository {
	return &ResponseRepository{pool: pool}
}

// Upsert inserts or replaces the answer for one question in one attempt.
// Re-submitting a question overwrites the previous answer and its score.
func (r *ResponseRepository) Upsert(ctx context.Context, resp *model.Response) error {
	value, err := json.Marshal(resp.Value)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO responses (attempt_id, question_id, value, verdict, points_awarded, needs_review, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id, question_id)
		 DO UPDATE SET value = EXCLUDED.value, verdict = EXCLUDED.verdict,
		               points_awarded = EXCLUDED.points_awarded, needs_review = EXCLUDED.needs_review,
		               submitted_at = EXCLUDED.submitted_at`,
		resp.AttemptID, resp.QuestionID, value, resp.Verdict, resp.PointsAwarded, resp.NeedsReview, resp.SubmittedAt)
	return err
}

// ListByAttempt retrieves all answers of one attempt in submission order.
func (r *ResponseRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Response, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, value, verdict, points_awarded, needs_review, submitted_at
		 FROM responses WHERE attempt_id = $1
		 ORDER BY submitted_at ASC`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []model.Response
	for rows.Next() {
		var resp model.Response
		var value []byte
		if err := rows.Scan(&resp.AttemptID, &resp.QuestionID, &value, &resp.Verdict,
			&resp.PointsAwarded, &resp.NeedsReview, &resp.SubmittedAt); err != nil {
			return nil, err
		}
		if len(value) > 0 {
			if err := json.Unmarshal(value, &resp.Value); err != nil {
				return nil, err
			}
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

// OverrideScore applies a manual review verdict to an essay answer.
func (r *ResponseRepository) OverrideScore(ctx context.Context, attemptID, questionID uuid.UUID, verdict model.Verdict, points float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE responses
		 SET verdict = $1, points_awarded = $2, needs_review = FALSE
		 WHERE attempt_id = $3 AND question_id = $4`,
		verdict, points, attemptID, questionID)
	return err
}
