package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examguard-backend/internal/model"
)

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// GetByID retrieves a question with its answer key.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	var key []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, question_text, question_type, options, points, difficulty, answer_key, order_num
		 FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionType, &q.Options, &q.Points, &q.Difficulty, &key, &q.OrderNum)
	if err != nil {
		return nil, err
	}
	if len(key) > 0 {
		if err := json.Unmarshal(key, &q.AnswerKey); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// ListByExam retrieves all questions for a given exam, ordered by order_num.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, question_type, options, points, difficulty, answer_key, order_num
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var key []byte
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionType, &q.Options, &q.Points, &q.Difficulty, &key, &q.OrderNum); err != nil {
			return nil, err
		}
		if len(key) > 0 {
			if err := json.Unmarshal(key, &q.AnswerKey); err != nil {
				return nil, err
			}
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	key, err := json.Marshal(q.AnswerKey)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (exam_id, question_text, question_type, options, points, difficulty, answer_key, order_num)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		q.ExamID, q.QuestionText, q.QuestionType, q.Options, q.Points, q.Difficulty, key, q.OrderNum,
	).Scan(&q.ID)
}

// Delete removes a question.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return err
}
