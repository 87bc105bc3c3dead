package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examguard-backend/internal/model"
)

const attemptColumns = `id, exam_id, session_id, student_id, status, started_at, finished_at,
	        extra_time_minutes, paused_accum_ms, paused_at, violation_total, violation_counts,
	        flagged, flag_reason, behavior_flags, points_possible, points_earned, score_value, pass_status`

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	var counts, flags []byte
	err := row.Scan(
		&a.ID, &a.ExamID, &a.SessionID, &a.StudentID, &a.Status, &a.StartedAt, &a.FinishedAt,
		&a.ExtraTimeMinutes, &a.PausedAccumMs, &a.PausedAt, &a.ViolationTotal, &counts,
		&a.Flagged, &a.FlagReason, &flags, &a.PointsPossible, &a.PointsEarned, &a.ScoreValue, &a.PassStatus,
	)
	if err != nil {
		return nil, err
	}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &a.ViolationCounts); err != nil {
			return nil, err
		}
	}
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &a.BehaviorFlags); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func attemptJSON(a *model.Attempt) (counts, flags []byte, err error) {
	counts, err = json.Marshal(a.ViolationCounts)
	if err != nil {
		return nil, nil, err
	}
	flags, err = json.Marshal(a.BehaviorFlags)
	if err != nil {
		return nil, nil, err
	}
	return counts, flags, nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetBySessionAndStudent retrieves the attempt for one student in one session.
func (r *AttemptRepository) GetBySessionAndStudent(ctx context.Context, sessionID uuid.UUID, studentID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE session_id = $1 AND student_id = $2`,
		sessionID, studentID))
}

// Create enrolls a student into a session. Re-enrolling is a no-op that
// returns the existing attempt id.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, exam_id, session_id, student_id, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id, student_id) DO NOTHING
		 RETURNING id`,
		a.ID, a.ExamID, a.SessionID, a.StudentID, a.Status,
	).Scan(&a.ID)
	if err == nil {
		return nil
	}
	// Conflict path: the insert returned no row; fetch the existing one.
	existing, getErr := r.GetBySessionAndStudent(ctx, a.SessionID, a.StudentID)
	if getErr != nil {
		return err
	}
	*a = *existing
	return nil
}

// Save persists the attempt's mutable, non-terminal fields.
func (r *AttemptRepository) Save(ctx context.Context, a *model.Attempt) error {
	counts, flags, err := attemptJSON(a)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, started_at = $2, extra_time_minutes = $3, paused_accum_ms = $4,
		     paused_at = $5, violation_total = $6, violation_counts = $7,
		     flagged = $8, flag_reason = $9, behavior_flags = $10, updated_at = NOW()
		 WHERE id = $11`,
		a.Status, a.StartedAt, a.ExtraTimeMinutes, a.PausedAccumMs,
		a.PausedAt, a.ViolationTotal, counts,
		a.Flagged, a.FlagReason, flags, a.ID)
	return err
}

// Complete writes the terminal fields with a compare-and-set on
// finished_at. Returns false, without writing, when another finalize
// already committed the attempt.
func (r *AttemptRepository) Complete(ctx context.Context, a *model.Attempt) (bool, error) {
	counts, flags, err := attemptJSON(a)
	if err != nil {
		return false, err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = $2, paused_accum_ms = $3, paused_at = NULL,
		     violation_total = $4, violation_counts = $5, flagged = $6, flag_reason = $7,
		     behavior_flags = $8, points_possible = $9, points_earned = $10,
		     score_value = $11, pass_status = $12, updated_at = NOW()
		 WHERE id = $13 AND finished_at IS NULL`,
		a.Status, a.FinishedAt, a.PausedAccumMs,
		a.ViolationTotal, counts, a.Flagged, a.FlagReason,
		flags, a.PointsPossible, a.PointsEarned,
		a.ScoreValue, a.PassStatus, a.ID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// GrantExtraTime adds extension minutes to an unfinished attempt.
func (r *AttemptRepository) GrantExtraTime(ctx context.Context, id uuid.UUID, minutes int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET extra_time_minutes = extra_time_minutes + $1, updated_at = NOW()
		 WHERE id = $2 AND finished_at IS NULL`,
		minutes, id)
	return err
}

// ListBySession retrieves all attempts in a session, flagged first, for
// the proctor overview.
func (r *AttemptRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE session_id = $1
		 ORDER BY flagged DESC, violation_total DESC, student_id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// ListUnfinishedBefore returns in-progress attempts whose session window
// already closed. Used by the reaper to finalize abandoned attempts.
func (r *AttemptRepository) ListUnfinishedBefore(ctx context.Context, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.exam_id, a.session_id, a.student_id, a.status, a.started_at, a.finished_at,
		        a.extra_time_minutes, a.paused_accum_ms, a.paused_at, a.violation_total, a.violation_counts,
		        a.flagged, a.flag_reason, a.behavior_flags, a.points_possible, a.points_earned, a.score_value, a.pass_status
		 FROM attempts a
		 JOIN exam_sessions es ON a.session_id = es.id
		 WHERE a.finished_at IS NULL
		   AND a.status IN ($1, $2)
		   AND es.ends_at < NOW()
		 ORDER BY es.ends_at ASC
		 LIMIT $3`,
		model.AttemptStatusInProgress, model.AttemptStatusPaused, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}
