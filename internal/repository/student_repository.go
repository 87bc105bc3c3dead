package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examguard-backend/internal/model"
)

var ErrDuplicateNISN = errors.New("student with this NISN already exists")

// StudentRepository handles student data access.
type StudentRepository struct {
	pool *pgxpool.Pool
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(pool *pgxpool.Pool) *StudentRepository {
	return &StudentRepository{pool: pool}
}

// GetByID retrieves a student by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id int) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, nisn, name, password_hash, blocked, block_reason, blocked_at, created_at, updated_at
		 FROM students WHERE id = $1`, id,
	).Scan(&s.ID, &s.NISN, &s.Name, &s.PasswordHash, &s.Blocked, &s.BlockReason, &s.BlockedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetByNISN retrieves a student by their unique NISN.
func (r *StudentRepository) GetByNISN(ctx context.Context, nisn string) (*model.Student, error) {
	s := &model.Student{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, nisn, name, password_hash, blocked, block_reason, blocked_at, created_at, updated_at
		 FROM students WHERE nisn = $1`, nisn,
	).Scan(&s.ID, &s.NISN, &s.Name, &s.PasswordHash, &s.Blocked, &s.BlockReason, &s.BlockedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, s *model.Student) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO students (nisn, name, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		s.NISN, s.Name, s.PasswordHash,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateNISN
		}
		return err
	}
	return nil
}

// IsBlocked reads only the block bit of a student.
func (r *StudentRepository) IsBlocked(ctx context.Context, id int) (bool, error) {
	var blocked bool
	err := r.pool.QueryRow(ctx, `SELECT blocked FROM students WHERE id = $1`, id).Scan(&blocked)
	return blocked, err
}

// Block marks a student's account as blocked. Blocking an already-blocked
// student keeps the original reason and timestamp.
func (r *StudentRepository) Block(ctx context.Context, id int, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE students
		 SET blocked = TRUE, block_reason = $1, blocked_at = NOW(), updated_at = NOW()
		 WHERE id = $2 AND blocked = FALSE`,
		reason, id)
	return err
}

// Unblock clears a student's blocked state.
func (r *StudentRepository) Unblock(ctx context.Context, id int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE students
		 SET blocked = FALSE, block_reason = '', blocked_at = NULL, updated_at = NOW()
		 WHERE id = $1`, id)
	return err
}

// ListPaginated retrieves students with pagination and optional blocked filter.
func (r *StudentRepository) ListPaginated(ctx context.Context, blocked *bool, limit, offset int) ([]model.Student, int, error) {
	countQuery := `SELECT COUNT(*) FROM students`
	var countArgs []any
	if blocked != nil {
		countQuery += ` WHERE blocked = $1`
		countArgs = append(countArgs, *blocked)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, nisn, name, password_hash, blocked, block_reason, blocked_at, created_at, updated_at FROM students`
	var args []any
	argIdx := 1
	if blocked != nil {
		query += ` WHERE blocked = $1`
		args = append(args, *blocked)
		argIdx++
	}
	query += ` ORDER BY name LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.NISN, &s.Name, &s.PasswordHash, &s.Blocked, &s.BlockReason, &s.BlockedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		students = append(students, s)
	}
	return students, total, rows.Err()
}

// UpdatePassword updates a student's password hash.
func (r *StudentRepository) UpdatePassword(ctx context.Context, id int, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE students SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		passwordHash, id,
	)
	return err
}
