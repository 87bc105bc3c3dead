package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examguard-backend/internal/config"
	"github.com/stemsi/examguard-backend/internal/engine"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/repository"
)

// engineStore implements engine.AttemptStore over the repositories and the
// Redis fast lane. Attempt rows go straight to PostgreSQL; responses are
// written to a Redis hash and queued for asynchronous persistence;
// violation events are queued for the bulk-insert worker.
type engineStore struct {
	attemptRepo   *repository.AttemptRepository
	examRepo      *repository.ExamRepository
	sessionRepo   *repository.ExamSessionRepository
	questionRepo  *repository.QuestionRepository
	responseRepo  *repository.ResponseRepository
	violationRepo *repository.ViolationRepository
	rdb           *redis.Client
	log           zerolog.Logger
}

// responseHashTTL keeps a finished attempt's answer hash around long
// enough for late state-restore calls before Redis reclaims it.
const responseHashTTL = 2 * time.Hour

func notFoundOr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.ErrNotFound
	}
	return err
}

func (s *engineStore) GetAttempt(ctx context.Context, attemptID uuid.UUID) (*model.Attempt, error) {
	a, err := s.attemptRepo.GetByID(ctx, attemptID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return a, nil
}

func (s *engineStore) SaveAttempt(ctx context.Context, a *model.Attempt) error {
	return s.attemptRepo.Save(ctx, a)
}

func (s *engineStore) CompleteAttempt(ctx context.Context, a *model.Attempt) (bool, error) {
	applied, err := s.attemptRepo.Complete(ctx, a)
	if err != nil {
		return false, err
	}
	if applied {
		// The hash stays readable for result views but no longer needs
		// to live forever.
		key := config.CacheKey.AttemptResponsesKey(a.ID.String())
		if err := s.rdb.Expire(ctx, key, responseHashTTL).Err(); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", a.ID.String()).Msg("failed to expire response hash")
		}
	}
	return applied, nil
}

func (s *engineStore) GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	e, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return e, nil
}

func (s *engineStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return sess, nil
}

func (s *engineStore) GetQuestion(ctx context.Context, questionID uuid.UUID) (*model.Question, error) {
	q, err := s.questionRepo.GetByID(ctx, questionID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return q, nil
}

func (s *engineStore) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.questionRepo.ListByExam(ctx, examID)
}

// SaveResponse writes the scored answer to the attempt's Redis hash and
// queues it for the persistence worker. The hash is the authoritative
// answer set while the attempt is open; PostgreSQL catches up through the
// queue.
func (s *engineStore) SaveResponse(ctx context.Context, r *model.Response) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	key := config.CacheKey.AttemptResponsesKey(r.AttemptID.String())
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, r.QuestionID.String(), data)
	pipe.RPush(ctx, config.WorkerKey.PersistResponsesQueue, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache response: %w", err)
	}
	return nil
}

// ListResponses reads the Redis hash first and falls back to PostgreSQL
// when the hash is gone (eviction, restart after TTL).
func (s *engineStore) ListResponses(ctx context.Context, attemptID uuid.UUID) ([]model.Response, error) {
	key := config.CacheKey.AttemptResponsesKey(attemptID.String())
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("redis read failed, falling back to postgres")
		return s.responseRepo.ListByAttempt(ctx, attemptID)
	}
	if len(fields) == 0 {
		return s.responseRepo.ListByAttempt(ctx, attemptID)
	}

	responses := make([]model.Response, 0, len(fields))
	for _, raw := range fields {
		var r model.Response
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("unmarshal cached response: %w", err)
		}
		responses = append(responses, r)
	}
	return responses, nil
}

// AppendViolation queues the event for the bulk-insert worker. The
// attempt row's counters, saved by the coordinator, remain the source of
// truth for policy decisions; the event table is the audit trail.
func (s *engineStore) AppendViolation(ctx context.Context, ev *model.ViolationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	return s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err()
}

func (s *engineStore) ClearViolations(ctx context.Context, attemptID uuid.UUID) error {
	return s.violationRepo.DeleteByAttempt(ctx, attemptID)
}

// monitorNotifier publishes engine events to the exam's Redis pub/sub
// channel, where the proctor WebSocket fan-out picks them up.
// Fire-and-forget: failures are logged, never returned.
type monitorNotifier struct {
	rdb *redis.Client
	log zerolog.Logger
}

// MonitorEvent is the wire shape of one entry on the monitor channel.
type MonitorEvent struct {
	Kind      string          `json:"kind"`
	AttemptID uuid.UUID       `json:"attempt_id"`
	StudentID int             `json:"student_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func (n *monitorNotifier) publish(ctx context.Context, examID uuid.UUID, ev MonitorEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.log.Error().Err(err).Msg("marshal monitor event")
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(examID.String())
	if err := n.rdb.Publish(ctx, channel, data).Err(); err != nil {
		n.log.Warn().Err(err).Str("channel", channel).Msg("monitor publish failed")
	}
}

func (n *monitorNotifier) ViolationRecorded(ctx context.Context, a *model.Attempt, ev *model.ViolationEvent, d engine.PolicyDecision) {
	payload, _ := json.Marshal(map[string]any{
		"type":         ev.Type,
		"total":        a.ViolationTotal,
		"flagged":      a.Flagged,
		"flag_reason":  a.FlagReason,
		"force_submit": d.ForceSubmit,
		"blocked":      d.Block,
	})
	n.publish(ctx, a.ExamID, MonitorEvent{
		Kind:      "violation",
		AttemptID: a.ID,
		StudentID: a.StudentID,
		Payload:   payload,
	})
}

func (n *monitorNotifier) AttemptFinalized(ctx context.Context, a *model.Attempt, trigger engine.FinalizeTrigger) {
	payload, _ := json.Marshal(map[string]any{
		"trigger": trigger,
		"status":  a.Status,
		"score":   a.ScoreValue,
	})
	n.publish(ctx, a.ExamID, MonitorEvent{
		Kind:      "finalized",
		AttemptID: a.ID,
		StudentID: a.StudentID,
		Payload:   payload,
	})
}

// studentBlocker adapts the student repository to engine.AccountBlocker.
// Blocking also revokes the student's login session so the active device
// is kicked on its next authenticated call.
type studentBlocker struct {
	studentRepo *repository.StudentRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

func (b *studentBlocker) IsBlocked(ctx context.Context, studentID int) (bool, error) {
	return b.studentRepo.IsBlocked(ctx, studentID)
}

func (b *studentBlocker) Block(ctx context.Context, studentID int, reason string) error {
	if err := b.studentRepo.Block(ctx, studentID, reason); err != nil {
		return err
	}
	if err := b.rdb.Del(ctx, config.CacheKey.StudentSessionKey(studentID)).Err(); err != nil {
		b.log.Warn().Err(err).Int("student_id", studentID).Msg("failed to revoke session of blocked student")
	}
	return nil
}

// settingsSource reads the global auto-block threshold from app_settings,
// with a short-lived in-memory cache so every violation does not hit the
// settings table. Falls back to the env default when the table has no row.
type settingsSource struct {
	settingRepo *repository.SettingRepository
	fallback    int
	log         zerolog.Logger

	mu       sync.Mutex
	cached   int
	cachedAt time.Time
}

const settingsCacheTTL = 30 * time.Second

func (s *settingsSource) AutoBlockThreshold(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Since(s.cachedAt) < settingsCacheTTL {
		return s.cached
	}

	threshold := s.fallback
	setting, err := s.settingRepo.GetByKey(ctx, model.SettingAutoBlockThreshold)
	switch {
	case err == nil:
		n, convErr := strconv.Atoi(setting.Value)
		if convErr != nil {
			s.log.Warn().Str("value", setting.Value).Msg("invalid auto_block_threshold setting, using default")
		} else {
			threshold = n
		}
	case errors.Is(err, pgx.ErrNoRows):
		// No override configured.
	default:
		s.log.Warn().Err(err).Msg("failed to read auto_block_threshold, using last known value")
		return s.cached
	}

	s.cached = threshold
	s.cachedAt = time.Now()
	return threshold
}
