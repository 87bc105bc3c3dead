package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examguard-backend/internal/config"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/repository"
)

const (
	batchSize    = 50
	batchTimeout = 2 * time.Second
	pollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker consumes persist_violations_queue and bulk-inserts the
// audit trail into violation_events. The attempt row's counters, written
// synchronously by the coordinator, stay authoritative for policy; this
// worker only lags the evidence table.
type ViolationWorker struct {
	violationRepo *repository.ViolationRepository
	rdb           *redis.Client
	log           zerolog.Logger
}

// NewViolationWorker creates a new ViolationWorker.
func NewViolationWorker(violationRepo *repository.ViolationRepository, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		violationRepo: violationRepo,
		rdb:           rdb,
		log:           log.With().Str("component", "violation_worker").Logger(),
	}
}

// Start begins the batching loop. Call in a goroutine.
func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("violation worker started")

	buffer := make([]model.ViolationEvent, 0, batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= batchSize || time.Since(lastFlush) >= batchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlush = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, pollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var ev model.ViolationEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// Malformed JSON can never succeed on retry. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("discarding malformed violation event")
			continue
		}

		buffer = append(buffer, ev)
	}
}

// flushSafe attempts bulk insert, then row-by-row recovery, then requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []model.ViolationEvent) {
	if _, err := w.violationRepo.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []model.ViolationEvent) {
	requeueList := make([]model.ViolationEvent, 0)

	for i := range batch {
		ev := batch[i]
		if err := w.violationRepo.Insert(ctx, &ev); err != nil {
			w.log.Error().Err(err).Str("attempt_id", ev.AttemptID.String()).Msg("insert failed, requeueing")
			requeueList = append(requeueList, ev)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, items []model.ViolationEvent) {
	pipe := w.rdb.Pipeline()
	for i := range items {
		data, _ := json.Marshal(items[i])
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: failed to requeue violation events, data loss occurred")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("requeued failed violation events")
	// Avoid thrashing while the database is down.
	time.Sleep(2 * time.Second)
}

func (w *ViolationWorker) shutdown(buffer []model.ViolationEvent) {
	w.log.Info().Msg("violation worker stopping, flushing remaining buffer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
