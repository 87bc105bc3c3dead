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

// ResponseWorker consumes persist_responses_queue and upserts scored
// answers into PostgreSQL. The Redis hash serves reads while the attempt
// is open; this worker makes the rows durable.
type ResponseWorker struct {
	responseRepo *repository.ResponseRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewResponseWorker creates a new ResponseWorker.
func NewResponseWorker(responseRepo *repository.ResponseRepository, rdb *redis.Client, log zerolog.Logger) *ResponseWorker {
	return &ResponseWorker{
		responseRepo: responseRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "response_worker").Logger(),
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *ResponseWorker) Start(ctx context.Context) {
	w.log.Info().Msg("response worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("response worker stopping")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("response worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ResponseWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.PersistResponsesQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var resp model.Response
	if err := json.Unmarshal([]byte(result[1]), &resp); err != nil {
		w.log.Error().Err(err).Msg("discarding malformed response payload")
		return
	}

	if err := w.responseRepo.Upsert(ctx, &resp); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", resp.AttemptID.String()).
			Str("question_id", resp.QuestionID.String()).
			Msg("persist error, retrying in 5s")
		// Push back to the queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistResponsesQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

// drain processes all remaining items in the queue before shutdown.
func (w *ResponseWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistResponsesQueue).Result()
		if err != nil {
			break
		}

		var resp model.Response
		if err := json.Unmarshal([]byte(result), &resp); err != nil {
			w.log.Error().Err(err).Msg("drain unmarshal error")
			continue
		}

		if err := w.responseRepo.Upsert(ctx, &resp); err != nil {
			w.log.Error().Err(err).Msg("drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistResponsesQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("drained remaining responses")
	}
}
