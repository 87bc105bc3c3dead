package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examguard-backend/internal/config"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/response"
	"github.com/stemsi/examguard-backend/internal/service"
	"github.com/stemsi/examguard-backend/internal/validator"
)

const (
	snapshotInterval  = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler handles the proctor's live oversight surface: the
// session dashboard, per-attempt interventions, and the SSE feed.
type MonitorHandler struct {
	rdb            *redis.Client
	attemptService *service.AttemptService
	examService    *service.ExamService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	rdb *redis.Client,
	attemptService *service.AttemptService,
	examService *service.ExamService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		rdb:            rdb,
		attemptService: attemptService,
		examService:    examService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// SessionSnapshot godoc
// GET /api/v1/proctor/sessions/:session_id/snapshot
func (h *MonitorHandler) SessionSnapshot(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.examService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}

	snapshot, err := h.monitorService.GetSessionSnapshot(c.Request.Context(), sessionID, session.ExamID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, snapshot)
}

// MonitorSessionSSE godoc
// GET /api/v1/proctor/sessions/:session_id/monitor
// Streams the exam's live integrity feed over SSE: an initial snapshot,
// then pub/sub events as the engine emits them, with periodic refreshes.
func (h *MonitorHandler) MonitorSessionSSE(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.examService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, sessionID, session.ExamID)

	channel := config.CacheKey.ExamMonitorChannel(session.ExamID.String())
	pubsub := h.rdb.Subscribe(reqCtx, channel)
	defer pubsub.Close()

	ch := pubsub.Channel()

	refreshTicker := time.NewTicker(snapshotInterval)
	defer refreshTicker.Stop()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("session_id", sessionID.String()).Msg("proctor attached to monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("session_id", sessionID.String()).Msg("proctor detached from monitor SSE")
			return

		case msg := <-ch:
			// Engine events are already JSON; forward them verbatim.
			c.Writer.Write([]byte("data: "))
			c.Writer.Write([]byte(msg.Payload))
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()

		case <-refreshTicker.C:
			h.sendSnapshot(c, sessionID, session.ExamID)

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) sendSnapshot(c *gin.Context, sessionID, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), snapshotTimeout)
	defer cancel()

	snapshot, err := h.monitorService.GetSessionSnapshot(ctx, sessionID, examID)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to build monitor snapshot")
		return
	}

	c.SSEvent("message", map[string]any{
		"type": "snapshot",
		"data": snapshot,
	})
	c.Writer.Flush()
}

// ListViolations godoc
// GET /api/v1/proctor/attempts/:attempt_id/violations
func (h *MonitorHandler) ListViolations(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	events, err := h.monitorService.ListViolationEvents(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	summary, err := h.attemptService.IntegritySummary(c.Request.Context(), id)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"summary": summary,
		"events":  events,
	})
}

// PauseAttempt godoc
// POST /api/v1/proctor/attempts/:attempt_id/pause
func (h *MonitorHandler) PauseAttempt(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	var req model.PauseAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Pause(c.Request.Context(), id)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// ResumeAttempt godoc
// POST /api/v1/proctor/attempts/:attempt_id/resume
func (h *MonitorHandler) ResumeAttempt(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Resume(c.Request.Context(), id)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// ForceSubmitAttempt godoc
// POST /api/v1/proctor/attempts/:attempt_id/force-submit
func (h *MonitorHandler) ForceSubmitAttempt(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.ForceSubmit(c.Request.Context(), id)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GrantExtraTime godoc
// POST /api/v1/proctor/attempts/:attempt_id/extra-time?minutes=10
func (h *MonitorHandler) GrantExtraTime(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	minutes, err := strconv.Atoi(c.Query("minutes"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
		return
	}

	if err := h.attemptService.GrantExtraTime(c.Request.Context(), id, minutes); err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"granted_minutes": minutes})
}

// ClearViolations godoc
// DELETE /api/v1/proctor/attempts/:attempt_id/violations
func (h *MonitorHandler) ClearViolations(c *gin.Context) {
	id, ok := attemptID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.ClearViolations(c.Request.Context(), id)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
