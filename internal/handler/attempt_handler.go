package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/examguard-backend/internal/middleware"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/response"
	"github.com/stemsi/examguard-backend/internal/service"
	"github.com/stemsi/examguard-backend/internal/validator"
)

// AttemptHandler handles the student-facing attempt lifecycle.
type AttemptHandler struct {
	attemptService *service.AttemptService
	examService    *service.ExamService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, examService *service.ExamService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService, examService: examService}
}

func attemptID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// Enroll godoc
// POST /api/v1/student/sessions/:session_id/attempts
// Creates (or returns) the student's attempt for the session.
func (h *AttemptHandler) Enroll(c *gin.Context) {
	claims := middleware.GetClaims(c)
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attemptService.Enroll(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Created(c, gin.H{"attempt": attempt})
}

// GetAttempt godoc
// GET /api/v1/student/attempts/:attempt_id
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := attemptID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Start godoc
// POST /api/v1/student/attempts/:attempt_id/start
func (h *AttemptHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := attemptID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetExamPayload godoc
// GET /api/v1/student/attempts/:attempt_id/exam
// Returns the student-facing exam content (no answer keys).
func (h *AttemptHandler) GetExamPayload(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := attemptID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}

	payload, err := h.examService.GetExamPayload(c.Request.Context(), attempt.ExamID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": payload})
}

// SubmitAnswer godoc
// POST /api/v1/student/attempts/:attempt_id/answers
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := attemptID(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attemptService.SubmitAnswer(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"question_id":  res.QuestionID,
		"submitted_at": res.SubmittedAt,
	})
}

// ListResponses godoc
// GET /api/v1/student/attempts/:attempt_id/answers
// Returns the saved answers for state restore after a reconnect.
func (h *AttemptHandler) ListResponses(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := attemptID(c)
	if !ok {
		return
	}

	responses, err := h.attemptService.ListResponses(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}

	// Verdicts and points stay server-side while the exam runs.
	saved := make([]gin.H, 0, len(responses))
	for _, r := range responses {
		saved = append(saved, gin.H{
			"question_id":  r.QuestionID,
			"value":        r.Value,
			"submitted_at": r.SubmittedAt,
		})
	}
	response.Success(c, http.StatusOK, gin.H{"answers": saved})
}

// RecordViolation godoc
// POST /api/v1/student/attempts/:attempt_id/violations
func (h *AttemptHandler) RecordViolation(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := attemptID(c)
	if !ok {
		return
	}

	var req model.RecordViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.RecordViolation(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"violation_total": attempt.ViolationTotal,
		"flagged":         attempt.Flagged,
		"flag_reason":     attempt.FlagReason,
		"status":          attempt.Status,
	})
}

// Submit godoc
// POST /api/v1/student/attempts/:attempt_id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := attemptID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// RemainingTime godoc
// GET /api/v1/student/attempts/:attempt_id/time
func (h *AttemptHandler) RemainingTime(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := attemptID(c)
	if !ok {
		return
	}

	ms, err := h.attemptService.RemainingTime(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"remaining_ms": ms})
}

// NextQuestion godoc
// GET /api/v1/student/attempts/:attempt_id/next-question
// Adaptive mode only. A null question means the pool is exhausted.
func (h *AttemptHandler) NextQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := attemptID(c)
	if !ok {
		return
	}

	q, err := h.attemptService.NextQuestion(c.Request.Context(), id, claims.UserID)
	if err != nil {
		failAttemptErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": q})
}
