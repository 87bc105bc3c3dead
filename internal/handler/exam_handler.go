package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/examguard-backend/internal/middleware"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/response"
	"github.com/stemsi/examguard-backend/internal/service"
	"github.com/stemsi/examguard-backend/internal/validator"
)

// ExamHandler handles proctor-side exam authoring.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

func examID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// CreateExam godoc
// POST /api/v1/proctor/exams
func (h *ExamHandler) CreateExam(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.Create(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		failExamErr(c, err)
		return
	}
	response.Created(c, gin.H{"exam": exam})
}

// ListExams godoc
// GET /api/v1/proctor/exams?page=&per_page=
func (h *ExamHandler) ListExams(c *gin.Context) {
	claims := middleware.GetClaims(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	exams, pagination, err := h.examService.ListByAuthor(c.Request.Context(), claims.UserID, page, perPage)
	if err != nil {
		failExamErr(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// GetExam godoc
// GET /api/v1/proctor/exams/:exam_id
func (h *ExamHandler) GetExam(c *gin.Context) {
	id, ok := examID(c)
	if !ok {
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), id)
	if err != nil {
		failExamErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// AddQuestion godoc
// POST /api/v1/proctor/exams/:exam_id/questions
func (h *ExamHandler) AddQuestion(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := examID(c)
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.examService.AddQuestion(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		failExamErr(c, err)
		return
	}
	response.Created(c, gin.H{"question": question})
}

// PublishExam godoc
// POST /api/v1/proctor/exams/:exam_id/publish
// Warms the Redis payload cache, then flips the exam to PUBLISHED.
func (h *ExamHandler) PublishExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := examID(c)
	if !ok {
		return
	}

	if err := h.examService.Publish(c.Request.Context(), id, claims.UserID); err != nil {
		failExamErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": model.ExamStatusPublished})
}

// CreateSession godoc
// POST /api/v1/proctor/exams/:exam_id/sessions
func (h *ExamHandler) CreateSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	id, ok := examID(c)
	if !ok {
		return
	}

	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.examService.CreateSession(c.Request.Context(), id, claims.UserID, &req)
	if err != nil {
		failExamErr(c, err)
		return
	}
	response.Created(c, gin.H{"session": session})
}

// ListSessions godoc
// GET /api/v1/proctor/exams/:exam_id/sessions
func (h *ExamHandler) ListSessions(c *gin.Context) {
	id, ok := examID(c)
	if !ok {
		return
	}

	sessions, err := h.examService.ListSessions(c.Request.Context(), id)
	if err != nil {
		failExamErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}
