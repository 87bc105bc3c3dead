package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examguard-backend/internal/response"
	"github.com/stemsi/examguard-backend/internal/service"
)

// StudentManagementHandler handles proctor-side student account actions.
type StudentManagementHandler struct {
	studentService *service.StudentService
}

// NewStudentManagementHandler creates a new StudentManagementHandler.
func NewStudentManagementHandler(studentService *service.StudentService) *StudentManagementHandler {
	return &StudentManagementHandler{studentService: studentService}
}

// ListStudents godoc
// GET /api/v1/proctor/students?page=&per_page=&blocked=
func (h *StudentManagementHandler) ListStudents(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	var blocked *bool
	if raw := c.Query("blocked"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			response.Fail(c, http.StatusBadRequest, response.ErrValidation)
			return
		}
		blocked = &b
	}

	students, pagination, err := h.studentService.List(c.Request.Context(), blocked, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"students": students}, pagination)
}

func studentIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("student_id"))
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}

// UnblockStudent godoc
// POST /api/v1/proctor/students/:student_id/unblock
func (h *StudentManagementHandler) UnblockStudent(c *gin.Context) {
	id, ok := studentIDParam(c)
	if !ok {
		return
	}

	if err := h.studentService.Unblock(c.Request.Context(), id); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// ResetStudentSession godoc
// POST /api/v1/proctor/students/:student_id/reset-session
// Kicks the student's active device so they can log in again.
func (h *StudentManagementHandler) ResetStudentSession(c *gin.Context) {
	id, ok := studentIDParam(c)
	if !ok {
		return
	}

	if err := h.studentService.ResetSession(c.Request.Context(), id); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}
