package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/examguard-backend/internal/engine"
	"github.com/stemsi/examguard-backend/internal/response"
	"github.com/stemsi/examguard-backend/internal/service"
)

// failAttemptErr maps engine and attempt-service errors onto the API
// error envelope. Unrecognized errors become a 500.
func failAttemptErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, engine.ErrInvalidState):
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
	case errors.Is(err, engine.ErrConfigurationDisabled):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrConfigDisabled)
	case errors.Is(err, engine.ErrValidation):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
	case errors.Is(err, service.ErrStudentBlocked):
		response.Fail(c, http.StatusForbidden, response.ErrAccountBlocked)
	case errors.Is(err, service.ErrExamNotOpen):
		response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// failExamErr maps exam authoring errors onto the API error envelope.
func failExamErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrNotExamAuthor):
		response.Fail(c, http.StatusForbidden, response.ErrNotExamAuthor)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrExamNotPublished):
		response.Fail(c, http.StatusConflict, response.ErrExamNotPublished)
	case errors.Is(err, engine.ErrValidation):
		response.Fail(c, http.StatusBadRequest, response.ErrValidation)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
