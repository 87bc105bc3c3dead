package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/examguard-backend/internal/engine"
	"github.com/stemsi/examguard-backend/internal/middleware"
	"github.com/stemsi/examguard-backend/internal/model"
	"github.com/stemsi/examguard-backend/internal/service"
	ws "github.com/stemsi/examguard-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the student's real-time attempt stream.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/student/attempts/:attempt_id/stream
// Upgrades to WebSocket for real-time answering, violation reporting, and
// the authoritative timer.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	// Ownership check before upgrading; foreign attempts read as not found.
	if _, err := h.attemptService.GetAttempt(c.Request.Context(), attemptID, claims.UserID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	studentID := claims.UserID

	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("student connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("unexpected close")
			} else {
				wsLog.Debug().Msg("connection closed")
			}
			return
		}

		var envelope ws.RequestEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			ws.WriteError(conn, "malformed message")
			continue
		}

		ctx := context.Background()
		switch envelope.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, conn, wsLog, raw, attemptID, studentID)
		case ws.ActionViolation:
			h.handleViolation(ctx, conn, wsLog, raw, attemptID, studentID)
		case ws.ActionSubmit:
			h.handleSubmit(ctx, conn, wsLog, attemptID, studentID)
		case ws.ActionHeartbeat:
			h.handleHeartbeat(ctx, conn, attemptID, studentID)
		default:
			wsLog.Warn().Str("action", string(envelope.Action)).Msg("unknown action")
			ws.WriteError(conn, "unknown action: "+string(envelope.Action))
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, raw []byte, attemptID uuid.UUID, studentID int) {
	var msg ws.AnswerRequest
	if err := json.Unmarshal(raw, &msg); err != nil || msg.QuestionID == "" {
		ws.WriteError(conn, "question_id is required")
		return
	}

	req := &model.SubmitAnswerRequest{
		QuestionID: msg.QuestionID,
		Value: model.SubmittedValue{
			Choice:  msg.Choice,
			Choices: msg.Choices,
			Text:    msg.Text,
			Pairs:   msg.Pairs,
		},
	}

	if _, err := h.attemptService.SubmitAnswer(ctx, attemptID, studentID, req); err != nil {
		h.writeEngineError(conn, wsLog, err, "answer rejected")
		return
	}

	ws.WriteTyped(conn, ws.AnsweredResponse{
		Event:      ws.EventAnswered,
		QuestionID: msg.QuestionID,
		Status:     "saved",
	})
}

func (h *WSHandler) handleViolation(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, raw []byte, attemptID uuid.UUID, studentID int) {
	var msg ws.ViolationRequest
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		ws.WriteError(conn, "type is required")
		return
	}

	req := &model.RecordViolationRequest{Type: msg.Type, Metadata: msg.Detail}
	attempt, err := h.attemptService.RecordViolation(ctx, attemptID, studentID, req)
	if err != nil {
		h.writeEngineError(conn, wsLog, err, "violation rejected")
		return
	}

	ws.WriteTyped(conn, ws.ViolationResponse{
		Event:       ws.EventViolation,
		Total:       attempt.ViolationTotal,
		Flagged:     attempt.Flagged,
		FlagReason:  attempt.FlagReason,
		ForceSubmit: attempt.Status.Terminal(),
	})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, attemptID uuid.UUID, studentID int) {
	attempt, err := h.attemptService.Submit(ctx, attemptID, studentID)
	if err != nil {
		h.writeEngineError(conn, wsLog, err, "submit failed")
		return
	}

	wsLog.Info().
		Float64("score", attempt.ScoreValue).
		Str("status", string(attempt.Status)).
		Msg("attempt submitted over websocket")

	ws.WriteTyped(conn, ws.FinalizedResponse{
		Event:      ws.EventFinalized,
		Status:     string(attempt.Status),
		ScoreValue: attempt.ScoreValue,
		PassStatus: string(attempt.PassStatus),
	})
}

func (h *WSHandler) handleHeartbeat(ctx context.Context, conn *websocket.Conn, attemptID uuid.UUID, studentID int) {
	ms, err := h.attemptService.RemainingTime(ctx, attemptID, studentID)
	if err != nil {
		// Expiry finalizes server-side; the client learns through zero.
		ms = 0
	}
	ws.WriteTyped(conn, ws.HeartbeatResponse{Event: ws.EventHeartbeat, RemainingMs: ms})
}

// writeEngineError translates engine errors into short client-facing strings.
func (h *WSHandler) writeEngineError(conn *websocket.Conn, wsLog zerolog.Logger, err error, fallback string) {
	switch {
	case errors.Is(err, engine.ErrInvalidState):
		ws.WriteError(conn, "attempt is not accepting this action")
	case errors.Is(err, engine.ErrValidation):
		ws.WriteError(conn, "invalid payload")
	case errors.Is(err, engine.ErrNotFound):
		ws.WriteError(conn, "not found")
	case errors.Is(err, engine.ErrConfigurationDisabled):
		ws.WriteError(conn, "feature disabled")
	default:
		wsLog.Error().Err(err).Msg(fallback)
		ws.WriteError(conn, fallback)
	}
}
