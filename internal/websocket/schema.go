package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionHeartbeat Action = "heartbeat"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest is sent by the client to submit one answer.
type AnswerRequest struct {
	Action     Action            `json:"action"`
	QuestionID string            `json:"question_id"`
	Choice     string            `json:"choice,omitempty"`
	Choices    []string          `json:"choices,omitempty"`
	Text       string            `json:"text,omitempty"`
	Pairs      map[string]string `json:"pairs,omitempty"`
}

// ViolationRequest is sent by the client to report an integrity event.
type ViolationRequest struct {
	Action Action `json:"action"`
	Type   string `json:"type"`
	Detail string `json:"detail,omitempty"`
}

// SubmitRequest is sent by the client to finish the attempt.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// HeartbeatRequest keeps the connection alive and asks for the timer.
type HeartbeatRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventAnswered  Event = "answered"
	EventViolation Event = "violation_recorded"
	EventFinalized Event = "finalized"
	EventHeartbeat Event = "heartbeat"
)

type AnsweredResponse struct {
	Event      Event  `json:"event"`
	QuestionID string `json:"question_id"`
	Status     string `json:"status"`
}

// ViolationResponse carries the post-event integrity state so the client
// can warn the student before the policy forces a submit.
type ViolationResponse struct {
	Event       Event  `json:"event"`
	Total       int    `json:"total"`
	Flagged     bool   `json:"flagged"`
	FlagReason  string `json:"flag_reason,omitempty"`
	ForceSubmit bool   `json:"force_submit"`
}

type FinalizedResponse struct {
	Event      Event   `json:"event"`
	Status     string  `json:"status"`
	ScoreValue float64 `json:"score_value"`
	PassStatus string  `json:"pass_status"`
}

// HeartbeatResponse returns the authoritative remaining time.
type HeartbeatResponse struct {
	Event       Event `json:"event"`
	RemainingMs int64 `json:"remaining_ms"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
