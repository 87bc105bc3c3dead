package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ViolationType is the closed set of client-reported anti-cheat signals.
// Policy thresholds and labels key off this enumeration, so new types must
// be added here and nowhere else.
type ViolationType string

const (
	ViolationTabSwitch        ViolationType = "TAB_SWITCH"
	ViolationCopyPaste        ViolationType = "COPY_PASTE"
	ViolationDevTools         ViolationType = "DEVTOOLS"
	ViolationWindowBlur       ViolationType = "WINDOW_BLUR"
	ViolationRemoteDesktop    ViolationType = "REMOTE_DESKTOP"
	ViolationVirtualMachine   ViolationType = "VIRTUAL_MACHINE"
	ViolationMultipleMonitors ViolationType = "MULTIPLE_MONITORS"
	ViolationMultipleFaces    ViolationType = "MULTIPLE_FACES"
	ViolationNoFace           ViolationType = "NO_FACE"
	ViolationSuspiciousAudio  ViolationType = "SUSPICIOUS_AUDIO"
)

// AllViolationTypes lists every known type, in a stable order.
var AllViolationTypes = []ViolationType{
	ViolationTabSwitch,
	ViolationCopyPaste,
	ViolationDevTools,
	ViolationWindowBlur,
	ViolationRemoteDesktop,
	ViolationVirtualMachine,
	ViolationMultipleMonitors,
	ViolationMultipleFaces,
	ViolationNoFace,
	ViolationSuspiciousAudio,
}

// ParseViolationType validates a raw client-supplied type string.
func ParseViolationType(raw string) (ViolationType, error) {
	t := ViolationType(raw)
	for _, known := range AllViolationTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown violation type: %q", raw)
}

// ViolationEvent is an immutable record of one reported violation.
// Events are append-only; they are never updated, only superseded by an
// administrative ledger reset.
type ViolationEvent struct {
	ID         uuid.UUID       `json:"id"`
	AttemptID  uuid.UUID       `json:"attempt_id"`
	ExamID     uuid.UUID       `json:"exam_id"`
	StudentID  int             `json:"student_id"`
	Type       ViolationType   `json:"type"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// ViolationCounts is the per-type counter map kept on the attempt.
type ViolationCounts map[ViolationType]int

// Increment bumps the counter for a type, allocating the map on first use.
func (c *ViolationCounts) Increment(t ViolationType) {
	if *c == nil {
		*c = make(ViolationCounts)
	}
	(*c)[t]++
}

// Sum returns the total across all per-type counters.
func (c ViolationCounts) Sum() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
