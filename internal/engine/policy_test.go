package engine

import (
	"testing"

	"github.com/stemsi/examguard-backend/internal/model"
)

func TestEvaluatePolicy(t *testing.T) {
	base := PolicyInput{WarningThreshold: 3, MaxViolations: 5, AutoSubmitOnMax: true}

	tests := []struct {
		name string
		in   PolicyInput
		want PolicyDecision
	}{
		{
			name: "below warning does nothing",
			in:   withTotal(base, 2),
			want: PolicyDecision{},
		},
		{
			name: "warning threshold flags",
			in:   withTotal(base, 3),
			want: PolicyDecision{Flag: true, FlagReason: "exceeded warning threshold (3 violations)"},
		},
		{
			name: "already flagged does not re-flag at warning level",
			in: func() PolicyInput {
				in := withTotal(base, 4)
				in.AlreadyFlagged = true
				in.CurrentFlagReason = "exceeded warning threshold (3 violations)"
				return in
			}(),
			want: PolicyDecision{},
		},
		{
			name: "max escalates reason and forces submit",
			in: func() PolicyInput {
				in := withTotal(base, 5)
				in.AlreadyFlagged = true
				in.CurrentFlagReason = "exceeded warning threshold (3 violations)"
				return in
			}(),
			want: PolicyDecision{Flag: true, FlagReason: "exceeded maximum (5/5)", ForceSubmit: true},
		},
		{
			name: "max without auto submit only escalates",
			in: func() PolicyInput {
				in := withTotal(base, 5)
				in.AutoSubmitOnMax = false
				return in
			}(),
			want: PolicyDecision{Flag: true, FlagReason: "exceeded maximum (5/5)"},
		},
		{
			name: "auto block fires at global threshold",
			in: func() PolicyInput {
				in := withTotal(base, 3)
				in.AutoBlockThreshold = 3
				return in
			}(),
			want: PolicyDecision{
				Flag:        true,
				FlagReason:  "exceeded warning threshold (3 violations)",
				Block:       true,
				BlockReason: "auto-blocked: 3 violations (threshold 3)",
			},
		},
		{
			name: "already blocked never re-blocks",
			in: func() PolicyInput {
				in := withTotal(base, 4)
				in.AutoBlockThreshold = 3
				in.AlreadyFlagged = true
				in.CurrentFlagReason = "exceeded warning threshold (3 violations)"
				in.AlreadyBlocked = true
				return in
			}(),
			want: PolicyDecision{},
		},
		{
			name: "zero threshold disables auto block",
			in: func() PolicyInput {
				in := withTotal(base, 100)
				in.AutoBlockThreshold = 0
				in.AlreadyFlagged = true
				in.CurrentFlagReason = "exceeded maximum (100/5)"
				return in
			}(),
			want: PolicyDecision{ForceSubmit: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvaluatePolicy(tt.in); got != tt.want {
				t.Errorf("EvaluatePolicy() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func withTotal(in PolicyInput, total int) PolicyInput {
	in.Total = total
	return in
}

func TestLedgerCounterSumInvariant(t *testing.T) {
	a := &model.Attempt{}
	ledger := NewLedger(a)

	appends := []model.ViolationType{
		model.ViolationTabSwitch,
		model.ViolationTabSwitch,
		model.ViolationCopyPaste,
		model.ViolationDevTools,
		model.ViolationTabSwitch,
		model.ViolationWindowBlur,
		model.ViolationCopyPaste,
	}
	for _, vt := range appends {
		ledger.Append(vt)
	}

	if a.ViolationTotal != len(appends) {
		t.Errorf("total = %d, want %d", a.ViolationTotal, len(appends))
	}
	if got := a.ViolationCounts.Sum(); got != a.ViolationTotal {
		t.Errorf("per-type sum %d != total %d", got, a.ViolationTotal)
	}
	if a.ViolationCounts[model.ViolationTabSwitch] != 3 {
		t.Errorf("tab switch count = %d, want 3", a.ViolationCounts[model.ViolationTabSwitch])
	}

	ledger.Reset()
	if a.ViolationTotal != 0 || a.ViolationCounts.Sum() != 0 {
		t.Errorf("reset left counters behind: total=%d sum=%d", a.ViolationTotal, a.ViolationCounts.Sum())
	}
}
