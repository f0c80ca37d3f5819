// Package stopgate decides whether automated workflow reruns may continue.
// Evaluate is pure and is re-run fresh on every request; results are never
// cached because attempt counters move between calls.
package stopgate

import "time"

// Decision is the stop-gate outcome
type Decision string

const (
	DecisionContinue Decision = "CONTINUE"
	DecisionHold     Decision = "HOLD"
	DecisionKill     Decision = "KILL"
)

// Reason codes, one per rule
const (
	ReasonNonRetriable   = "NON_RETRIABLE"
	ReasonMaxAttempts    = "MAX_ATTEMPTS"
	ReasonMaxTotalReruns = "MAX_TOTAL_RERUNS"
	ReasonNoSignalChange = "NO_SIGNAL_CHANGE"
	ReasonCooldownActive = "COOLDOWN_ACTIVE"
	ReasonTimeout        = "TIMEOUT"
)

// Lawbook holds the configured rerun thresholds
type Lawbook struct {
	MaxRerunsPerJob         int           `yaml:"max_reruns_per_job"`
	MaxTotalRerunsPerPR     int           `yaml:"max_total_reruns_per_pr"`
	MaxWaitForGreen         time.Duration `yaml:"max_wait_for_green"`
	Cooldown                time.Duration `yaml:"cooldown"`
	NoSignalChangeThreshold int           `yaml:"no_signal_change_threshold"`
	BlockOnFailureClasses   []string      `yaml:"block_on_failure_classes"`
}

// DefaultLawbook returns the default thresholds
func DefaultLawbook() Lawbook {
	return Lawbook{
		MaxRerunsPerJob:         3,
		MaxTotalRerunsPerPR:     10,
		MaxWaitForGreen:         60 * time.Minute,
		Cooldown:                10 * time.Minute,
		NoSignalChangeThreshold: 2,
		BlockOnFailureClasses:   []string{"compile_error", "auth_failure"},
	}
}

// History is the attempt history the gate evaluates against
type History struct {
	FailureClass   string
	JobAttempts    int
	TotalAttempts  int
	RecentSignals  []string
	FirstFailureAt time.Time
	LastChangeAt   time.Time
}

// RuleResult records one rule evaluation inside a decision trace
type RuleResult struct {
	Rule      string
	Triggered bool
}

// Result is the full stop-gate outcome including the evaluation trace.
// AppliedRules always lists every rule in priority order, not just the
// triggering one, so the audit ledger carries a complete trace.
type Result struct {
	Decision     Decision
	ReasonCode   string
	AppliedRules []RuleResult
	History      History
	Lawbook      Lawbook
	EvaluatedAt  time.Time
}

// signalsUnchanged reports whether the last n failure signals are identical
func signalsUnchanged(signals []string, n int) bool {
	if n <= 0 || len(signals) < n {
		return false
	}
	tail := signals[len(signals)-n:]
	for _, s := range tail[1:] {
		if s != tail[0] {
			return false
		}
	}
	return true
}

// Evaluate runs the rules in fixed priority order; the first triggered
// rule determines the decision, later rules are still recorded as applied.
func Evaluate(h History, lb Lawbook, now time.Time) Result {
	res := Result{
		Decision:    DecisionContinue,
		History:     h,
		Lawbook:     lb,
		EvaluatedAt: now,
	}

	blocked := false
	for _, class := range lb.BlockOnFailureClasses {
		if h.FailureClass == class {
			blocked = true
			break
		}
	}

	rules := []struct {
		name      string
		triggered bool
		decision  Decision
	}{
		{ReasonNonRetriable, blocked, DecisionHold},
		{ReasonMaxAttempts, lb.MaxRerunsPerJob > 0 && h.JobAttempts >= lb.MaxRerunsPerJob, DecisionHold},
		{ReasonMaxTotalReruns, lb.MaxTotalRerunsPerPR > 0 && h.TotalAttempts >= lb.MaxTotalRerunsPerPR, DecisionHold},
		{ReasonNoSignalChange, signalsUnchanged(h.RecentSignals, lb.NoSignalChangeThreshold), DecisionHold},
		{ReasonCooldownActive, !h.LastChangeAt.IsZero() && now.Sub(h.LastChangeAt) < lb.Cooldown, DecisionHold},
		{ReasonTimeout, !h.FirstFailureAt.IsZero() && lb.MaxWaitForGreen > 0 && now.Sub(h.FirstFailureAt) >= lb.MaxWaitForGreen, DecisionKill},
	}

	decided := false
	for _, r := range rules {
		res.AppliedRules = append(res.AppliedRules, RuleResult{Rule: r.name, Triggered: r.triggered})
		if r.triggered && !decided {
			res.Decision = r.decision
			res.ReasonCode = r.name
			decided = true
		}
	}

	return res
}
