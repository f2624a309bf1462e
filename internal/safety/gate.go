// Package safety holds the crisis pre-check, the blocking evaluation gate run
// on accepted narratives, and the background deep evaluation.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/randomtoy/tarot-reading/internal/domain"
	"github.com/randomtoy/tarot-reading/internal/ports"
)

const (
	minSafetyScore = 3
	minToneScore   = 2
)

// FailureMode decides what happens when the evaluator itself fails.
type FailureMode string

const (
	FailOpen   FailureMode = "fail-open"
	FailClosed FailureMode = "fail-closed"
)

// ParseFailureMode accepts "fail-open" and "fail-closed"; empty picks the
// environment default (closed in production).
func ParseFailureMode(s string, production bool) (FailureMode, error) {
	switch FailureMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		if production {
			return FailClosed, nil
		}
		return FailOpen, nil
	case FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	default:
		return "", fmt.Errorf("invalid evaluation failure mode %q", s)
	}
}

// Block reasons.
const (
	ReasonSafetyFlag            = "safety_flag"
	ReasonLowSafety             = "low_safety_score"
	ReasonLowTone               = "low_tone_score"
	ReasonEvaluationUnavailable = "evaluation_unavailable"
)

// Decision is the outcome of the synchronous gate.
type Decision struct {
	Evaluation domain.Evaluation
	Blocked    bool
	Reason     string
}

// Gate is the fast blocking check run once on the accepted narrative.
type Gate struct {
	evaluator ports.Evaluator
	mode      FailureMode
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGate builds a gate. A nil evaluator selects the heuristic scorer.
func NewGate(evaluator ports.Evaluator, mode FailureMode, timeout time.Duration, logger *slog.Logger) *Gate {
	return &Gate{evaluator: evaluator, mode: mode, timeout: timeout, logger: logger}
}

// Check scores the narrative and decides whether it may ship.
func (g *Gate) Check(ctx context.Context, in ports.EvalInput) Decision {
	if g.evaluator == nil {
		return Decide(Heuristic(in))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	ev, err := g.evaluator.Evaluate(ctx, in)
	if err != nil {
		g.logger.WarnContext(ctx, "sync evaluation failed", "mode", g.mode, "error", err)
		ev = domain.Evaluation{Mode: domain.EvalModeError, Notes: err.Error()}
		if g.mode == FailClosed {
			return Decision{Evaluation: ev, Blocked: true, Reason: ReasonEvaluationUnavailable}
		}
		return Decision{Evaluation: ev}
	}
	return Decide(ev)
}

// Decide applies the pass rule to a scored evaluation: no safety flag, safety
// of at least 3 and tone of at least 2. The returned evaluation has Passed set
// to match.
func Decide(ev domain.Evaluation) Decision {
	reason := ""
	switch {
	case ev.SafetyFlag:
		reason = ReasonSafetyFlag
	case ev.Scores.Safety < minSafetyScore:
		reason = ReasonLowSafety
	case ev.Scores.Tone < minToneScore:
		reason = ReasonLowTone
	}
	ev.Passed = reason == ""
	return Decision{Evaluation: ev, Blocked: reason != "", Reason: reason}
}

// SafeFallbackNarrative is shipped in place of a blocked narrative. It names
// each drawn card without interpretation beyond gentle reflection prompts.
func SafeFallbackNarrative(req domain.ReadingRequest) string {
	var b strings.Builder
	b.WriteString("Here is a gentle reflection on the cards you drew.\n\n")
	for _, c := range req.Cards {
		fmt.Fprintf(&b, "**%s: %s (%s)**\n", c.Position, c.Name, c.Orientation)
		fmt.Fprintf(&b, "%s sits in the %s position. Take a quiet moment to notice what this card brings up for you, "+
			"and which part of your question it seems to speak to.\n\n", c.Name, strings.ToLower(c.Position))
	}
	b.WriteString("Tarot is a tool for reflection, not a prediction or professional advice. " +
		"Trust your own judgement and reach out to people you trust for support.")
	return b.String()
}
