package domain

import "time"

// SpineMetrics counts detected narrative sections.
type SpineMetrics struct {
	TotalSections    int `json:"totalSections"`
	CompleteSections int `json:"completeSections"`
}

// QualityMetrics is the measurable part of a quality gate run.
type QualityMetrics struct {
	CardCoverage      float64      `json:"cardCoverage"`
	MissingCards      []string     `json:"missingCards"`
	HallucinatedCards []string     `json:"hallucinatedCards"`
	Spine             SpineMetrics `json:"spine"`
}

// QualityResult is the outcome of the deterministic quality gate. Issues are
// for logs and error payloads only.
type QualityResult struct {
	Passed  bool           `json:"passed"`
	Issues  []string       `json:"issues"`
	Metrics QualityMetrics `json:"metrics"`
}

// AttemptReason classifies why a backend attempt was not accepted.
type AttemptReason string

const (
	ReasonAccepted       AttemptReason = "accepted"
	ReasonTransportError AttemptReason = "transport_error"
	ReasonEmptyOutput    AttemptReason = "empty_output"
	ReasonQualityGate    AttemptReason = "quality_gate"
	ReasonCanceled       AttemptReason = "canceled"
)

// TokenUsage reports token consumption of a generation call.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// PromptsUsed captures the prompts sent to a backend.
type PromptsUsed struct {
	System string `json:"system,omitempty"`
	User   string `json:"user,omitempty"`
}

// BackendAttempt records one try against one backend.
type BackendAttempt struct {
	Backend   string         `json:"backend"`
	Model     string         `json:"model,omitempty"`
	Text      string         `json:"-" bson:"-"`
	Prompts   PromptsUsed    `json:"-" bson:"-"`
	Usage     TokenUsage     `json:"usage"`
	Quality   *QualityResult `json:"quality,omitempty"`
	Reason    AttemptReason  `json:"reason"`
	Error     string         `json:"error,omitempty"`
	LatencyMS int64          `json:"latencyMs"`
}

// EvaluationMode tells how an evaluation was produced.
type EvaluationMode string

const (
	EvalModeModel     EvaluationMode = "model"
	EvalModeHeuristic EvaluationMode = "heuristic"
	EvalModeError     EvaluationMode = "error"
)

// EvaluationScores are 1-5 ratings.
type EvaluationScores struct {
	Safety          int `json:"safety"`
	Tone            int `json:"tone"`
	Personalization int `json:"personalization"`
	Coherence       int `json:"coherence"`
	Overall         int `json:"overall"`
}

// Evaluation is a scored safety/quality judgement of a narrative.
type Evaluation struct {
	Passed     bool             `json:"passed"`
	Scores     EvaluationScores `json:"scores"`
	SafetyFlag bool             `json:"safetyFlag"`
	Mode       EvaluationMode   `json:"mode"`
	Model      string           `json:"model,omitempty"`
	Notes      string           `json:"notes,omitempty"`
}

// Request outcome statuses stored on metrics records.
const (
	StatusAccepted       = "accepted"
	StatusGateBlocked    = "gate_blocked"
	StatusCrisis         = "crisis"
	StatusBackendsFailed = "backends_failed"
)

// MetricsRecord is the audit record of one admitted request.
type MetricsRecord struct {
	RequestID       string            `json:"requestId" bson:"_id"`
	CreatedAt       time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt" bson:"updatedAt"`
	UserHash        string            `json:"userHash,omitempty" bson:"userHash,omitempty"`
	Tier            Tier              `json:"tier" bson:"tier"`
	Status          string            `json:"status" bson:"status"`
	Provider        string            `json:"provider,omitempty" bson:"provider,omitempty"`
	FailedProviders []string          `json:"failedProviders,omitempty" bson:"failedProviders,omitempty"`
	Attempts        []BackendAttempt  `json:"attempts,omitempty" bson:"attempts,omitempty"`
	SpreadKey       string            `json:"spreadKey" bson:"spreadKey"`
	SpreadName      string            `json:"spreadName,omitempty" bson:"spreadName,omitempty"`
	CardCount       int               `json:"cardCount" bson:"cardCount"`
	DeckStyle       DeckStyle         `json:"deckStyle" bson:"deckStyle"`
	Context         string            `json:"context,omitempty" bson:"context,omitempty"`
	Narrative       *QualityResult    `json:"narrative,omitempty" bson:"narrative,omitempty"`
	Evaluation      *Evaluation       `json:"evaluation,omitempty" bson:"evaluation,omitempty"`
	DeepEvaluation  *Evaluation       `json:"deepEvaluation,omitempty" bson:"deepEvaluation,omitempty"`
	GateBlocked     bool              `json:"gateBlocked" bson:"gateBlocked"`
	GateReason      string            `json:"gateReason,omitempty" bson:"gateReason,omitempty"`
	CrisisReason    string            `json:"crisisReason,omitempty" bson:"crisisReason,omitempty"`
	Excerpts        map[string]string `json:"excerpts,omitempty" bson:"excerpts,omitempty"`
	Usage           TokenUsage        `json:"usage" bson:"usage"`
	LatencyMS       int64             `json:"latencyMs" bson:"latencyMs"`
}
