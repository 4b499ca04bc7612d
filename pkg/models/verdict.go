package models

// VerdictOutcome is the evaluator's judgement of one artifact.
type VerdictOutcome string

const (
	// OutcomePass means the artifact meets the quality bar.
	OutcomePass VerdictOutcome = "pass"
	// OutcomeNeedsImprovement means another generate cycle is warranted.
	OutcomeNeedsImprovement VerdictOutcome = "needs_improvement"
)

// Valid returns true if the outcome is a known value.
func (o VerdictOutcome) Valid() bool {
	return o == OutcomePass || o == OutcomeNeedsImprovement
}

// EvaluationVerdict is produced by the evaluator role each loop iteration
// and drives whether the generator re-runs.
type EvaluationVerdict struct {
	// Outcome is pass or needs_improvement.
	Outcome VerdictOutcome `json:"outcome"`
	// Feedback is the critique fed back into the next generation.
	Feedback string `json:"feedback,omitempty"`
	// Score optionally quantifies quality; higher is better. The regression
	// guard and best-artifact selection only engage when scores are present.
	Score *float64 `json:"score,omitempty"`
}

// Scored returns true when the verdict carries a score.
func (v EvaluationVerdict) Scored() bool {
	return v.Score != nil
}
