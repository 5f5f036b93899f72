package models

import "math"

// ComplexityFactors are caller-supplied inputs to a complexity analysis.
// Each factor lies in [0, 10].
type ComplexityFactors struct {
	TechnicalDifficulty float64 `json:"technical_difficulty" validate:"min=0,max=10"`
	Scope               float64 `json:"scope" validate:"min=0,max=10"`
	Uncertainty         float64 `json:"uncertainty" validate:"min=0,max=10"`
}

type ComplexityScore struct {
	TechnicalDifficulty float64 `json:"technical_difficulty"`
	Scope               float64 `json:"scope"`
	Uncertainty         float64 `json:"uncertainty"`
	DependenciesCount   int     `json:"dependencies_count"`
	OverallScore        float64 `json:"overall_score"`
}

// DeriveFactors estimates complexity factors from the task content alone.
func DeriveFactors(t *Task) ComplexityFactors {
	technical := 1 + float64(len(t.Description))/200
	if t.Details != "" {
		technical += 2
	}

	uncertainty := 7.0
	if t.Details != "" {
		uncertainty -= 3
	}
	if t.TestStrategy != "" {
		uncertainty -= 2
	}

	return ComplexityFactors{
		TechnicalDifficulty: math.Min(10, technical),
		Scope:               math.Min(10, 1+1.5*float64(len(t.Subtasks))),
		Uncertainty:         math.Max(1, uncertainty),
	}
}

// ScoreComplexity combines factors with the task's edge count into a score.
// The overall score is clamped to [0, 10] and rounded to one decimal.
func ScoreComplexity(f ComplexityFactors, dependenciesCount int) ComplexityScore {
	depWeight := math.Min(2, 0.5*float64(dependenciesCount))
	overall := 0.4*f.TechnicalDifficulty + 0.3*f.Scope + 0.3*f.Uncertainty + depWeight
	overall = math.Max(0, math.Min(10, overall))

	return ComplexityScore{
		TechnicalDifficulty: f.TechnicalDifficulty,
		Scope:               f.Scope,
		Uncertainty:         f.Uncertainty,
		DependenciesCount:   dependenciesCount,
		OverallScore:        Round1(overall),
	}
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
