package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrColumnNotFound is returned when no candidate matches any field name.
// Callers skip the offending run and record a warning instead of aborting.
var ErrColumnNotFound = errors.New("column not found")

// Default candidate tables for tabular exports from common training
// frameworks. Order matters: earlier candidates win.
var (
	DefaultStepCandidates = []string{
		"Step", "step", "global_step", "_step",
		"TotalSteps", "total_steps", "Timestep", "timestep",
		"Epoch", "epoch", "Iteration", "iteration", "Frame", "frame",
	}

	DefaultValueCandidates = []string{
		"episode_return",
		"episodic_return",
		"eval/avg_reward",
		"rollout/ep_rew_mean",
		"Value",
		"mean_reward",
		"AverageReturn",
		"MeanReturn",
		"mean_episode_reward",
	}
)

// Resolver maps heterogeneous column names onto canonical step and value
// fields using ordered candidate lists.
type Resolver struct {
	stepCandidates  []string
	valueCandidates []string
}

// NewResolver creates a resolver with the given candidate lists. Nil lists
// fall back to the defaults.
func NewResolver(stepCandidates, valueCandidates []string) *Resolver {
	if stepCandidates == nil {
		stepCandidates = DefaultStepCandidates
	}
	if valueCandidates == nil {
		valueCandidates = DefaultValueCandidates
	}
	return &Resolver{
		stepCandidates:  stepCandidates,
		valueCandidates: valueCandidates,
	}
}

// Resolve picks the step and value columns out of the available field names.
// Each candidate list is tried in order: first an exact match over all
// fields, then substring containment in either direction, which tolerates
// prefixed names like "env: task - episode_return".
func (r *Resolver) Resolve(fields []string) (stepCol, valueCol string, err error) {
	stepCol, err = match(r.stepCandidates, fields)
	if err != nil {
		return "", "", fmt.Errorf("step column: %w", err)
	}

	valueCol, err = match(r.valueCandidates, fields)
	if err != nil {
		return "", "", fmt.Errorf("value column: %w", err)
	}

	return stepCol, valueCol, nil
}

// match tries each candidate in order; a candidate matches by exact name
// first, then by substring containment. Candidate priority beats match
// quality: an earlier substring match wins over a later exact one.
func match(candidates, fields []string) (string, error) {
	for _, candidate := range candidates {
		for _, field := range fields {
			if field == candidate {
				return field, nil
			}
		}
		for _, field := range fields {
			if strings.Contains(field, candidate) || strings.Contains(candidate, field) {
				return field, nil
			}
		}
	}

	return "", fmt.Errorf("%w: no candidate in %v matches fields %v", ErrColumnNotFound, candidates, fields)
}
