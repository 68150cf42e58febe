// Package observation implements the Observation Store (C3): the evolving
// list of rules and data observations discovered during a task, and the
// deterministic merge/dedup safety net that enforces spec §4.1 node 6's
// contract regardless of what the LLM's ReflectionDecision returns.
//
// No teacher file implements an equivalent component directly; struct
// layout and method naming follow the rest of the pack's small,
// mutex-guarded in-memory store style (see pkg/registry).
package observation

import (
	"sync"

	"github.com/agentforge/taskrunner/pkg/model"
)

// Store holds the two ordered sequences named in spec §4.4:
// current_step_observations (the step in flight) and world_observations
// (the post-reflection consolidated set). One Store is scoped to one task.
type Store struct {
	mu sync.Mutex

	current []model.StepObservation
	world   []model.StepObservation
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// AppendCurrent records observations captured for the step currently in
// flight. Scores are clamped to [1,5] on the way in per spec §4.3's
// "clamp on read" invariant.
func (s *Store) AppendCurrent(observations []model.StepObservation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range observations {
		s.current = append(s.current, o.ClampScores())
	}
}

// ResetCurrent clears current_step_observations and leaves
// world_observations untouched. The workflow nodes do not call it; the
// working set is cleared by Reflect.
func (s *Store) ResetCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
}

// SnapshotCurrent returns a defensive copy of current_step_observations,
// suitable for embedding in a CompletedStep.
func (s *Store) SnapshotCurrent() []model.StepObservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.StepObservation(nil), s.current...)
}

// World returns a defensive copy of world_observations, presented to
// prompts as two buckets (rules vs data-observations) per spec §4.4.
func (s *Store) World() []model.StepObservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]model.StepObservation(nil), s.world...)
}

// Rules returns the rule-kind subset of world_observations, in order.
func (s *Store) Rules() []model.StepObservation {
	return filterByKind(s.World(), model.KindRule)
}

// DataObservations returns the observation-kind subset of
// world_observations, in order.
func (s *Store) DataObservations() []model.StepObservation {
	return filterByKind(s.World(), model.KindObservation)
}

func filterByKind(all []model.StepObservation, kind model.ObservationKind) []model.StepObservation {
	var out []model.StepObservation
	for _, o := range all {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

// Reflect replaces world_observations with the result of merging
// current_step_observations into the existing world_observations.
//
// llmMerged is the LLM's ReflectionDecision.Observations (the proposed
// merge); Reflect does not trust it verbatim. Instead it runs
// mergeObservations over the union of the existing world_observations and
// current_step_observations as the ground truth, which deterministically
// enforces the node 6 contract (dedup, rule-never-dropped, source
// priority, step_number tie-break, low-importance-and-relevance pruning)
// regardless of what the model proposed. llmMerged is consulted only to
// pick up any RawOutput/title/summary text the model authored afresh for
// genuinely new observations that have no ground-truth counterpart (e.g.
// a synthesized cross-step rule) — anything in llmMerged that collapses,
// drops a rule, or reorders priority relative to mergeObservations' result
// is discarded.
func (s *Store) Reflect(llmMerged []model.StepObservation) []model.StepObservation {
	s.mu.Lock()
	defer s.mu.Unlock()

	ground := mergeObservations(s.world, s.current)
	merged := reconcileWithLLM(ground, llmMerged)

	s.world = merged
	s.current = nil
	return append([]model.StepObservation(nil), s.world...)
}

// Reset clears both sequences, used when a task is abandoned before
// reaching a terminal node.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
	s.world = nil
}
