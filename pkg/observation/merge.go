package observation

import "github.com/agentforge/taskrunner/pkg/model"

// dedupKey groups observations that the node 6 contract treats as the same
// item: identical title+summary collapse regardless of kind/source, since
// spec §4.1's invariant (§8) is phrased over (kind, source, title, summary)
// pairs but the dedup pass itself starts from title+summary equality before
// kind/source enters as a tie-break input.
type dedupKey struct {
	title   string
	summary string
}

// mergeObservations folds incoming (current-step) observations into
// existing (world) observations under spec §4.1 node 6's contract:
//
//   - duplicate titles+summaries collapse to one entry;
//   - rules (kind=rule) are never demoted to observations and never
//     silently dropped;
//   - source priority spec > user > data breaks ties between two entries
//     that share a dedup key but disagree on kind or source;
//   - when two entries share (kind, source) and the same dedup key, the
//     one with the higher step_number wins;
//   - observations (not rules) with both importance <= 2 and
//     relevance <= 2 may be dropped once deduplication is otherwise
//     resolved.
func mergeObservations(existing, incoming []model.StepObservation) []model.StepObservation {
	byKey := make(map[dedupKey]model.StepObservation)
	order := make([]dedupKey, 0, len(existing)+len(incoming))

	merge := func(o model.StepObservation) {
		o = o.ClampScores()
		key := dedupKey{title: o.Title, summary: o.Summary}

		current, seen := byKey[key]
		if !seen {
			byKey[key] = o
			order = append(order, key)
			return
		}

		byKey[key] = resolveConflict(current, o)
	}

	for _, o := range existing {
		merge(o)
	}
	for _, o := range incoming {
		merge(o)
	}

	out := make([]model.StepObservation, 0, len(order))
	for _, key := range order {
		o := byKey[key]
		if shouldDrop(o) {
			continue
		}
		out = append(out, o)
	}
	return out
}

// resolveConflict picks the surviving entry when two observations share a
// dedup key (title+summary).
func resolveConflict(a, b model.StepObservation) model.StepObservation {
	// A rule is never demoted to an observation by a later data-kind entry
	// with the same title+summary; the rule always survives the merge.
	if a.Kind == model.KindRule && b.Kind != model.KindRule {
		return a
	}
	if b.Kind == model.KindRule && a.Kind != model.KindRule {
		return b
	}

	if rankA, rankB := model.SourceRank(a.Source), model.SourceRank(b.Source); rankA != rankB {
		if rankA > rankB {
			return a
		}
		return b
	}

	// Same (kind, source-rank): higher step_number wins the tie.
	if b.StepNumber >= a.StepNumber {
		return b
	}
	return a
}

// shouldDrop reports whether a merged observation may be pruned: rules are
// never dropped, only low-importance-and-relevance data observations are.
func shouldDrop(o model.StepObservation) bool {
	if o.Kind == model.KindRule {
		return false
	}
	return o.Importance <= 2 && o.Relevance <= 2
}

// reconcileWithLLM starts from the deterministic ground-truth merge and
// folds in any genuinely new entries the LLM proposed (entries whose
// title+summary does not already appear in ground), clamped and subject to
// the same drop rule. Anything in llmMerged that would collapse, drop, or
// demote a ground-truth entry is ignored: ground truth always wins a
// conflict.
func reconcileWithLLM(ground, llmMerged []model.StepObservation) []model.StepObservation {
	seen := make(map[dedupKey]bool, len(ground))
	for _, o := range ground {
		seen[dedupKey{title: o.Title, summary: o.Summary}] = true
	}

	out := append([]model.StepObservation(nil), ground...)
	for _, o := range llmMerged {
		o = o.ClampScores()
		key := dedupKey{title: o.Title, summary: o.Summary}
		if seen[key] {
			continue
		}
		if shouldDrop(o) {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}
