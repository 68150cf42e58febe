package observation

import (
	"testing"

	"github.com/agentforge/taskrunner/pkg/model"
)

func obs(title string, kind model.ObservationKind, source model.ObservationSource, step, importance, relevance int) model.StepObservation {
	return model.StepObservation{
		Title:      title,
		Summary:    "summary-" + title,
		Kind:       kind,
		Source:     source,
		Importance: importance,
		Relevance:  relevance,
		StepNumber: step,
	}
}

func TestMergeObservations_DedupsByTitleAndSummary(t *testing.T) {
	existing := []model.StepObservation{obs("disk-full", model.KindObservation, model.SourceData, 0, 4, 4)}
	incoming := []model.StepObservation{obs("disk-full", model.KindObservation, model.SourceData, 1, 4, 4)}

	merged := mergeObservations(existing, incoming)

	if len(merged) != 1 {
		t.Fatalf("expected one merged entry, got %d: %+v", len(merged), merged)
	}
	if merged[0].StepNumber != 1 {
		t.Errorf("expected the higher step_number entry to survive, got step %d", merged[0].StepNumber)
	}
}

func TestMergeObservations_RuleNeverDemoted(t *testing.T) {
	existing := []model.StepObservation{obs("must-not-delete", model.KindRule, model.SourceSpec, 0, 5, 5)}
	incoming := []model.StepObservation{obs("must-not-delete", model.KindObservation, model.SourceData, 5, 1, 1)}

	merged := mergeObservations(existing, incoming)

	if len(merged) != 1 {
		t.Fatalf("expected one merged entry, got %d", len(merged))
	}
	if merged[0].Kind != model.KindRule {
		t.Errorf("expected rule to survive undemoted, got kind=%s", merged[0].Kind)
	}
}

func TestMergeObservations_SourcePriorityBreaksTies(t *testing.T) {
	existing := []model.StepObservation{obs("conflict", model.KindObservation, model.SourceData, 3, 5, 5)}
	incoming := []model.StepObservation{obs("conflict", model.KindObservation, model.SourceSpec, 0, 5, 5)}

	merged := mergeObservations(existing, incoming)

	if len(merged) != 1 {
		t.Fatalf("expected one merged entry, got %d", len(merged))
	}
	if merged[0].Source != model.SourceSpec {
		t.Errorf("expected spec-sourced entry to win despite lower step_number, got source=%s", merged[0].Source)
	}
}

func TestMergeObservations_LowImportanceAndRelevanceMayDrop(t *testing.T) {
	existing := []model.StepObservation{obs("trivial", model.KindObservation, model.SourceData, 0, 1, 2)}

	merged := mergeObservations(existing, nil)

	if len(merged) != 0 {
		t.Errorf("expected low importance+relevance observation to be dropped, got %+v", merged)
	}
}

func TestMergeObservations_LowScoreRuleNeverDropped(t *testing.T) {
	existing := []model.StepObservation{obs("rule-survives", model.KindRule, model.SourceUser, 0, 1, 1)}

	merged := mergeObservations(existing, nil)

	if len(merged) != 1 {
		t.Errorf("expected a rule to survive regardless of importance/relevance, got %+v", merged)
	}
}

func TestMergeObservations_NoDuplicatePairsInOutput(t *testing.T) {
	existing := []model.StepObservation{
		obs("a", model.KindObservation, model.SourceData, 0, 5, 5),
		obs("b", model.KindRule, model.SourceSpec, 0, 5, 5),
	}
	incoming := []model.StepObservation{
		obs("a", model.KindObservation, model.SourceUser, 1, 5, 5),
		obs("c", model.KindObservation, model.SourceData, 1, 5, 5),
	}

	merged := mergeObservations(existing, incoming)

	seen := make(map[dedupKey]bool)
	for _, o := range merged {
		key := dedupKey{title: o.Title, summary: o.Summary}
		if seen[key] {
			t.Fatalf("duplicate (kind,source,title,summary) survived merge: %+v", o)
		}
		seen[key] = true
	}
	if len(merged) != 3 {
		t.Errorf("expected 3 distinct entries (a,b,c), got %d: %+v", len(merged), merged)
	}
}

func TestReconcileWithLLM_AddsGenuinelyNewEntries(t *testing.T) {
	ground := []model.StepObservation{obs("known", model.KindObservation, model.SourceData, 0, 5, 5)}
	llm := []model.StepObservation{
		obs("known", model.KindObservation, model.SourceData, 9, 1, 1),
		obs("brand-new", model.KindRule, model.SourceSpec, 2, 5, 5),
	}

	out := reconcileWithLLM(ground, llm)

	if len(out) != 2 {
		t.Fatalf("expected ground entry preserved + one new entry, got %d: %+v", len(out), out)
	}
	if out[0].StepNumber != 0 {
		t.Errorf("expected ground-truth entry for 'known' to win over LLM's proposed version, got %+v", out[0])
	}
}
