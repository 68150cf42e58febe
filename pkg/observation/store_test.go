package observation

import (
	"testing"

	"github.com/agentforge/taskrunner/pkg/model"
)

func TestStore_AppendCurrentThenSnapshot(t *testing.T) {
	s := New()
	s.AppendCurrent([]model.StepObservation{
		{Title: "a", Summary: "sa", Kind: model.KindObservation, Source: model.SourceData, Importance: 9, Relevance: 0},
	})

	snap := s.SnapshotCurrent()
	if len(snap) != 1 {
		t.Fatalf("expected one current observation, got %d", len(snap))
	}
	if snap[0].Importance != 5 {
		t.Errorf("expected importance clamped to 5, got %d", snap[0].Importance)
	}
	if snap[0].Relevance != 1 {
		t.Errorf("expected relevance clamped to 1, got %d", snap[0].Relevance)
	}
}

func TestStore_SnapshotCurrentIsDefensiveCopy(t *testing.T) {
	s := New()
	s.AppendCurrent([]model.StepObservation{{Title: "a", Summary: "sa", Kind: model.KindObservation, Source: model.SourceData, Importance: 3, Relevance: 3}})

	snap := s.SnapshotCurrent()
	snap[0].Title = "mutated"

	again := s.SnapshotCurrent()
	if again[0].Title != "a" {
		t.Errorf("expected store's internal state unaffected by caller mutation, got %q", again[0].Title)
	}
}

func TestStore_ResetCurrentClearsOnly(t *testing.T) {
	s := New()
	s.AppendCurrent([]model.StepObservation{{Title: "a", Summary: "sa", Kind: model.KindObservation, Source: model.SourceData, Importance: 3, Relevance: 3}})
	s.Reflect(nil)
	s.AppendCurrent([]model.StepObservation{{Title: "b", Summary: "sb", Kind: model.KindObservation, Source: model.SourceData, Importance: 3, Relevance: 3}})

	s.ResetCurrent()

	if len(s.SnapshotCurrent()) != 0 {
		t.Errorf("expected current_step_observations cleared")
	}
	if len(s.World()) != 1 {
		t.Errorf("expected world_observations untouched by ResetCurrent, got %d", len(s.World()))
	}
}

func TestStore_ReflectMergesCurrentIntoWorld(t *testing.T) {
	s := New()
	s.AppendCurrent([]model.StepObservation{
		{Title: "rule1", Summary: "must hold", Kind: model.KindRule, Source: model.SourceSpec, Importance: 5, Relevance: 5},
	})

	world := s.Reflect(nil)

	if len(world) != 1 {
		t.Fatalf("expected one world observation after reflect, got %d", len(world))
	}
	if len(s.SnapshotCurrent()) != 0 {
		t.Errorf("expected current_step_observations cleared after Reflect")
	}
}

func TestStore_RulesAndDataObservationsPartitionWorld(t *testing.T) {
	s := New()
	s.AppendCurrent([]model.StepObservation{
		{Title: "rule1", Summary: "s1", Kind: model.KindRule, Source: model.SourceSpec, Importance: 5, Relevance: 5},
		{Title: "fact1", Summary: "s2", Kind: model.KindObservation, Source: model.SourceData, Importance: 5, Relevance: 5},
	})
	s.Reflect(nil)

	if len(s.Rules()) != 1 {
		t.Errorf("expected 1 rule, got %d", len(s.Rules()))
	}
	if len(s.DataObservations()) != 1 {
		t.Errorf("expected 1 data observation, got %d", len(s.DataObservations()))
	}
}

func TestStore_ResetClearsBothSequences(t *testing.T) {
	s := New()
	s.AppendCurrent([]model.StepObservation{{Title: "a", Summary: "sa", Kind: model.KindObservation, Source: model.SourceData, Importance: 3, Relevance: 3}})
	s.Reflect(nil)
	s.AppendCurrent([]model.StepObservation{{Title: "b", Summary: "sb", Kind: model.KindObservation, Source: model.SourceData, Importance: 3, Relevance: 3}})

	s.Reset()

	if len(s.World()) != 0 || len(s.SnapshotCurrent()) != 0 {
		t.Errorf("expected Reset to clear both sequences")
	}
}
