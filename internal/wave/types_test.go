package wave

import (
	"reflect"
	"testing"

	"github.com/watershed-arts/basin/internal/agent"
)

func TestTargetsForSourceTurnsOneThroughThreeProduceTwoTracks(t *testing.T) {
	cases := []struct {
		source agent.SlotId
		want   []agent.SlotId
	}{
		{1, []agent.SlotId{1, 2}},
		{5, []agent.SlotId{5, 6}},
		{6, []agent.SlotId{6, 1}},
	}
	for _, c := range cases {
		for _, turn := range []int{1, 2, 3} {
			got := TargetsForSource(c.source, turn)
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("TargetsForSource(%d, %d) = %v, want %v", c.source, turn, got, c.want)
			}
		}
	}
}

func TestTargetsForSourceSummaryTargetsAllSixSlots(t *testing.T) {
	got := TargetsForSource(3, 4)
	want := []agent.SlotId{1, 2, 3, 4, 5, 6}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("TargetsForSource(_, 4) = %v, want %v", got, want)
	}
}
