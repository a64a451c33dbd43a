package mount

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// makeGroups builds groups with positions 1..n for each label.
func makeGroups(labels []string, counts []int) []Group {
	groups := make([]Group, len(labels))
	for i, label := range labels {
		groups[i].Label = label
		for p := 1; p <= counts[i]; p++ {
			groups[i].Candidates = append(groups[i].Candidates, Candidate{
				Tag:  Tag{Label: label, Position: p},
				Axes: map[string]Params{"OPTICAL": {XDecentre: float64(p)}},
			})
		}
	}
	return groups
}

func TestEnumerateCount(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		counts []int
		want   int
	}{
		{name: "single group", labels: []string{"L1"}, counts: []int{3}, want: 3},
		{name: "two by two", labels: []string{"L1", "L2"}, counts: []int{2, 2}, want: 4},
		{name: "uneven", labels: []string{"L1", "L2", "L3"}, counts: []int{2, 3, 4}, want: 24},
		{name: "single candidates", labels: []string{"L1", "L2", "L3"}, counts: []int{1, 1, 1}, want: 1},
		{name: "empty group", labels: []string{"L1", "L2"}, counts: []int{3, 0}, want: 0},
		{name: "all empty", labels: []string{"L1", "L2"}, counts: []int{0, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			combos := Enumerate(makeGroups(tt.labels, tt.counts))
			if len(combos) != tt.want {
				t.Fatalf("expected %d combinations, got %d", tt.want, len(combos))
			}
		})
	}
}

func TestEnumerateOneCandidatePerGroup(t *testing.T) {
	groups := makeGroups([]string{"L1", "L2", "L3", "L4"}, []int{3, 2, 4, 2})
	combos := Enumerate(groups)

	for i, c := range combos {
		if len(c) != len(groups) {
			t.Fatalf("combination %d has %d entries, want %d", i, len(c), len(groups))
		}
		seen := make(map[string]bool)
		for j, cand := range c {
			if seen[cand.Label] {
				t.Fatalf("combination %d repeats group %s", i, cand.Label)
			}
			seen[cand.Label] = true
			if cand.Label != groups[j].Label {
				t.Errorf("combination %d entry %d: got group %s, want %s", i, j, cand.Label, groups[j].Label)
			}
		}
	}
}

func TestEnumerateSharedPositions(t *testing.T) {
	groups := makeGroups([]string{"A", "B"}, []int{2, 2})
	combos := Enumerate(groups)

	var got [][]Tag
	for _, c := range combos {
		got = append(got, c.Tags())
	}

	want := [][]Tag{
		{{"A", 1}, {"B", 1}},
		{{"A", 1}, {"B", 2}},
		{{"A", 2}, {"B", 1}},
		{{"A", 2}, {"B", 2}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("combinations mismatch (-want +got):\n%s", diff)
	}
}

func TestEnumerateDeterministic(t *testing.T) {
	groups := makeGroups([]string{"L1", "L2", "L3"}, []int{2, 3, 2})

	first := Enumerate(groups)
	second := Enumerate(groups)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("enumeration not stable (-first +second):\n%s", diff)
	}
}

func TestEnumerateDuplicateLabels(t *testing.T) {
	groups := makeGroups([]string{"L1", "L1"}, []int{2, 2})
	if combos := Enumerate(groups); len(combos) != 0 {
		t.Errorf("expected no combinations for duplicate labels, got %d", len(combos))
	}
}

func TestEnumerateNoGroups(t *testing.T) {
	if combos := Enumerate(nil); len(combos) != 0 {
		t.Errorf("expected no combinations, got %d", len(combos))
	}
}

func TestEnumerateKeepsAxisData(t *testing.T) {
	groups := makeGroups([]string{"L1", "L2"}, []int{1, 2})
	combos := Enumerate(groups)

	last := combos[len(combos)-1]
	if got := last[1].Axes["OPTICAL"].XDecentre; got != 2 {
		t.Errorf("expected L2 position 2 axis data, got x decentre %f", got)
	}
}

func TestTupleCount(t *testing.T) {
	tests := []struct {
		name   string
		counts []int
		want   int
	}{
		{name: "2x2", counts: []int{2, 2}, want: 6},
		{name: "3x3x3", counts: []int{3, 3, 3}, want: 84},
		{name: "too few", counts: []int{1, 0, 0}, want: 0},
		{name: "40x4 saturates", counts: repeatCount(40, 4), want: math.MaxInt},
		{name: "62 choose 31", counts: append(repeatCount(30, 2), 2), want: 465428353255261088},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels := make([]string, len(tt.counts))
			for i := range labels {
				labels[i] = string(rune('A' + i))
			}
			if got := TupleCount(makeGroups(labels, tt.counts)); got != tt.want {
				t.Errorf("expected %d tuples, got %d", tt.want, got)
			}
		})
	}
}

func repeatCount(groups, candidates int) []int {
	counts := make([]int, groups)
	for i := range counts {
		counts[i] = candidates
	}
	return counts
}
