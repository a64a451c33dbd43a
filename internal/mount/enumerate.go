package mount

import (
	"math"
	"math/bits"

	"gonum.org/v1/gonum/stat/combin"
)

// flatten lists every candidate of every group, in group then candidate order.
func flatten(groups []Group) []Candidate {
	var flat []Candidate
	for _, g := range groups {
		for _, c := range g.Candidates {
			c.Label = g.Label
			flat = append(flat, c)
		}
	}
	return flat
}

// TupleCount returns how many raw tuples Enumerate generates before filtering.
// Counts that do not fit in an int saturate at math.MaxInt.
func TupleCount(groups []Group) int {
	n, k := len(flatten(groups)), len(groups)
	if k == 0 || n < k {
		return 0
	}
	return binomialSaturating(n, k)
}

// binomialSaturating computes C(n, k) with 128-bit intermediates.
// After step i the running value is C(n-k+i, i), so every division is exact.
func binomialSaturating(n, k int) int {
	if k > n-k {
		k = n - k
	}
	r := uint64(1)
	for i := 1; i <= k; i++ {
		hi, lo := bits.Mul64(r, uint64(n-k+i))
		if hi >= uint64(i) {
			return math.MaxInt
		}
		r, _ = bits.Div64(hi, lo, uint64(i))
		if r > math.MaxInt {
			return math.MaxInt
		}
	}
	return int(r)
}

// Enumerate returns every combination that takes exactly one candidate from
// each group.
//
// All len(groups)-sized selections of the flattened candidate list are
// generated in lexicographic index order and a selection is kept only when
// each group label occurs exactly once. Equal positions in different groups
// do not conflict. An empty group, duplicate group labels or an empty input
// yield an empty result.
func Enumerate(groups []Group) []Combination {
	k := len(groups)
	if k == 0 {
		return nil
	}

	labels := make(map[string]struct{}, k)
	for _, g := range groups {
		labels[g.Label] = struct{}{}
	}
	if len(labels) < k {
		return nil
	}

	flat := flatten(groups)
	if len(flat) < k {
		return nil
	}

	var out []Combination
	seen := make(map[string]int, k)
	idx := make([]int, k)
	gen := combin.NewCombinationGenerator(len(flat), k)
	for gen.Next() {
		idx = gen.Combination(idx)

		clear(seen)
		valid := true
		for _, i := range idx {
			seen[flat[i].Label]++
			if seen[flat[i].Label] > 1 {
				valid = false
				break
			}
		}
		if !valid || len(seen) != k {
			continue
		}

		combo := make(Combination, k)
		for j, i := range idx {
			combo[j] = flat[i]
		}
		out = append(out, combo)
	}
	return out
}
