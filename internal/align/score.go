package align

import "fmt"

// Score rescores an existing alignment: the sum of substitution scores minus
// the affine cost of every gap. A gap ends when the gapped sequence changes.
// Both strings must have the same length.
func Score(c Costs, query, target string) int {
	if len(query) != len(target) {
		panic(fmt.Sprintf("align: aligned strings differ in length: %d != %d", len(query), len(target)))
	}
	score := 0
	state := 0
	for i := 0; i < len(query); i++ {
		switch {
		case query[i] == '-' && target[i] == '-':
			continue
		case query[i] == '-':
			if state != 1 {
				score -= c.GapOpen
			}
			score -= c.GapExtend
			state = 1
		case target[i] == '-':
			if state != 2 {
				score -= c.GapOpen
			}
			score -= c.GapExtend
			state = 2
		default:
			score += c.Matrix.Score(query[i], target[i])
			state = 0
		}
	}
	return score
}

// BestJoin approximates the cost of aligning a sequence s against the
// concatenation of two pieces when only prefix and suffix alignments are
// known. prefix holds the global alignment of s against the first piece
// (plus downstream residues), suffix the global alignment of reversed s
// against the reversed second piece (plus upstream residues). end1 and end2
// are the numbers of residues taken from each piece. Only rows in which the
// partial alignment ends with an aligned pair are combined; residues of s
// covered by neither part are charged as one gap. ok is false if no
// combination exists.
func BestJoin(prefix, suffix *Aligner, end1, end2 int) (cost int, ok bool) {
	if prefix.mode != Global || suffix.mode != Global || len(prefix.a) != len(suffix.a) {
		panic("align: BestJoin needs two global alignments of the same sequence")
	}
	n := len(prefix.a)
	if end1 < 0 || end1 > len(prefix.b) || end2 < 0 || end2 > len(suffix.b) {
		return 0, false
	}

	var first, second []int
	for i := 1; i < n; i++ {
		if prefix.endsInMatch(i, end1) {
			first = append(first, i)
		}
		if suffix.endsInMatch(i, end2) {
			second = append(second, i)
		}
	}

	best := inf
	for _, pos1 := range first {
		for _, pos2 := range second {
			l := n - pos2 - pos1
			if l < 0 {
				break
			}
			current := prefix.Cost(pos1, end1) + suffix.Cost(pos2, end2) + prefix.costs.Gap(l)
			if current < best {
				best = current
			}
		}
	}
	if best == inf {
		return 0, false
	}
	return best, true
}
