package predict

import (
	"math"

	"github.com/inodb/vibe-gemoma/internal/hit"
)

// table is the DP over the hits of one contig strand. sums[i][j] is the best
// score of a chain starting with hit j of part position i, including the
// end cost of its last hit.
type table struct {
	lines lines
	sums  [][]int
	// gap enables the final mode: border costs, missing part penalties and
	// splice scoring.
	gap  bool
	memo spliceMemo

	bestValue int
	best      [][2]int
}

// forwardDP fills the table from the last part to the first and returns it
// with the best chain score. In the coarse mode (memo == nil) hits are
// joined at no cost unless two hits of the same part overlap by more than
// half in the query.
func (a *analysis) forwardDP(l lines, memo spliceMemo) (*table, error) {
	t := &table{
		lines:     l,
		sums:      make([][]int, len(l)),
		gap:       memo != nil,
		memo:      memo,
		bestValue: math.MinInt,
	}
	for i := len(l) - 1; i >= 0; i-- {
		if err := a.check(); err != nil {
			return nil, err
		}
		t.sums[i] = make([]int, len(l[i]))
		for j := len(l[i]) - 1; j >= 0; j-- {
			h := l[i][j]
			best := a.endCost(t, i, h)
			a.transitions(t, i, j, func(k, m, ad int) {
				if v := t.sums[k][m] + ad; v > best {
					best = v
				}
			})
			t.sums[i][j] = h.Score + best
		}
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	a.findBest(t)
	return t, nil
}

// findBest collects all chain starts of maximal score.
func (a *analysis) findBest(t *table) {
	t.bestValue, t.best = math.MinInt, t.best[:0]
	for i := range t.lines {
		for j, h := range t.lines[i] {
			v := t.sums[i][j] + a.startCost(t, i, h)
			switch {
			case v > t.bestValue:
				t.bestValue = v
				t.best = append(t.best[:0], [2]int{i, j})
			case v == t.bestValue:
				t.best = append(t.best, [2]int{i, j})
			}
		}
	}
}

// startCost scores the reference residues before h when h starts a chain.
func (a *analysis) startCost(t *table, i int, h *hit.Hit) int {
	if !t.gap {
		return 0
	}
	if i == 0 {
		return a.borderOf(h).firstAdd
	}
	return a.gapCost(h.QueryStart-1+a.tr.CumLength(i), i-1)
}

// endCost scores the reference residues after h when h ends a chain.
func (a *analysis) endCost(t *table, i int, h *hit.Hit) int {
	if !t.gap {
		return 0
	}
	if i == len(t.lines)-1 {
		return a.borderOf(h).lastAdd
	}
	return a.gapCost(h.QueryLength-h.QueryEnd+a.tr.RevCumLength(i), len(t.lines)-1-i)
}

// borderOf returns the derived data of h without computing splice
// candidates; hits that never got border constraints score 0.
func (a *analysis) borderOf(h *hit.Hit) *derived {
	if d, ok := a.derived[h.ID]; ok {
		return d
	}
	return &derived{}
}

// transitions calls fn for every hit (k, m) that may follow hit (i, j) in a
// chain, with the score of joining them. Successors lie within the next
// maxPartGap parts, start and end after the hit and begin within the intron
// budget of the parts in between.
func (a *analysis) transitions(t *table, i, j int, fn func(k, m, ad int)) {
	h := t.lines[i][j]
	n := len(t.lines)
	delta := 0
	for k := i; k < min(i+maxPartGap, n); k++ {
		if k > i+1 {
			delta += a.tr.Length(k - 1)
		}
		budget := max(1, k-i) * a.maxIntron
		m := 0
		if k == i {
			m = j + 1
		}
		for ; m < len(t.lines[k]); m++ {
			x := t.lines[k][m]
			if x.Start-(h.End+1) >= budget {
				break
			}
			if !follows(h, x, k > i) {
				continue
			}
			ad, ok := 0, true
			if t.gap {
				ad, ok = t.memo.lookup(h.ID, x.ID, func() (int, bool) {
					return a.checkSpliceSites(h, x, delta)
				})
			} else if k == i && queryOverlap(h, x) > 0.5 {
				ok = false
			}
			if ok {
				fn(k, m, ad)
			}
		}
	}
}

// follows reports whether x may follow h: it starts and ends later on the
// strand and, for hits of the same part, covers a later part of the query.
func follows(h, x *hit.Hit, otherPart bool) bool {
	return x.Start > h.Start && x.End > h.End &&
		(otherPart || (h.QueryStart < x.QueryStart && h.QueryEnd < x.QueryEnd))
}

// queryOverlap is the query overlap of two hits of the same part relative
// to the shorter one.
func queryOverlap(h, x *hit.Hit) float64 {
	return float64(max(h.QueryEnd-x.QueryStart, 0)) / float64(min(h.AlignedLen(), x.AlignedLen()))
}
