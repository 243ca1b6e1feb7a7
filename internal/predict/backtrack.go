package predict

import (
	"math"

	"github.com/inodb/vibe-gemoma/internal/hit"
)

type step struct {
	k, m int
	diff float64
}

type frame struct {
	i, j  int
	steps []step
	next  int
	// done is set if a chain may end at this hit
	done bool
}

// walk explores the chains starting at root whose score is at most diff
// below the best chain through root. It uses an explicit stack. complete,
// if not nil, is called with every chain that ends within the slack. With a
// non-nil used table each hit is expanded again only with a larger slack
// than before; used then records the largest slack seen per hit.
func (a *analysis) walk(t *table, used [][]float64, root [2]int, diff float64, complete func([]*hit.Hit)) error {
	var stack []frame
	var path []*hit.Hit

	enter := func(i, j int, diff float64) {
		if diff < 0 {
			return
		}
		if used != nil {
			if diff <= used[i][j] {
				return
			}
			used[i][j] = diff
		}
		h := t.lines[i][j]
		rest := diff - float64(t.sums[i][j]-h.Score)
		f := frame{i: i, j: j}
		a.transitions(t, i, j, func(k, m, ad int) {
			if nd := rest + float64(ad+t.sums[k][m]); nd >= 0 {
				f.steps = append(f.steps, step{k, m, nd})
			}
		})
		f.done = complete != nil && t.sums[i][j]-(h.Score+a.endCost(t, i, h)) == 0
		stack = append(stack, f)
		path = append(path, h)
	}

	enter(root[0], root[1], diff)
	for len(stack) > 0 {
		if err := a.check(); err != nil {
			return err
		}
		top := &stack[len(stack)-1]
		if top.next < len(top.steps) {
			s := top.steps[top.next]
			top.next++
			enter(s.k, s.m, s.diff)
			continue
		}
		if top.done {
			complete(path)
		}
		stack = stack[:len(stack)-1]
		path = path[:len(path)-1]
	}
	return nil
}

// reduce keeps the hits of chains scoring at least thresh. With split set,
// kept hits are split at premature stop codons.
func (a *analysis) reduce(t *table, thresh float64, split bool) (lines, error) {
	used := make([][]float64, len(t.lines))
	for i := range used {
		used[i] = make([]float64, len(t.lines[i]))
		for j := range used[i] {
			used[i][j] = math.Inf(-1)
		}
	}
	for i := range t.lines {
		for j, h := range t.lines[i] {
			root := float64(t.sums[i][j]+a.startCost(t, i, h)) - thresh
			if err := a.walk(t, used, [2]int{i, j}, root, nil); err != nil {
				return nil, err
			}
		}
	}

	out := make(lines, len(t.lines))
	for i := range t.lines {
		for j, h := range t.lines[i] {
			if used[i][j] < 0 {
				continue
			}
			if !split {
				out[i] = append(out[i], h)
				continue
			}
			pieces := hit.SplitAtStops(*h, a.res.Costs)
			if len(pieces) == 1 && pieces[0].ID == h.ID {
				out[i] = append(out[i], h)
				continue
			}
			for _, p := range pieces {
				out[i] = append(out[i], a.copyHit(p))
			}
		}
	}
	out.sort()
	return out, nil
}

// backtrack returns the best chain of the final table, choosing among
// chains of equal score with the solution order.
func (a *analysis) backtrack(t *table) (*Solution, error) {
	var best *Solution
	for _, root := range t.best {
		err := a.walk(t, nil, root, 0, func(path []*hit.Hit) {
			s := a.newSolution(path)
			if best == nil || compareSolutions(s, best) < 0 {
				best = s
			}
		})
		if err != nil {
			return nil, err
		}
	}
	if best != nil {
		best.Score = t.bestValue
	}
	return best, nil
}
