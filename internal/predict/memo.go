package predict

// cellState tags a splice memo cell.
type cellState uint8

const (
	uncomputed cellState = iota
	noVariant
	computed
)

type spliceCell struct {
	state cellState
	score int
}

type spliceKey struct {
	first, second int
}

// spliceMemo caches splice scores of hit pairs by hit id. Only pairs the DP
// actually visits are stored; a full table over all pairs would be
// quadratic in the number of hits.
type spliceMemo map[spliceKey]spliceCell

// lookup returns the cached score of joining first and second, computing it
// with fn on first use. ok is false if no splice variant exists.
func (m spliceMemo) lookup(first, second int, fn func() (int, bool)) (score int, ok bool) {
	k := spliceKey{first, second}
	c := m[k]
	if c.state == uncomputed {
		if s, found := fn(); found {
			c = spliceCell{state: computed, score: s}
		} else {
			c = spliceCell{state: noVariant}
		}
		m[k] = c
	}
	return c.score, c.state == computed
}
