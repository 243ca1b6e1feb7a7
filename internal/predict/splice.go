package predict

import (
	"math"

	"github.com/inodb/vibe-gemoma/internal/align"
	"github.com/inodb/vibe-gemoma/internal/hit"
)

// spliceTypes selects which joins checkSpecific tries: index 0-2 are splice
// variants whose acceptor side contributes that many bases to the codon
// split by the intron, index 3 joins the hits without intron.
type spliceTypes [4]bool

func (s spliceTypes) invert() spliceTypes {
	for i := range s {
		s[i] = !s[i]
	}
	return s
}

// splice is a chosen splice variant: the donor offset relative to the end
// of the first hit and the acceptor offset relative to the start of the
// second.
type splice struct {
	donor, acceptor int
}

// checkSpliceSites scores the best join of first and second, two hits on
// the same strand with first upstream. delta is the number of reference
// residues of the parts strictly between them. Adjacent parts try a
// canonical intron first and fall back to intron loss; hits of the same
// part try intron loss first and fall back to an intron gain; distant
// parts try everything at once.
func (a *analysis) checkSpliceSites(first, second *hit.Hit, delta int) (int, bool) {
	score, _, ok := a.spliceVariant(first, second, delta)
	return score, ok
}

func (a *analysis) spliceVariant(first, second *hit.Hit, delta int) (int, splice, bool) {
	d := a.partIndex(second) - a.partIndex(first)
	if d > 1 {
		return a.checkSpecific(first, second, delta, spliceTypes{true, true, true, true})
	}
	b := d != 0
	types := spliceTypes{b, b, b, !b}
	if score, sp, ok := a.checkSpecific(first, second, delta, types); ok {
		return score, sp, true
	}
	return a.checkSpecific(first, second, delta, types.invert())
}

func (a *analysis) checkSpecific(first, second *hit.Hit, delta int, types spliceTypes) (best int, refined splice, found bool) {
	d1, d2 := a.derivedOf(first), a.derivedOf(second)
	i1, i2 := a.partIndex(first), a.partIndex(second)
	scores := first.Score + second.Score
	var cds string
	between := func() string {
		if cds == "" {
			cds = a.tr.Between(i1, first.QueryStart, i2, second.QueryEnd)
		}
		return cds
	}

	// intron loss
	diff := second.Start - 1 - first.End
	if types[3] && diff >= 0 && diff%3 == 0 &&
		d1.maxDownEnd > second.Start && first.End > d2.maxUpStart {
		target := a.translate(a.view.Slice(first.Start-1, second.End))
		best = -a.ws.globalCost(target, between()) - scores - (i2-i1)*a.p.IntronGainLoss
		refined, found = splice{diff, 0}, true
	}

	same := first.Part == second.Part
	if (same && found) || !(types[0] || types[1] || types[2]) {
		return best, refined, found
	}

	gap := a.gapCost(delta, i2-1-i1)
	gainLoss := abs(i2-1-i1) * a.p.IntronGainLoss
	length := math.MaxInt
	approxReady := false
	set := false
	for p := 0; p < len(d1.don) && !set; p++ {
		for r := 0; r < 3; r++ {
			if !types[r] {
				continue
			}
			rf := (3 - r) % 3
			for j, acc := range d2.acc[r] {
				var rem2 string
				if r != 0 {
					pos := second.Start - 1 - acc
					rem2 = a.view.Slice(pos, pos+r)
				}
				for k, don := range d1.don[p][rf] {
					if (second.Start-acc)-(first.End+don) < minIntronLength {
						continue
					}
					if r != 0 {
						pos := first.End + don - rf
						if a.translateCodon(a.view.Slice(pos, pos+rf)+rem2) == '*' {
							continue
						}
					}

					current, ok := 0, true
					switch {
					case !same:
						current = d1.donScore[p][rf][k] + d2.accScore[r][j] + gap
					case !a.p.Approx:
						region := a.view.Slice(first.Start-1, first.End+don) + a.view.Slice(second.Start-1-acc, second.End)
						cost := a.ws.globalCost(a.translate(region), between())
						current = -cost - gainLoss - scores
					default:
						if !approxReady {
							a.ws.alignments += 2
							a.ws.aligner.Compute(align.Global, between(), first.Target()+d1.down)
							a.ws.second.Compute(align.Global, align.Reverse(between()), align.Reverse(d2.up+second.Target()))
							approxReady = true
						}
						l1 := first.End + don - first.Start + 1
						l2 := second.End - (second.Start - 1 - acc)
						var v int
						if v, ok = align.BestJoin(a.ws.aligner, a.ws.second, l1/3, l2/3); ok {
							current = -v - gainLoss - scores
						}
					}
					if !ok {
						continue
					}
					l := abs(acc) + abs(don)
					if !found || current > best || (current == best && l < length) {
						best, length = current, l
						refined = splice{don, acc}
						found, set = true, true
					}
				}
			}
		}
	}
	return best, refined, found
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
