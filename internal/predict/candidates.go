package predict

import (
	"math"
	"strings"

	"github.com/inodb/vibe-gemoma/internal/align"
	"github.com/inodb/vibe-gemoma/internal/hit"
)

// donor motifs in order of preference
var donorMotifs = [2]string{"GT", "GC"}

const acceptorMotif = "AG"

// derived holds the per-hit data computed during the final analysis of a
// strand: splice-site candidates with their score deltas and the start and
// stop codon border constraints. Entries are keyed by hit id; the hit
// itself stays unchanged.
//
// Candidate positions are offsets in bases. For an acceptor, pos > 0 moves
// the exon start upstream of the hit start; for a donor, pos > 0 moves the
// exon end downstream of the hit end. Candidates are grouped by pos mod 3.
type derived struct {
	prepared bool

	// add is the number of bases at each hit end that splice sites may cut.
	add int
	// up and down are the residues translated beyond the hit, up to and
	// including the first stop codon.
	up, down     string
	seqUp        string
	seqDown      string
	maxUpStart   int
	maxDownEnd   int
	acc          [3][]int
	accScore     [3][]int
	don          [2][3][]int
	donScore     [2][3][]int
	ae, de       bool
	border       bool
	firstOffset  int
	lastOffset   int
	firstAdd     int
	lastAdd      int
	firstResidue byte
}

// residueOffset converts a splice offset in bases to the residues gained
// (positive) or lost (negative) at the hit end.
func residueOffset(pos int) int {
	if pos > 0 {
		return int(math.Floor(float64(pos) / 3))
	}
	return -int(math.Ceil(float64(-pos) / 3))
}

func mod3(x int) int {
	m := x % 3
	if m < 0 {
		m += 3
	}
	return m
}

// derivedOf returns the derived data of h, computing splice candidates on
// first use.
func (a *analysis) derivedOf(h *hit.Hit) *derived {
	d, ok := a.derived[h.ID]
	if !ok {
		d = &derived{firstResidue: '!'}
		a.derived[h.ID] = d
	}
	if !d.prepared {
		a.prepareSpliceCandidates(h, d)
	}
	return d
}

// extension walks codons away from the hit starting at the 0-based strand
// index pos: upstream codons end at pos, downstream codons start at pos. The
// first len(known) codons take their residues from known instead of being
// translated. The walk stops after a stop codon, at the contig end, after
// maxIntron bases or on the third consecutive untranslatable codon. One
// base beyond the last codon is added to the DNA, 'N' outside the contig.
// DNA and residues are returned in strand order.
func (a *analysis) extension(pos int, upstream bool, known string) (dna, residues string) {
	n := a.view.Len()
	var codons []string
	var aas []byte
	step := 3
	if upstream {
		step = -3
		pos -= 3
	}
	c := byte('!')
	problems := 0
	for i := 0; 3*i < a.maxIntron && pos >= 0 && pos+3 <= n && c != '*'; i++ {
		codon := a.view.Slice(pos, pos+3)
		if i < len(known) {
			if upstream {
				c = known[len(known)-1-i]
			} else {
				c = known[i]
			}
			problems = 0
		} else if aa, err := a.strict.Translate(codon); err != nil {
			problems++
			if problems == 3 {
				break
			}
			c = 'X'
		} else {
			c = aa
			problems = 0
		}
		codons = append(codons, codon)
		aas = append(aas, c)
		pos += step
	}

	var sb strings.Builder
	if upstream {
		edge := pos + 3
		extra := a.view.Slice(edge-1, edge)
		if extra == "" {
			extra = "N"
		}
		sb.WriteString(extra)
		for i := len(codons) - 1; i >= 0; i-- {
			sb.WriteString(codons[i])
		}
		reverseBytes(aas)
	} else {
		for _, codon := range codons {
			sb.WriteString(codon)
		}
		extra := a.view.Slice(pos, pos+1)
		if extra == "" {
			extra = "N"
		}
		sb.WriteString(extra)
	}
	return sb.String(), string(aas)
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// prepareSpliceCandidates computes the acceptor and donor candidates of h
// and the score change of cutting or extending the hit at each of them.
func (a *analysis) prepareSpliceCandidates(h *hit.Hit, d *derived) {
	d.prepared = true
	l := h.Len() / 3
	if l < 3*spliceSiteAA {
		d.add = l - l%3
	} else {
		d.add = 3 * spliceSiteAA
	}
	add := d.add
	target := h.Target()
	query := a.part(a.partIndex(h))
	introns := a.res.Evidence.Introns

	// acceptor
	var up string
	d.seqUp, up = a.extension(h.Start+add-1, true, target[:add/3])
	d.up = up[:max(0, len(up)-add/3)]
	s := len(d.seqUp) - add
	d.maxUpStart = h.Start - s + 2

	count := 0
	if introns != nil {
		old := -1
		for _, in := range introns.AcceptorsIn(a.contig, a.view.Forward(), d.maxUpStart, h.Start+add) {
			if in.Acceptor == old {
				continue
			}
			pos := h.Start - in.Acceptor
			d.acc[mod3(pos)] = append(d.acc[mod3(pos)], pos)
			old = in.Acceptor
			count++
		}
		d.ae = count > 0
	}
	if introns == nil || (a.p.Splice && count == 0) {
		d.acc = [3][]int{}
		forEachMotif(d.seqUp, acceptorMotif, func(idx int) {
			pos := s - (idx + len(acceptorMotif))
			d.acc[mod3(pos)] = append(d.acc[mod3(pos)], pos)
		})
	}
	if best, ok := maxCandidate(d.acc[:]); ok {
		q := align.Reverse(query[:min(h.QueryEnd, len(query))])
		maxAA := residueOffset(best)
		var t string
		if best > 0 {
			t = d.up[len(d.up)-maxAA:] + target
		} else {
			t = target[-maxAA:]
		}
		t = align.Reverse(t)
		al := a.ws.compute(align.Global, q, t)
		for p := range d.acc {
			d.accScore[p] = make([]int, len(d.acc[p]))
			for i, pos := range d.acc[p] {
				col := len(t) - (maxAA - residueOffset(pos))
				d.accScore[p][i] = -al.Cost(len(q), col) - h.Score
			}
		}
	}

	// donor
	var down string
	d.seqDown, down = a.extension(h.End-add, false, target[len(target)-add/3:])
	d.down = down[min(add/3, len(down)):]
	d.maxDownEnd = h.End + len(d.seqDown) - add - 2

	count = 0
	if introns != nil {
		old := -1
		for _, in := range introns.DonorsIn(a.contig, a.view.Forward(), h.End-add, d.maxDownEnd+1) {
			if in.Donor == old {
				continue
			}
			pos := in.Donor - h.End - 1
			d.don[0][mod3(pos)] = append(d.don[0][mod3(pos)], pos)
			old = in.Donor
			count++
		}
		d.de = count > 0
	}
	if introns == nil || (a.p.Splice && count == 0) {
		d.don = [2][3][]int{}
		for m, motif := range donorMotifs {
			forEachMotif(d.seqDown, motif, func(idx int) {
				pos := idx - add
				d.don[m][mod3(pos)] = append(d.don[m][mod3(pos)], pos)
			})
		}
		// GC directly after the hit counts as a preferred donor
		for i := 0; i < 3; i++ {
			if add+i+2 <= len(d.seqDown) && d.seqDown[add+i:add+i+2] == donorMotifs[1] {
				d.don[0][i] = append(d.don[0][i], i)
			}
		}
	}
	if best, ok := maxCandidate(d.don[0][:], d.don[1][:]); ok {
		q := query[min(h.QueryStart-1, len(query)):]
		var t string
		if best > 0 {
			t = target + d.down[:residueOffset(best)]
		} else {
			t = target[:len(target)+residueOffset(best)]
		}
		al := a.ws.compute(align.Global, q, t)
		for m := range d.don {
			for p := range d.don[m] {
				d.donScore[m][p] = make([]int, len(d.don[m][p]))
				for i, pos := range d.don[m][p] {
					col := len(target) + residueOffset(pos)
					d.donScore[m][p][i] = -al.Cost(len(q), col) - h.Score
				}
			}
		}
	}
}

// forEachMotif calls fn with every index at which motif occurs in s.
func forEachMotif(s, motif string, fn func(idx int)) {
	for i := 0; i+len(motif) <= len(s); {
		j := strings.Index(s[i:], motif)
		if j < 0 {
			return
		}
		fn(i + j)
		i += j + 1
	}
}

func maxCandidate(groups ...[][]int) (int, bool) {
	best, ok := 0, false
	for _, g := range groups {
		for _, list := range g {
			for _, pos := range list {
				if !ok || pos > best {
					best, ok = pos, true
				}
			}
		}
	}
	return best, ok
}
