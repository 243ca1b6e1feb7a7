package predict

import (
	"strconv"

	"github.com/inodb/vibe-gemoma/internal/hit"
)

// Exon is a refined hit of a prediction. Phase is the number of bases at
// its start that complete a codon split by the preceding intron.
type Exon struct {
	hit.Hit
	Phase int
}

// refine turns a solution into exons: hit ends are moved to the chosen
// splice sites, the first hit is extended to a start codon and the last to
// a stop codon where the reference has them. The solution is not modified.
func (a *analysis) refine(s *Solution) ([]Exon, error) {
	if err := a.setStrand(s.Contig, s.Forward); err != nil {
		return nil, err
	}
	exons := make([]Exon, len(s.Hits))
	for i, h := range s.Hits {
		exons[i] = Exon{Hit: *h}
	}
	for i := 1; i < len(s.Hits); i++ {
		prev, cur := s.Hits[i-1], s.Hits[i]
		delta := 0
		for p := a.partIndex(prev) + 1; p < a.partIndex(cur); p++ {
			delta += a.tr.Length(p)
		}
		if _, sp, ok := a.spliceVariant(prev, cur, delta); ok {
			a.setDonor(&exons[i-1], sp.donor)
			a.setAcceptor(&exons[i], sp.acceptor)
		}
	}
	if err := a.check(); err != nil {
		return nil, err
	}

	first, last := s.Hits[0], s.Hits[len(s.Hits)-1]
	if a.tr.ProteinStartsWithM() {
		d := a.borderOf(first)
		extendBorders(&exons[0].Hit, d, a.partIndex(first) == 0, false)
	}
	if a.tr.ProteinEndsWithStop() {
		d := a.borderOf(last)
		extendBorders(&exons[len(exons)-1].Hit, d, false, a.partIndex(last) == a.tr.NumParts()-1)
	}
	return exons, nil
}

// setDonor moves the end of e by add bases. Residues cut from the hit are
// removed from its alignment.
func (a *analysis) setDonor(e *Exon, add int) {
	e.Info += "donor"
	if add == 0 {
		e.Info += ";"
		return
	}
	old := a.genomicPos(e.End)
	e.Info += " (" + strconv.Itoa(old) + ");"
	e.End += add
	if add > 0 {
		return
	}
	del, i, r := (2-add)/3, len(e.TargetAlign)-1, 0
	for ; i >= 0 && del > 0; i-- {
		if e.TargetAlign[i] != '-' {
			del--
		}
		if e.QueryAlign[i] != '-' {
			r++
		}
	}
	e.TargetAlign, e.QueryAlign = e.TargetAlign[:i+1], e.QueryAlign[:i+1]
	e.QueryEnd -= r
}

// setAcceptor moves the start of e by add bases upstream.
func (a *analysis) setAcceptor(e *Exon, add int) {
	e.Info += "acceptor"
	if add == 0 {
		e.Info += ";"
		return
	}
	e.Phase = mod3(add)
	old := a.genomicPos(e.Start)
	e.Info += " (" + strconv.Itoa(old) + ");"
	e.Start -= add
	if add > 0 {
		return
	}
	del, i, r := (2-add)/3, 0, 0
	for ; i < len(e.TargetAlign) && del > 0; i++ {
		if e.TargetAlign[i] != '-' {
			del--
		}
		if e.QueryAlign[i] != '-' {
			r++
		}
	}
	e.TargetAlign, e.QueryAlign = e.TargetAlign[i:], e.QueryAlign[i:]
	e.QueryStart += r
}

// genomicPos converts a strand position to the forward strand.
func (a *analysis) genomicPos(pos int) int {
	p, _ := a.view.ToGenomic(pos, pos)
	return p
}
