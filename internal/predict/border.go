package predict

import (
	"math"
	"strconv"
	"strings"

	"github.com/inodb/vibe-gemoma/internal/align"
	"github.com/inodb/vibe-gemoma/internal/hit"
)

// setBorderConstraints computes for a hit of the first part how far the hit
// must move to start at a methionine, and for a hit of the last part how far
// it must grow to end at a stop codon, together with the score change of
// doing so. It runs once per hit.
func (a *analysis) setBorderConstraints(h *hit.Hit, firstExon, lastExon bool) {
	d := a.derivedOf(h)
	if d.border {
		return
	}
	d.border = true
	query := a.part(a.partIndex(h))

	if firstExon {
		if !(h.TargetAlign[0] == 'M' && h.QueryStart == 1) {
			if len(d.up) > 0 && strings.IndexByte(d.up, 'M') >= 0 {
				d.firstOffset = a.startUpstream(h, d, query)
			} else {
				d.firstOffset = 0
				if off := strings.IndexByte(h.TargetAlign, 'M'); off > 0 {
					off -= strings.Count(h.TargetAlign[:off], "-")
					if h.Start+3*off < h.End {
						d.firstOffset = -off
					}
				}
			}
		}
		q := query[:min(h.QueryEnd, len(query))]
		t := a.translate(a.dna(h, 3*d.firstOffset, 0))
		d.firstAdd = -a.ws.globalCost(q, t) - h.Score
		if len(t) > 0 {
			d.firstResidue = t[0]
		}
	}

	if lastExon {
		d.lastOffset = 0
		if h.TargetAlign[len(h.TargetAlign)-1] != '*' && len(d.down) > 0 && d.down[len(d.down)-1] == '*' {
			d.lastOffset = len(d.down)
			q := query[min(h.QueryStart-1, len(query)):]
			t := a.translate(a.dna(h, 0, 3*d.lastOffset))
			d.lastAdd = -a.ws.globalCost(q, t) - h.Score
		}
	}
}

// startUpstream returns the number of residues to prepend so the hit starts
// at the methionine upstream that best explains the missing query prefix.
// It returns 0 if the hit already starts with M and that is best.
func (a *analysis) startUpstream(h *hit.Hit, d *derived, query string) int {
	missing := align.Reverse(query[:min(h.QueryStart, len(query))])
	up := align.Reverse(d.up)
	al := a.ws.compute(align.Global, missing, up[:strings.LastIndexByte(up, 'M')+1])

	best, idx := math.MinInt, math.MinInt
	if h.TargetAlign[0] == 'M' {
		best, idx = -a.res.Costs.Gap(len(missing)), -1
	}
	for j := 0; j < len(up); j++ {
		if up[j] != 'M' {
			continue
		}
		if c := -al.Cost(len(missing), j+1); c > best {
			best, idx = c, j
		}
	}
	return idx + 1
}

// extendBorders applies the border constraints computed for the original
// hit to a refined copy.
func extendBorders(h *hit.Hit, d *derived, first, last bool) {
	if first && d.firstOffset != 0 {
		if h.Start-3*d.firstOffset < h.End {
			h.Start -= 3 * d.firstOffset
			h.Info += "START (" + strconv.Itoa(d.firstOffset) + " aa);"
		} else {
			h.Info += "START-problem;"
		}
	}
	if last && d.lastOffset > 0 {
		h.End += 3 * d.lastOffset
		h.Info += "STOP (" + strconv.Itoa(d.lastOffset) + " aa);"
	}
}
