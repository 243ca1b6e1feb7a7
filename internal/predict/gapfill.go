package predict

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/inodb/vibe-gemoma/internal/hit"
)

// fillGaps searches the parts without hits by aligning them against the
// translated genome: between hits of the surrounding parts, upstream of the
// first part with hits and downstream of the last. It reports whether
// newly found hits had to be dropped at the per-part cap.
func (a *analysis) fillGaps(l lines) (bool, error) {
	old := make([]int, len(l))
	for i := range l {
		old[i] = len(l[i])
	}

	first, last, prev := -1, -1, -1
	for j := range l {
		if len(l[j]) == 0 {
			continue
		}
		if first < 0 {
			first = j
		}
		last = j
		if prev >= 0 && prev+1 != j {
			if err := a.fillInternal(l, prev, j); err != nil {
				return false, err
			}
		}
		prev = j
	}
	if first > 0 {
		if err := a.extend(l, first, true); err != nil {
			return false, err
		}
	}
	if last >= 0 && last < len(l)-1 {
		if err := a.extend(l, last, false); err != nil {
			return false, err
		}
	}

	cut := false
	for i := range l {
		added := l[i][old[i]:]
		if len(added) <= a.p.MaxNewHits {
			continue
		}
		sort.SliceStable(added, func(x, y int) bool { return added[x].Score > added[y].Score })
		l[i] = l[i][:old[i]+a.p.MaxNewHits]
		cut = true
	}
	return cut, nil
}

// fillInternal aligns the parts strictly between prev and next. Hits of both
// parts within the intron budget are connected; every connected group
// defines one window from its earliest end of prev to its latest start of
// next.
func (a *analysis) fillInternal(l lines, prev, next int) error {
	previous, current := l[prev], l[next]
	offset := len(current)
	g := simple.NewUndirectedGraph()
	for i := 0; i < offset+len(previous); i++ {
		g.AddNode(simple.Node(i))
	}
	budget := (next - prev) * a.maxIntron
	for x, cur := range current {
		for y, p := range previous {
			if d := cur.Start - p.End; d >= 0 && d < budget {
				g.SetEdge(g.NewEdge(simple.Node(x), simple.Node(offset+y)))
			}
		}
	}

	components := topo.ConnectedComponents(g)
	ids := make([][]int, len(components))
	for c, nodes := range components {
		ids[c] = nodeIDs(nodes)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i][0] < ids[j][0] })

	for _, comp := range ids {
		start, end := -1, math.MaxInt
		for _, id := range comp {
			if id < offset {
				start = max(start, current[id].Start)
			} else {
				end = min(end, previous[id-offset].End)
			}
		}
		if start > end {
			if err := a.alignRange(l, end, start, prev+1, next, "internal"); err != nil {
				return err
			}
		}
	}
	return nil
}

func nodeIDs(nodes []graph.Node) []int {
	ids := make([]int, len(nodes))
	for i, n := range nodes {
		ids[i] = int(n.ID())
	}
	sort.Ints(ids)
	return ids
}

// extend searches the parts before (upstream) or after index one at a time.
// Hits of the closest part with hits are clustered by position and each
// cluster is widened by a tenth of the intron budget, more for every part
// without hits in between.
func (a *analysis) extend(l lines, index int, upstream bool) error {
	dir, end := 1, len(l)
	if upstream {
		dir, end = -1, -1
	}
	d := a.maxIntron / 10
	add := d
	if upstream {
		add = 0
	}
	var anchors []int
	f := 0
	for ; index+dir != end; index += dir {
		if cur := l[index]; len(cur) > 0 {
			anchors = anchors[:0]
			for _, h := range cur {
				if upstream {
					anchors = append(anchors, h.Start)
				} else {
					anchors = append(anchors, h.End)
				}
			}
			sort.Ints(anchors)
			f = 1
		} else {
			f++
		}
		part := index + dir
		from := 0
		for i := 1; i <= len(anchors); i++ {
			if i < len(anchors) && anchors[i]-anchors[i-1] <= d {
				continue
			}
			lo := anchors[from] - f*(d-add)
			hi := anchors[i-1] + f*add
			if err := a.alignRange(l, lo, hi, part, part+1, direction(upstream)); err != nil {
				return err
			}
			from = i
		}
	}
	return nil
}

func direction(upstream bool) string {
	if upstream {
		return "upstream"
	}
	return "downstream"
}

// alignRange aligns the parts [from, to) against the strand bases after
// position lo up to position hi.
func (a *analysis) alignRange(l lines, lo, hi, from, to int, info string) error {
	lo, hi = max(lo, 0), min(hi, a.view.Len())
	if lo >= hi {
		return nil
	}
	region := a.view.Slice(lo, hi)
	for i := from; i < to; i++ {
		if err := a.check(); err != nil {
			return err
		}
		l[i] = append(l[i], a.alignPart(i, lo, region, info)...)
	}
	return nil
}

// alignPart finds local alignments of part i in the three frames of region,
// which starts after strand position lo. The region is split at stop codons;
// for the last part a stop codon stays with the piece before it. Hits
// scoring below the hit threshold relative to the best one are dropped.
func (a *analysis) alignPart(i, lo int, region, info string) []*hit.Hit {
	query := a.part(i)
	findStart := i == 0 && strings.HasPrefix(query, "M")
	lastPart := i == len(a.tr.PartSeqs)-1
	best := 0
	var found []*hit.Hit

	for frame := 0; frame < 3; frame++ {
		pieces := strings.Split(a.translate(region[min(frame, len(region)):]), "*")
		pos := frame
		for k, piece := range pieces {
			off := 0
			if k+1 < len(pieces) {
				if lastPart {
					piece += "*"
				} else {
					off = 1
				}
			}
			next := pos + 3*(len(piece)+off)
			if piece == "" || (findStart && len(query) <= 2*missingAA && strings.IndexByte(piece, 'M') < 0) {
				pos = next
				continue
			}
			al := a.ws.local(query, piece)
			if score := al.Score(); score > 0 && float64(score) >= float64(best)*a.p.HitThreshold {
				m := strings.IndexByte(piece, 'M')
				if !findStart || al.StartA > missingAA || (m >= 0 && m < al.EndB) {
					start := lo + pos + 3*al.StartB + 1
					found = append(found, &hit.Hit{
						ID:          a.ws.newID(),
						QueryID:     a.tr.QueryID(i),
						Gene:        a.tr.GeneID,
						Part:        a.tr.Parts[i],
						Contig:      a.contig,
						Forward:     a.view.Forward(),
						QueryStart:  al.StartA + 1,
						QueryEnd:    al.EndA,
						QueryLength: len(query),
						Start:       start,
						End:         start + 3*(al.EndB-al.StartB) - 1,
						Score:       score,
						QueryAlign:  al.A,
						TargetAlign: al.B,
						Info:        info + ";",
					})
					best = max(best, score)
				}
			}
			pos = next
		}
	}

	out := found[:0]
	for _, h := range found {
		if float64(h.Score) >= a.p.HitThreshold*float64(best) {
			out = append(out, h)
		}
	}
	return out
}
