package predict

import "github.com/inodb/vibe-gemoma/internal/hit"

// informative reports whether a hit covers most of its part. Only
// informative hits delimit regions.
func informative(l, queryLength int) bool {
	return float64(l)/max(20, float64(queryLength)) >= 0.9
}

// segment splits the hits of a strand, sorted by start, into regions. A new
// region starts wherever an informative hit does not belong to a later part
// than the previous informative hit. Regions are half-open index ranges
// into all; neighbouring regions overlap in their uninformative hits.
func (a *analysis) segment(all []*hit.Hit) [][2]int {
	var regions [][2]int
	previous, last, prevPart := -1, -1, -1
	for j, h := range all {
		if !informative(h.AlignedLen(), h.QueryLength) {
			continue
		}
		part := a.partIndex(h)
		if previous >= 0 && prevPart >= part {
			regions = append(regions, [2]int{last + 1, j})
			last = previous
		}
		previous, prevPart = j, part
	}
	return append(regions, [2]int{last + 1, len(all)})
}

// analyzeStrand predicts the best gene model of every region of one
// contig strand. l holds all hits of the strand.
func (a *analysis) analyzeStrand(l lines) ([]*Solution, error) {
	t, err := a.forwardDP(l, nil)
	if err != nil {
		return nil, err
	}
	top := t.bestValue
	filtered, err := a.reduce(t, float64(top)*a.p.HitThreshold, a.p.AvoidStop)
	if err != nil {
		return nil, err
	}

	all := filtered.all()
	regions := a.segment(all)
	backup := false
	if len(regions) > 1 {
		var out []*Solution
		for _, r := range regions {
			region := make(lines, len(l))
			for _, h := range all[r[0]:r[1]] {
				i := a.partIndex(h)
				region[i] = append(region[i], h)
			}
			rt, err := a.forwardDP(region, nil)
			if err != nil {
				return nil, err
			}
			if float64(rt.bestValue) < float64(top)*a.p.RegionThreshold {
				continue
			}
			s, err := a.analyzeRegion(region, false)
			if err != nil {
				return nil, err
			}
			if s != nil {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out, nil
		}
		backup = true
	}
	s, err := a.analyzeRegion(filtered, backup)
	if err != nil || s == nil {
		return nil, err
	}
	return []*Solution{s}, nil
}

// analyzeRegion completes a region with gap filling and returns its best
// gene model, or nil if the region has no hits.
func (a *analysis) analyzeRegion(region lines, backup bool) (*Solution, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	l := make(lines, len(region))
	for i := range region {
		l[i] = append(l[i], region[i]...)
	}
	cut, err := a.fillGaps(l)
	if err != nil {
		return nil, err
	}

	firstM := a.tr.StartsWithM()
	lastStop := a.tr.EndsWithStop()
	n := len(l)
	for i, list := range l {
		for _, h := range list {
			a.derivedOf(h)
			first, last := i == 0 && firstM, i == n-1 && lastStop
			if first || last {
				a.setBorderConstraints(h, first, last)
			}
		}
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	l.sort()
	if l.empty() {
		return nil, nil
	}

	t, err := a.forwardDP(l, make(spliceMemo))
	if err != nil {
		return nil, err
	}
	s, err := a.backtrack(t)
	if err != nil || s == nil {
		return nil, err
	}
	s.Backup, s.Cut = backup, cut
	return s, nil
}
