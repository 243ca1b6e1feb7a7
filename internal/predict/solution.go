package predict

import (
	"math"
	"strings"

	"github.com/inodb/vibe-gemoma/internal/hit"
)

// Solution is one chain of hits on a contig strand in transcription order.
type Solution struct {
	Contig  string
	Forward bool
	Hits    []*hit.Hit
	Score   int

	// Backup is set if the strand had several regions and none passed the
	// region threshold.
	Backup bool
	// Cut is set if gap filling dropped hits at the per-part cap.
	Cut bool

	parts        int
	firstResidue byte
}

func (a *analysis) newSolution(path []*hit.Hit) *Solution {
	s := &Solution{
		Contig:       a.contig,
		Forward:      a.view.Forward(),
		Hits:         append([]*hit.Hit(nil), path...),
		Score:        math.MinInt,
		firstResidue: '!',
	}
	seen := make(map[int]bool, len(path))
	for _, h := range path {
		if !seen[h.Part] {
			seen[h.Part] = true
			s.parts++
		}
	}
	if len(path) > 0 && a.partIndex(path[0]) == 0 {
		if r := a.borderOf(path[0]).firstResidue; r != 0 {
			s.firstResidue = r
		}
	}
	return s
}

// span is the distance between the first and the last hit start.
func (s *Solution) span() int {
	lo, hi := math.MaxInt, math.MinInt
	for _, h := range s.Hits {
		lo, hi = min(lo, h.Start), max(hi, h.Start)
	}
	return hi - lo
}

// similar compares two solutions by score, matched parts, number of hits
// and start residue, in that order, and returns the first difference. A
// negative value means s is better.
func similar(s, o *Solution) int {
	if d := o.Score - s.Score; d != 0 {
		return d
	}
	if d := o.parts - s.parts; d != 0 {
		return d
	}
	if d := len(s.Hits) - len(o.Hits); d != 0 {
		return d
	}
	if s.firstResidue != o.firstResidue {
		switch {
		case s.firstResidue == 'M':
			return -1
		case o.firstResidue == 'M':
			return 1
		}
	}
	return 0
}

// compareSolutions orders solutions from best to worst. Solutions equal in
// every scoring criterion are ordered by span and then by location, so the
// order is total.
func compareSolutions(s, o *Solution) int {
	if d := similar(s, o); d != 0 {
		return d
	}
	if d := s.span() - o.span(); d != 0 {
		return d
	}
	if d := strings.Compare(s.Contig, o.Contig); d != 0 {
		return d
	}
	if s.Forward != o.Forward {
		if s.Forward {
			return -1
		}
		return 1
	}
	if len(s.Hits) > 0 && len(o.Hits) > 0 {
		return s.Hits[0].Start - o.Hits[0].Start
	}
	return 0
}
