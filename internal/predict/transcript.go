package predict

import (
	"sort"
	"time"
)

// Stats describes the search for one transcript.
type Stats struct {
	// Hits is the number of search hits read for the gene.
	Hits int
	// Strands is the number of contig strands with hits.
	Strands int
	// BestSum is the best chain score of the coarse pass.
	BestSum int
	// CandidateStrands is the number of strands analysed in detail.
	CandidateStrands int
	// Solutions is the number of gene models found before ranking.
	Solutions  int
	Alignments int
	Elapsed    time.Duration
}

type strandKey struct {
	contig  string
	forward bool
}

// strandLines groups the hits of the transcript by contig strand. Every hit
// is copied with a fresh id. Hits outside the region are dropped.
func (a *analysis) strandLines(job *Job) ([]strandKey, map[strandKey]lines) {
	region := job.Region
	restricted := false
	if region.Contig != "" {
		for i := range job.Hits {
			if job.Hits[i].Contig == region.Contig {
				restricted = true
				break
			}
		}
	}

	n := a.tr.NumParts()
	groups := make(map[strandKey]lines)
	for i := range job.Hits {
		h := job.Hits[i]
		p, ok := a.tr.PartIndex(h.Part)
		if !ok {
			continue
		}
		if restricted {
			if h.Contig != region.Contig ||
				(region.Strand > 0 && !h.Forward) || (region.Strand < 0 && h.Forward) {
				continue
			}
			if region.Bounded() {
				if v, err := a.res.Genome.View(h.Contig, h.Forward); err == nil {
					if s, e := v.ToGenomic(h.Start, h.End); region.Excludes(s, e) {
						continue
					}
				}
			}
		}
		k := strandKey{h.Contig, h.Forward}
		l, ok := groups[k]
		if !ok {
			l = make(lines, n)
			groups[k] = l
		}
		l[p] = append(l[p], a.copyHit(h))
	}

	keys := make([]strandKey, 0, len(groups))
	for k, l := range groups {
		l.sort()
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].contig != keys[j].contig {
			return keys[i].contig < keys[j].contig
		}
		return keys[i].forward && !keys[j].forward
	})
	return keys, groups
}

// run predicts the transcript of job and returns its ranked predictions.
func (a *analysis) run(job *Job) ([]*Prediction, error) {
	a.stats.Hits = job.Lines
	keys, groups := a.strandLines(job)

	scores := make([]int, len(keys))
	for i, k := range keys {
		if err := a.setStrand(k.contig, k.forward); err != nil {
			return nil, err
		}
		a.stats.Strands++
		t, err := a.forwardDP(groups[k], nil)
		if err != nil {
			return nil, err
		}
		scores[i] = t.bestValue
		if i == 0 || t.bestValue > a.stats.BestSum {
			a.stats.BestSum = t.bestValue
		}
	}

	threshold := float64(a.stats.BestSum) * a.p.ContigThreshold
	var solutions []*Solution
	for i, k := range keys {
		if float64(scores[i]) < threshold && len(keys) > 1 {
			continue
		}
		if err := a.setStrand(k.contig, k.forward); err != nil {
			return nil, err
		}
		a.stats.CandidateStrands++
		s, err := a.analyzeStrand(groups[k])
		if err != nil {
			return nil, err
		}
		solutions = append(solutions, s...)
	}
	a.stats.Solutions = len(solutions)

	sort.SliceStable(solutions, func(i, j int) bool {
		return compareSolutions(solutions[i], solutions[j]) < 0
	})
	var out []*Prediction
	for i := 0; i < len(solutions) && i < a.p.Predictions; i++ {
		s := solutions[i]
		exons, err := a.refine(s)
		if err != nil {
			return nil, err
		}
		p := a.describe(s, exons)
		p.Rank = i
		p.Remaining = len(solutions) - i
		if i+1 < len(solutions) {
			p.Similar, p.HasSimilar = similar(s, solutions[i+1]), true
		}
		out = append(out, p)
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return out, nil
}
