package predict

import (
	"strings"

	"github.com/inodb/vibe-gemoma/internal/align"
	"github.com/inodb/vibe-gemoma/internal/codon"
	"github.com/inodb/vibe-gemoma/internal/evidence"
)

// CDS is a coding segment of a prediction: one or more exons that touch on
// the strand. Start and End are strand coordinates.
type CDS struct {
	Start, End int
	// GenomicStart and GenomicEnd are forward strand coordinates.
	GenomicStart, GenomicEnd int
	Phase                    int

	// AcceptorEvidence and DonorEvidence report whether an intron of the
	// evidence ends at the start or starts after the end of the segment.
	AcceptorEvidence bool
	DonorEvidence    bool
	Coverage         evidence.Stats
}

// EvidenceSummary counts the splice sites and introns of a prediction that
// RNA-seq evidence confirms. Donors exclude the last segment, acceptors the
// first.
type EvidenceSummary struct {
	HasIntrons  bool
	HasCoverage bool

	Acceptors, ConfirmedAcceptors int
	Donors, ConfirmedDonors       int
	Introns, ConfirmedIntrons     int
	// MinSplitReads is the smallest read count of the introns, 0 if any
	// intron is unconfirmed.
	MinSplitReads int
	Coverage      evidence.Stats
}

// Comparison relates the predicted protein to the reference protein.
type Comparison struct {
	MinimalScore int
	Score        int
	OptimalScore int
	Identity     float64
	Positives    float64
	MaxGap       int
	RefLength    int
	PredLength   int
}

// Prediction is one refined gene model.
type Prediction struct {
	GeneID       string
	TranscriptID string
	// Rank is 0 for the best prediction of a transcript.
	Rank int
	// Remaining is the number of solutions ranked at or below this one.
	Remaining int

	Contig  string
	Forward bool
	// Start and End are genomic coordinates.
	Start, End int
	Score      int

	Exons   []Exon
	CDS     []CDS
	Protein string

	Backup, Cut bool
	// Similar compares the prediction with the next ranked solution, see
	// similar. HasSimilar is false if there is none.
	Similar    int
	HasSimilar bool

	FirstPart, LastPart bool
	// Stops counts premature stop codons; a terminal stop is not counted.
	Stops               int
	IntronGain          bool
	IntronLoss          bool

	Evidence   EvidenceSummary
	Comparison *Comparison
}

// AA returns the number of codons of the prediction.
func (p *Prediction) AA() int {
	n := 0
	for _, e := range p.Exons {
		n += e.Len()
	}
	return n / 3
}

// FirstResidue and LastResidue return the ends of the protein, '!' if it
// is empty.
func (p *Prediction) FirstResidue() byte {
	if p.Protein == "" {
		return '!'
	}
	return p.Protein[0]
}

func (p *Prediction) LastResidue() byte {
	if p.Protein == "" {
		return '!'
	}
	return p.Protein[len(p.Protein)-1]
}

// describe computes the protein, the segments and all metrics of the refined
// exons of s. The strand of s must be selected.
func (a *analysis) describe(s *Solution, exons []Exon) *Prediction {
	p := &Prediction{
		GeneID:       a.tr.GeneID,
		TranscriptID: a.tr.ID,
		Contig:       s.Contig,
		Forward:      s.Forward,
		Score:        s.Score,
		Exons:        exons,
		Backup:       s.Backup,
		Cut:          s.Cut,
	}
	first, last := exons[0], exons[len(exons)-1]
	p.Start, p.End = a.view.ToGenomic(first.Start, last.End)
	p.FirstPart = a.partIndex(&first.Hit) == 0
	p.LastPart = a.partIndex(&last.Hit) == a.tr.NumParts()-1

	var dna strings.Builder
	for i, e := range exons {
		if i > 0 {
			prev := exons[i-1]
			if prev.Part == e.Part && prev.End+1 < e.Start {
				p.IntronGain = true
			}
			if prev.Part != e.Part && prev.End+1 == e.Start {
				p.IntronLoss = true
			}
		}
		dna.WriteString(a.view.Slice(e.Start-1, e.End))
	}
	p.Protein = a.translateOutput(dna.String())
	p.Stops = strings.Count(strings.TrimSuffix(p.Protein, "*"), "*")

	a.segments(p)
	if a.tr.Protein != "" {
		p.Comparison = a.compare(a.tr.Protein, p.Protein)
	}
	return p
}

// translateOutput translates the emitted protein. Random resolution of
// ambiguous codons is replaced by X so output is reproducible.
func (a *analysis) translateOutput(dna string) string {
	code := a.res.Code
	if code.Ambiguity() == codon.Random {
		code = code.WithAmbiguity(codon.Ambiguous)
	}
	out := make([]byte, 0, len(dna)/3)
	for i := 0; i+3 <= len(dna); i += 3 {
		aa, err := code.Translate(dna[i : i+3])
		if err != nil {
			aa = 'X'
		}
		out = append(out, aa)
	}
	return string(out)
}

// segments merges touching exons into CDS segments and counts the evidence
// supporting them.
func (a *analysis) segments(p *Prediction) {
	introns := a.res.Evidence.Introns
	ev := &p.Evidence
	ev.HasIntrons = a.res.Evidence.HasIntrons()
	ev.HasCoverage = a.res.Evidence.HasCoverage() && a.res.Evidence.Coverage.HasStrand(p.Contig, p.Forward)
	fwd := p.Forward

	for i, e := range p.Exons {
		if i > 0 && p.Exons[i-1].End+1 == e.Start {
			p.CDS[len(p.CDS)-1].End = e.End
			continue
		}
		p.CDS = append(p.CDS, CDS{Start: e.Start, End: e.End, Phase: e.Phase})
	}

	ev.MinSplitReads = -1
	for i := range p.CDS {
		c := &p.CDS[i]
		c.GenomicStart, c.GenomicEnd = a.view.ToGenomic(c.Start, c.End)
		if ev.HasIntrons {
			c.AcceptorEvidence = len(introns.AcceptorsIn(p.Contig, fwd, c.Start, c.Start)) > 0
			c.DonorEvidence = len(introns.DonorsIn(p.Contig, fwd, c.End+1, c.End+1)) > 0
		}
		if ev.HasCoverage {
			c.Coverage = a.res.Evidence.Coverage.Region(p.Contig, fwd, c.Start, c.End)
			ev.Coverage.Add(c.Coverage)
		}
		if i < len(p.CDS)-1 {
			ev.Donors++
			if c.DonorEvidence {
				ev.ConfirmedDonors++
			}
		}
		if i == 0 {
			continue
		}
		ev.Acceptors++
		if c.AcceptorEvidence {
			ev.ConfirmedAcceptors++
		}
		if !ev.HasIntrons {
			continue
		}
		ev.Introns++
		reads, ok := introns.Reads(p.Contig, fwd, p.CDS[i-1].End+1, c.Start)
		if ok {
			ev.ConfirmedIntrons++
		}
		switch {
		case !ok:
			ev.MinSplitReads = 0
		case ev.MinSplitReads < 0 || reads < ev.MinSplitReads:
			ev.MinSplitReads = reads
		}
	}
	if ev.MinSplitReads < 0 {
		ev.MinSplitReads = 0
	}
}

// compare aligns the predicted protein globally against the reference.
func (a *analysis) compare(ref, pred string) *Comparison {
	al := a.ws.global(ref, pred)
	c := &Comparison{
		MinimalScore: a.gapCost(len(ref), a.tr.NumParts()),
		Score:        al.Score(),
		OptimalScore: align.Score(a.res.Costs, ref, ref),
		RefLength:    len(ref),
		PredLength:   len(pred),
	}
	var id, pos, run, state int
	for i := 0; i < len(al.A); i++ {
		x, y := al.A[i], al.B[i]
		var st int
		switch {
		case x == '-':
			st = 1
		case y == '-':
			st = 2
		}
		if st != state {
			run = 0
		}
		state = st
		if st != 0 {
			run++
			c.MaxGap = max(c.MaxGap, run)
			continue
		}
		if x == y {
			id++
			pos++
		} else if a.res.Costs.Matrix.Score(x, y) > 0 {
			pos++
		}
	}
	if n := len(al.A); n > 0 {
		c.Identity = float64(id) / float64(n)
		c.Positives = float64(pos) / float64(n)
	}
	return c
}
