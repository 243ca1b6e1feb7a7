package predict

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-gemoma/internal/align"
	"github.com/inodb/vibe-gemoma/internal/codon"
	"github.com/inodb/vibe-gemoma/internal/genome"
	"github.com/inodb/vibe-gemoma/internal/hit"
	"github.com/inodb/vibe-gemoma/internal/reference"
)

var backCodon = map[byte]string{
	'A': "GCT", 'C': "TGT", 'D': "GAT", 'E': "GAA", 'F': "TTT",
	'G': "GGT", 'H': "CAT", 'I': "ATT", 'K': "AAA", 'L': "CTG",
	'M': "ATG", 'N': "AAC", 'P': "CCT", 'Q': "CAA", 'R': "CGT",
	'S': "TCT", 'T': "ACT", 'V': "GTT", 'W': "TGG", 'Y': "TAT",
	'*': "TAA",
}

// encode back-translates a protein with one fixed codon per residue.
func encode(protein string) string {
	var sb strings.Builder
	for i := 0; i < len(protein); i++ {
		sb.WriteString(backCodon[protein[i]])
	}
	return sb.String()
}

func testCosts() align.Costs {
	return align.Costs{Matrix: align.BLOSUM62(), GapOpen: 11, GapExtend: 1}
}

func selfScore(s string) int {
	return align.Score(testCosts(), s, s)
}

var (
	flank  = strings.Repeat("C", 60)
	intron = "GT" + strings.Repeat("C", 40) + "AG"
)

// exactHit returns a hit aligning part i of tr without gaps at strand
// position start.
func exactHit(tr *reference.Transcript, i int, contig string, forward bool, start int) hit.Hit {
	q := tr.PartSeqs[i]
	return hit.Hit{
		QueryID:     tr.QueryID(i),
		Gene:        tr.GeneID,
		Part:        tr.Parts[i],
		Contig:      contig,
		Forward:     forward,
		QueryStart:  1,
		QueryEnd:    len(q),
		QueryLength: len(q),
		Start:       start,
		End:         start + 3*len(q) - 1,
		Score:       selfScore(q),
		QueryAlign:  q,
		TargetAlign: q,
	}
}

// layout is a synthetic gene: exons separated by canonical introns between
// two flanks. starts holds the 1-based strand start of every exon.
type layout struct {
	seq    string
	starts []int
}

func buildLayout(exons ...string) layout {
	var sb strings.Builder
	sb.WriteString(flank)
	var starts []int
	for i, e := range exons {
		if i > 0 {
			sb.WriteString(intron)
		}
		starts = append(starts, sb.Len()+1)
		sb.WriteString(e)
	}
	sb.WriteString(flank)
	return layout{seq: sb.String(), starts: starts}
}

func testResources(seqs map[string]string) *Resources {
	return NewResources(genome.New(seqs), nil, codon.Standard(codon.Ambiguous), testCosts())
}

func testParams() Params {
	p := DefaultParams()
	p.Timeout = time.Minute
	return p
}

func runJob(t *testing.T, res *Resources, p Params, job *Job) *Result {
	t.Helper()
	r := NewPredictor(res, p).Predict(context.Background(), job)
	require.NotNil(t, r)
	return r
}

func partsOf(p *Prediction) []int {
	var out []int
	for _, e := range p.Exons {
		out = append(out, e.Part)
	}
	return out
}
