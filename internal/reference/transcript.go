// Package reference loads the reference side of a prediction: the assignment
// of CDS parts to transcripts, the part sequences and reference proteins.
package reference

import (
	"strconv"
	"strings"
)

// Transcript is one reference transcript. Parts are the CDS part ids in
// transcript order and PartSeqs their protein sequences. It is read-only
// once loaded.
type Transcript struct {
	GeneID string
	ID     string
	Parts  []int
	Phases []int

	RefContig string
	RefStrand string
	RefStart  int
	RefEnd    int

	// SplitAA holds, per part boundary, residues encoded by a codon split by
	// the reference intron ("" if none).
	SplitAA []string
	// MaxIntron is the largest reference intron of the gene, 0 if unknown.
	MaxIntron int

	PartSeqs []string
	Protein  string

	index     map[int]int
	cumLength []int
	revCum    []int
}

// Name returns the gene part prefix used in query ids ("gene_").
func (t *Transcript) Name() string {
	return t.GeneID + "_"
}

// QueryID returns the query id of the i-th part.
func (t *Transcript) QueryID(i int) string {
	return t.GeneID + "_" + strconv.Itoa(t.Parts[i])
}

// NumParts returns the number of CDS parts.
func (t *Transcript) NumParts() int {
	return len(t.Parts)
}

// PartIndex returns the position of a part id within the transcript.
func (t *Transcript) PartIndex(part int) (int, bool) {
	i, ok := t.index[part]
	return i, ok
}

// Length returns the residue count of the i-th part.
func (t *Transcript) Length(i int) int {
	return len(t.PartSeqs[i])
}

// CumLength returns the number of reference residues before part i,
// split residues included.
func (t *Transcript) CumLength(i int) int {
	return t.cumLength[i]
}

// RevCumLength returns the number of reference residues after part i.
func (t *Transcript) RevCumLength(i int) int {
	return t.revCum[i]
}

// TotalLength returns the reference length in residues.
func (t *Transcript) TotalLength() int {
	n := len(t.Parts)
	if n == 0 {
		return 0
	}
	return t.cumLength[n-1] + t.Length(n-1)
}

// StartsWithM reports whether the first part starts with methionine.
func (t *Transcript) StartsWithM() bool {
	return len(t.PartSeqs) > 0 && strings.HasPrefix(t.PartSeqs[0], "M")
}

// EndsWithStop reports whether the last part ends with a stop.
func (t *Transcript) EndsWithStop() bool {
	n := len(t.PartSeqs)
	return n > 0 && strings.HasSuffix(t.PartSeqs[n-1], "*")
}

// ProteinStartsWithM reports whether the reference protein, or the first
// part if no protein is known, starts with methionine.
func (t *Transcript) ProteinStartsWithM() bool {
	if t.Protein != "" {
		return t.Protein[0] == 'M'
	}
	return t.StartsWithM()
}

// ProteinEndsWithStop is the stop codon counterpart of ProteinStartsWithM.
func (t *Transcript) ProteinEndsWithStop() bool {
	if t.Protein != "" {
		return t.Protein[len(t.Protein)-1] == '*'
	}
	return t.EndsWithStop()
}

// Between returns the reference residues from residue qStart (1-based) of
// part p1 to residue qEnd of part p2, including intermediate parts and
// split residues.
func (t *Transcript) Between(p1, qStart, p2, qEnd int) string {
	if p1 == p2 {
		s := t.PartSeqs[p1]
		if qStart < 1 {
			qStart = 1
		}
		if qEnd > len(s) {
			qEnd = len(s)
		}
		if qStart > qEnd {
			return ""
		}
		return s[qStart-1 : qEnd]
	}
	var sb strings.Builder
	sb.WriteString(t.PartSeqs[p1][min(max(qStart-1, 0), len(t.PartSeqs[p1])):])
	for p := p1; p < p2; p++ {
		if p < len(t.SplitAA) {
			sb.WriteString(t.SplitAA[p])
		}
		if p+1 < p2 {
			sb.WriteString(t.PartSeqs[p+1])
		}
	}
	sb.WriteString(t.PartSeqs[p2][:min(max(qEnd, 0), len(t.PartSeqs[p2]))])
	return sb.String()
}

// init computes the lookup tables. It is called by the loaders and by tests
// that build transcripts by hand.
func (t *Transcript) init() {
	n := len(t.Parts)
	t.index = make(map[int]int, n)
	for i, p := range t.Parts {
		t.index[p] = i
	}
	split := func(i int) int {
		if i < len(t.SplitAA) {
			return len(t.SplitAA[i])
		}
		return 0
	}
	t.cumLength = make([]int, n)
	for i := 1; i < n; i++ {
		t.cumLength[i] = t.cumLength[i-1] + t.Length(i-1) + split(i-1)
	}
	t.revCum = make([]int, n)
	for i := n - 2; i >= 0; i-- {
		t.revCum[i] = t.revCum[i+1] + t.Length(i+1) + split(i)
	}
}

// NewTranscript builds a transcript from part sequences, numbering parts from 0.
func NewTranscript(geneID, id string, partSeqs ...string) *Transcript {
	t := &Transcript{GeneID: geneID, ID: id, PartSeqs: partSeqs}
	t.Parts = make([]int, len(partSeqs))
	for i := range partSeqs {
		t.Parts[i] = i
	}
	t.init()
	return t
}
