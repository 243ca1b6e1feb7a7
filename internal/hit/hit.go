// Package hit parses tabular search hits of reference CDS parts against a
// target genome and provides the hit record used by the predictor.
package hit

import (
	"fmt"
	"strconv"
	"strings"
)

// Column layout of the tabular search output (tblastn or mmseqs, 23
// columns with aligned sequences and query length).
const (
	colQueryID     = 0
	colTargetID    = 1
	colQueryStart  = 6
	colQueryEnd    = 7
	colTargetStart = 8
	colTargetEnd   = 9
	colEValue      = 10
	colScore       = 13
	colQueryAlign  = 20
	colTargetAlign = 21
	colQueryLength = 22

	minColumns = 23
)

// Hit is one local alignment of a reference CDS part against one strand of
// a contig. Start and End are 1-based strand coordinates (see
// genome.View), so Start <= End on both strands and Start is the first base
// of the first aligned codon.
type Hit struct {
	ID int

	QueryID string
	Gene    string
	Part    int

	Contig  string
	Forward bool

	QueryStart  int
	QueryEnd    int
	QueryLength int

	Start int
	End   int

	Score       int
	QueryAlign  string
	TargetAlign string
	EValue      float64

	// Info records how the hit was obtained and modified.
	Info string
}

// Len returns the number of genomic bases covered by the hit.
func (h *Hit) Len() int {
	return h.End - h.Start + 1
}

// AlignedLen returns the number of query residues covered by the hit.
func (h *Hit) AlignedLen() int {
	return h.QueryEnd - h.QueryStart + 1
}

// Target returns the aligned target residues without gaps.
func (h *Hit) Target() string {
	return strings.ReplaceAll(h.TargetAlign, "-", "")
}

func (h *Hit) String() string {
	strand := "+"
	if !h.Forward {
		strand = "-"
	}
	return fmt.Sprintf("%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s",
		h.QueryID, h.Contig, strand, h.QueryStart, h.QueryEnd, h.QueryLength,
		h.Start, h.End, h.Score, h.QueryAlign, h.TargetAlign, h.Info)
}

// SplitQueryID splits a query id "gene_part" into gene and part number.
func SplitQueryID(id string) (gene string, part int, err error) {
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("query id %q is not of the form gene_part", id)
	}
	part, err = strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("query id %q: part is not a number", id)
	}
	return id[:i], part, nil
}

// Record is a parsed search-hit line in genomic coordinates, before strand
// normalization.
type Record struct {
	Hit
	// GenomicStart and GenomicEnd are the target coordinates as reported,
	// GenomicStart > GenomicEnd on the reverse strand.
	GenomicStart int
	GenomicEnd   int
}

// ParseRecord parses one tab-separated search-hit line.
func ParseRecord(line string) (*Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < minColumns {
		return nil, fmt.Errorf("expected at least %d columns, got %d", minColumns, len(fields))
	}

	r := &Record{}
	var err error
	r.QueryID = fields[colQueryID]
	if r.Gene, r.Part, err = SplitQueryID(r.QueryID); err != nil {
		return nil, err
	}
	r.Contig = fields[colTargetID]

	ints := []struct {
		col int
		dst *int
	}{
		{colQueryStart, &r.QueryStart},
		{colQueryEnd, &r.QueryEnd},
		{colTargetStart, &r.GenomicStart},
		{colTargetEnd, &r.GenomicEnd},
		{colScore, &r.Score},
		{colQueryLength, &r.QueryLength},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(strings.TrimSpace(fields[f.col]))
		if err != nil {
			return nil, fmt.Errorf("column %d: invalid number %q", f.col+1, fields[f.col])
		}
		*f.dst = v
	}
	r.EValue, err = strconv.ParseFloat(strings.TrimSpace(fields[colEValue]), 64)
	if err != nil {
		return nil, fmt.Errorf("column %d: invalid e-value %q", colEValue+1, fields[colEValue])
	}

	r.QueryAlign = fields[colQueryAlign]
	r.TargetAlign = maskAmbiguous(fields[colTargetAlign])
	if len(r.QueryAlign) != len(r.TargetAlign) {
		return nil, fmt.Errorf("aligned sequences differ in length: %d != %d", len(r.QueryAlign), len(r.TargetAlign))
	}
	if r.QueryStart < 1 || r.QueryEnd < r.QueryStart {
		return nil, fmt.Errorf("invalid query interval %d-%d", r.QueryStart, r.QueryEnd)
	}
	if r.GenomicStart < 1 || r.GenomicEnd < 1 || r.GenomicStart == r.GenomicEnd {
		return nil, fmt.Errorf("invalid target interval %d-%d", r.GenomicStart, r.GenomicEnd)
	}

	r.Forward = r.GenomicStart < r.GenomicEnd
	r.Info = "search;"
	return r, nil
}

// Normalize converts the record to a hit in strand coordinates of a contig
// with the given length.
func (r *Record) Normalize(contigLen int) (Hit, error) {
	lo, hi := r.GenomicStart, r.GenomicEnd
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi > contigLen {
		return Hit{}, fmt.Errorf("target interval %d-%d exceeds contig %s of length %d", lo, hi, r.Contig, contigLen)
	}
	h := r.Hit
	if r.Forward {
		h.Start, h.End = lo, hi
	} else {
		h.Start, h.End = contigLen-hi+1, contigLen-lo+1
	}
	return h, nil
}

// maskAmbiguous replaces the ambiguous residue codes B, J and Z by X.
func maskAmbiguous(s string) string {
	if !strings.ContainsAny(s, "BJZ") {
		return s
	}
	b := []byte(s)
	for i, c := range b {
		switch c {
		case 'B', 'J', 'Z':
			b[i] = 'X'
		}
	}
	return string(b)
}
