package genome

import "github.com/inodb/vibe-gemoma/internal/codon"

// View exposes one strand of a contig in strand coordinates: positions count
// along the direction of transcription, so on the reverse strand position 1
// is the last base of the contig and bases are complemented. No copy of the
// contig is made.
type View struct {
	seq     []byte
	forward bool
}

// Forward reports whether the view is the forward strand.
func (v View) Forward() bool {
	return v.forward
}

// Len returns the contig length.
func (v View) Len() int {
	return len(v.seq)
}

// Slice returns bases [from, to) (0-based strand coordinates). The range is
// clipped to the contig.
func (v View) Slice(from, to int) string {
	n := len(v.seq)
	if from < 0 {
		from = 0
	}
	if to > n {
		to = n
	}
	if from >= to {
		return ""
	}
	if v.forward {
		return string(v.seq[from:to])
	}
	out := make([]byte, to-from)
	for i := range out {
		out[i] = codon.Complement(v.seq[n-1-from-i])
	}
	return string(out)
}

// ToGenomic converts a 1-based strand interval to 1-based forward-strand
// coordinates with start <= end.
func (v View) ToGenomic(start, end int) (int, int) {
	if v.forward {
		return start, end
	}
	n := len(v.seq)
	return n - end + 1, n - start + 1
}

// ToStrand converts a 1-based forward-strand interval to strand coordinates.
func (v View) ToStrand(start, end int) (int, int) {
	return v.ToGenomic(start, end)
}
