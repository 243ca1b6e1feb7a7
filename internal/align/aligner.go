// Package align implements pairwise protein alignment with affine gap costs.
//
// Alignments minimise cost: a substitution costs the negated matrix score and
// a gap of length L costs GapOpen + L*GapExtend. Scores reported to callers
// are negated costs.
package align

import "math"

// Mode selects global or local alignment.
type Mode uint8

const (
	Global Mode = iota
	Local
)

func (m Mode) String() string {
	if m == Local {
		return "local"
	}
	return "global"
}

// Costs is an affine cost model.
type Costs struct {
	Matrix    *Matrix
	GapOpen   int
	GapExtend int
}

// Gap returns the cost of a gap of length l.
func (c Costs) Gap(l int) int {
	if l <= 0 {
		return 0
	}
	return c.GapOpen + l*c.GapExtend
}

const inf = math.MaxInt32 / 4

// traceback bits stored per cell
const (
	fromDiag uint8 = iota
	fromLeft
	fromTop
	fromStop

	leftOpened uint8 = 1 << 2
	topOpened  uint8 = 1 << 3
)

// Aligner computes alignments of a against b with three cost matrices:
// best cost in any state, best cost ending in a gap that consumes b (left),
// and best cost ending in a gap that consumes a (top). Buffers are reused
// between calls, so an Aligner must not be shared between goroutines.
type Aligner struct {
	costs Costs
	mode  Mode
	a, b  string
	cols  int

	d   [3][]int32
	dir []uint8
}

// NewAligner returns an aligner for the given cost model.
func NewAligner(costs Costs) *Aligner {
	return &Aligner{costs: costs}
}

// Costs returns the cost model of the aligner.
func (al *Aligner) Costs() Costs {
	return al.costs
}

// Compute fills the cost matrices for aligning a against b.
func (al *Aligner) Compute(mode Mode, a, b string) {
	al.mode, al.a, al.b = mode, a, b
	rows, cols := len(a)+1, len(b)+1
	al.cols = cols
	size := rows * cols
	for k := range al.d {
		if cap(al.d[k]) < size {
			al.d[k] = make([]int32, size)
		}
		al.d[k] = al.d[k][:size]
	}
	if cap(al.dir) < size {
		al.dir = make([]uint8, size)
	}
	al.dir = al.dir[:size]

	m, left, top := al.d[0], al.d[1], al.d[2]
	open := int32(al.costs.GapOpen + al.costs.GapExtend)
	ext := int32(al.costs.GapExtend)
	local := mode == Local

	for i := 0; i < rows; i++ {
		row := i * cols
		for j := 0; j < cols; j++ {
			c := row + j
			if i == 0 && j == 0 || local && (i == 0 || j == 0) {
				m[c], left[c], top[c], al.dir[c] = 0, inf, inf, fromStop
				continue
			}
			var dir uint8

			l := int32(inf)
			if j > 0 {
				l = left[c-1] + ext
				if o := m[c-1] + open; o < l {
					l = o
					dir |= leftOpened
				}
			}
			t := int32(inf)
			if i > 0 {
				t = top[c-cols] + ext
				if o := m[c-cols] + open; o < t {
					t = o
					dir |= topOpened
				}
			}

			best, from := int32(inf), fromStop
			if i > 0 && j > 0 {
				best = m[c-cols-1] - int32(al.costs.Matrix.Score(a[i-1], b[j-1]))
				from = fromDiag
			}
			if l < best {
				best, from = l, fromLeft
			}
			if t < best {
				best, from = t, fromTop
			}
			if local && best > 0 {
				best, from = 0, fromStop
			}
			m[c], left[c], top[c] = best, l, t
			al.dir[c] = dir | from
		}
	}
}

// Cost returns the best cost of aligning the first i residues of a with the
// first j residues of b. In local mode this is the best cost of an alignment
// ending at (i, j).
func (al *Aligner) Cost(i, j int) int {
	return int(al.d[0][i*al.cols+j])
}

// endsInMatch reports whether the best alignment ending at (i, j) ends with
// an aligned residue pair rather than a gap.
func (al *Aligner) endsInMatch(i, j int) bool {
	c := i*al.cols + j
	return al.d[0][c] < al.d[1][c] && al.d[0][c] < al.d[2][c]
}

// Align computes and returns the optimal alignment of a against b.
func (al *Aligner) Align(mode Mode, a, b string) Alignment {
	al.Compute(mode, a, b)
	return al.Result()
}

// Alignment is one optimal alignment. Start and End are 0-based, half-open
// residue ranges of the aligned parts of both sequences.
type Alignment struct {
	A, B         string
	Cost         int
	StartA, EndA int
	StartB, EndB int
}

// Score returns the negated cost.
func (a Alignment) Score() int {
	return -a.Cost
}

// Result traces back the alignment of the last Compute call. Global
// alignments end in the bottom right cell, local ones in the first cell of
// minimal cost.
func (al *Aligner) Result() Alignment {
	ei, ej := len(al.a), len(al.b)
	if al.mode == Local {
		best := int32(0)
		ei, ej = 0, 0
		for i := 0; i <= len(al.a); i++ {
			for j := 0; j <= len(al.b); j++ {
				if v := al.d[0][i*al.cols+j]; v < best {
					best, ei, ej = v, i, j
				}
			}
		}
	}
	res := Alignment{Cost: al.Cost(ei, ej), EndA: ei, EndB: ej}

	var ra, rb []byte
	i, j, state := ei, ej, fromDiag
	for {
		c := i*al.cols + j
		switch state {
		case fromLeft:
			ra, rb = append(ra, '-'), append(rb, al.b[j-1])
			if al.dir[c]&leftOpened != 0 {
				state = fromDiag
			}
			j--
			continue
		case fromTop:
			ra, rb = append(ra, al.a[i-1]), append(rb, '-')
			if al.dir[c]&topOpened != 0 {
				state = fromDiag
			}
			i--
			continue
		}
		from := al.dir[c] & 3
		if from == fromStop {
			break
		}
		if from == fromDiag {
			ra, rb = append(ra, al.a[i-1]), append(rb, al.b[j-1])
			i--
			j--
			continue
		}
		state = from
	}
	res.StartA, res.StartB = i, j
	reverse(ra)
	reverse(rb)
	res.A, res.B = string(ra), string(rb)
	return res
}

func reverse(s []byte) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Reverse returns s reversed.
func Reverse(s string) string {
	b := []byte(s)
	reverse(b)
	return string(b)
}
