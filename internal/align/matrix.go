package align

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

//go:embed data/blosum62.txt
var blosum62 string

// Matrix is a symmetric amino acid substitution matrix. Symbols missing from
// the alphabet score like 'X'; lookups are case-insensitive.
type Matrix struct {
	alphabet string
	index    [256]uint8
	scores   []int
}

// BLOSUM62 returns the built-in BLOSUM62 matrix (NCBI layout, '*' included).
func BLOSUM62() *Matrix {
	m, err := ParseMatrix(strings.NewReader(blosum62))
	if err != nil {
		panic(err)
	}
	return m
}

// LoadMatrix reads a substitution matrix in NCBI text layout.
func LoadMatrix(path string) (*Matrix, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open substitution matrix: %w", err)
	}
	defer fh.Close()

	m, err := ParseMatrix(fh)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// ParseMatrix parses a substitution matrix: '#' comment lines, a header line
// listing the symbols, and one row per symbol starting with the symbol.
func ParseMatrix(r io.Reader) (*Matrix, error) {
	var header []string
	rows := make(map[byte][]int)
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if header == nil {
			header = fields
			continue
		}
		if len(fields) != len(header)+1 || len(fields[0]) != 1 {
			return nil, fmt.Errorf("line %d: expected symbol and %d scores: %q", lineNum, len(header), line)
		}
		scores := make([]int, len(header))
		for i, f := range fields[1:] {
			v, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid score %q: %w", lineNum, f, err)
			}
			scores[i] = v
		}
		rows[upper(fields[0][0])] = scores
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read matrix: %w", err)
	}
	if len(header) == 0 {
		return nil, fmt.Errorf("empty substitution matrix")
	}

	n := len(header)
	m := &Matrix{scores: make([]int, n*n)}
	var sb strings.Builder
	for i, h := range header {
		if len(h) != 1 {
			return nil, fmt.Errorf("invalid symbol %q in header", h)
		}
		sym := upper(h[0])
		row, ok := rows[sym]
		if !ok {
			return nil, fmt.Errorf("missing row for symbol %c", sym)
		}
		copy(m.scores[i*n:], row)
		sb.WriteByte(sym)
	}
	m.alphabet = sb.String()
	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			if m.scores[i*n+j] != m.scores[j*n+i] {
				return nil, fmt.Errorf("matrix is not symmetric at %c/%c", m.alphabet[i], m.alphabet[j])
			}
		}
	}

	unknown := strings.IndexByte(m.alphabet, 'X')
	if unknown < 0 {
		return nil, fmt.Errorf("matrix lacks the unknown residue X")
	}
	for b := 0; b < 256; b++ {
		m.index[b] = uint8(unknown)
	}
	for i := 0; i < n; i++ {
		sym := m.alphabet[i]
		m.index[sym] = uint8(i)
		m.index[lower(sym)] = uint8(i)
	}
	return m, nil
}

// Alphabet returns the symbols of the matrix in header order.
func (m *Matrix) Alphabet() string {
	return m.alphabet
}

// Score returns the substitution score of two residues.
func (m *Matrix) Score(a, b byte) int {
	return m.scores[int(m.index[a])*len(m.alphabet)+int(m.index[b])]
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}
