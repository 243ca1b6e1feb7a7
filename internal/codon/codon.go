// Package codon translates nucleotide sequences with a configurable genetic code.
package codon

import (
	"bufio"
	"fmt"
	"math/rand"
	"strings"

	"github.com/shenwei356/xopen"
)

// Ambiguity selects how codons containing IUPAC ambiguity codes are translated
// when the possible expansions disagree on the residue.
type Ambiguity int

const (
	// Ambiguous translates to 'X'.
	Ambiguous Ambiguity = iota
	// Strict reports an error.
	Strict
	// Random picks one of the expansions weighted by frequency and returns it in lowercase.
	Random
)

// ParseAmbiguity parses a policy name (ambiguous, exception/strict, random).
func ParseAmbiguity(s string) (Ambiguity, error) {
	switch strings.ToLower(s) {
	case "", "ambiguous":
		return Ambiguous, nil
	case "exception", "strict":
		return Strict, nil
	case "random":
		return Random, nil
	}
	return Ambiguous, fmt.Errorf("unknown ambiguity policy %q", s)
}

func (a Ambiguity) String() string {
	switch a {
	case Strict:
		return "exception"
	case Random:
		return "random"
	}
	return "ambiguous"
}

// Standard genetic code: DNA codon to amino acid (single letter).
var standardTable = map[string]byte{
	"TTT": 'F', "TTC": 'F', "TTA": 'L', "TTG": 'L',
	"TCT": 'S', "TCC": 'S', "TCA": 'S', "TCG": 'S',
	"TAT": 'Y', "TAC": 'Y', "TAA": '*', "TAG": '*',
	"TGT": 'C', "TGC": 'C', "TGA": '*', "TGG": 'W',

	"CTT": 'L', "CTC": 'L', "CTA": 'L', "CTG": 'L',
	"CCT": 'P', "CCC": 'P', "CCA": 'P', "CCG": 'P',
	"CAT": 'H', "CAC": 'H', "CAA": 'Q', "CAG": 'Q',
	"CGT": 'R', "CGC": 'R', "CGA": 'R', "CGG": 'R',

	"ATT": 'I', "ATC": 'I', "ATA": 'I', "ATG": 'M',
	"ACT": 'T', "ACC": 'T', "ACA": 'T', "ACG": 'T',
	"AAT": 'N', "AAC": 'N', "AAA": 'K', "AAG": 'K',
	"AGT": 'S', "AGC": 'S', "AGA": 'R', "AGG": 'R',

	"GTT": 'V', "GTC": 'V', "GTA": 'V', "GTG": 'V',
	"GCT": 'A', "GCC": 'A', "GCA": 'A', "GCG": 'A',
	"GAT": 'D', "GAC": 'D', "GAA": 'E', "GAG": 'E',
	"GGT": 'G', "GGC": 'G', "GGA": 'G', "GGG": 'G',
}

// Code is a genetic code. It is read-only after construction and safe for
// concurrent use.
type Code struct {
	aa        [64]byte
	ambiguity Ambiguity
}

// Standard returns the standard genetic code.
func Standard(ambiguity Ambiguity) *Code {
	c, err := newCode(standardTable, ambiguity)
	if err != nil {
		panic(err)
	}
	return c
}

func newCode(table map[string]byte, ambiguity Ambiguity) (*Code, error) {
	c := &Code{ambiguity: ambiguity}
	var seen [64]bool
	for triplet, aa := range table {
		idx, ok := tripletIndex(triplet)
		if !ok {
			return nil, fmt.Errorf("invalid triplet %q", triplet)
		}
		c.aa[idx] = aa
		seen[idx] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("genetic code lacks triplet %s", indexTriplet(i))
		}
	}
	return c, nil
}

// LoadCode reads a genetic code file. Each line holds the residue, a
// separator character, and a comma-separated list of triplets:
//
//	K AAA,AAG
func LoadCode(path string, ambiguity Ambiguity) (*Code, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open genetic code: %w", err)
	}
	defer fh.Close()

	table := make(map[string]byte, 64)
	scanner := bufio.NewScanner(fh)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 3 {
			return nil, fmt.Errorf("genetic code line %d: %q", lineNum, line)
		}
		aa := line[0]
		for _, t := range strings.Split(line[2:], ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			if _, dup := table[t]; dup {
				return nil, fmt.Errorf("genetic code line %d: duplicate triplet %s", lineNum, t)
			}
			table[t] = aa
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read genetic code: %w", err)
	}
	return newCode(table, ambiguity)
}

// Ambiguity returns the policy for ambiguous codons.
func (c *Code) Ambiguity() Ambiguity {
	return c.ambiguity
}

// WithAmbiguity returns a copy of the code with another ambiguity policy.
func (c *Code) WithAmbiguity(a Ambiguity) *Code {
	cp := *c
	cp.ambiguity = a
	return &cp
}

// Translate translates a single codon. Codons with ambiguity codes are
// expanded; if all expansions agree the common residue is returned, otherwise
// the ambiguity policy applies.
func (c *Code) Translate(codon string) (byte, error) {
	if len(codon) != 3 {
		return 0, fmt.Errorf("codon %q has length %d", codon, len(codon))
	}
	if idx, ok := tripletIndex(codon); ok {
		return c.aa[idx], nil
	}

	var masks [3]byte
	for i := 0; i < 3; i++ {
		masks[i] = iupacMask[codon[i]]
		if masks[i] == 0 {
			return 0, fmt.Errorf("check nucleotide: %q", codon[i])
		}
	}
	var counts [256]int
	var residues []byte
	total := 0
	for b0 := 0; b0 < 4; b0++ {
		if masks[0]&(1<<b0) == 0 {
			continue
		}
		for b1 := 0; b1 < 4; b1++ {
			if masks[1]&(1<<b1) == 0 {
				continue
			}
			for b2 := 0; b2 < 4; b2++ {
				if masks[2]&(1<<b2) == 0 {
					continue
				}
				aa := c.aa[b0<<4|b1<<2|b2]
				if counts[aa] == 0 {
					residues = append(residues, aa)
				}
				counts[aa]++
				total++
			}
		}
	}
	if len(residues) == 1 {
		return residues[0], nil
	}
	switch c.ambiguity {
	case Strict:
		return 0, fmt.Errorf("ambiguous codon %s", codon)
	case Random:
		pick := rand.Intn(total)
		for _, aa := range residues {
			pick -= counts[aa]
			if pick < 0 {
				return toLower(aa), nil
			}
		}
	}
	return 'X', nil
}

// TranslateSequence translates a DNA sequence to amino acids. A trailing
// incomplete codon is ignored.
func (c *Code) TranslateSequence(seq string) (string, error) {
	n := len(seq) / 3 * 3
	var result strings.Builder
	result.Grow(n / 3)
	for i := 0; i < n; i += 3 {
		aa, err := c.Translate(seq[i : i+3])
		if err != nil {
			return result.String(), err
		}
		result.WriteByte(aa)
	}
	return result.String(), nil
}

// IsStop reports whether the codon translates to a stop.
func (c *Code) IsStop(codon string) bool {
	aa, err := c.Translate(codon)
	return err == nil && aa == '*'
}

// ReverseComplement returns the reverse complement of a DNA sequence.
func ReverseComplement(seq string) string {
	n := len(seq)
	var buf [64]byte
	var result []byte
	if n <= len(buf) {
		result = buf[:n]
	} else {
		result = make([]byte, n)
	}
	for i := 0; i < n; i++ {
		result[i] = Complement(seq[n-1-i])
	}
	return string(result)
}

// Complement returns the complement of a single base, ambiguity codes included.
func Complement(base byte) byte {
	if c := complementTable[base]; c != 0 {
		return c
	}
	return 'N'
}

var complementTable = [256]byte{
	'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'U': 'A',
	'R': 'Y', 'Y': 'R', 'S': 'S', 'W': 'W', 'K': 'M', 'M': 'K',
	'B': 'V', 'V': 'B', 'D': 'H', 'H': 'D', 'N': 'N',
	'a': 't', 'c': 'g', 'g': 'c', 't': 'a', 'u': 'a',
	'r': 'y', 'y': 'r', 's': 's', 'w': 'w', 'k': 'm', 'm': 'k',
	'b': 'v', 'v': 'b', 'd': 'h', 'h': 'd', 'n': 'n',
}

func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}
