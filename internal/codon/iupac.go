package codon

// iupacMask maps IUPAC nucleotide codes to a 4-bit mask (A=1, C=2, G=4, T=8).
var iupacMask [256]byte

// baseIndex maps unambiguous bases to 0..3, everything else to -1.
var baseIndex [256]int8

const (
	maskA = 1
	maskC = 2
	maskG = 4
	maskT = 8
)

func init() {
	for i := range baseIndex {
		baseIndex[i] = -1
	}
	for _, c := range []struct {
		b    byte
		mask byte
	}{
		{'A', maskA}, {'C', maskC}, {'G', maskG}, {'T', maskT}, {'U', maskT},
		{'R', maskA | maskG}, {'Y', maskC | maskT}, {'S', maskC | maskG},
		{'W', maskA | maskT}, {'K', maskG | maskT}, {'M', maskA | maskC},
		{'B', maskC | maskG | maskT}, {'D', maskA | maskG | maskT},
		{'H', maskA | maskC | maskT}, {'V', maskA | maskC | maskG},
		{'N', maskA | maskC | maskG | maskT},
	} {
		iupacMask[c.b] = c.mask
		iupacMask[c.b+'a'-'A'] = c.mask
	}
	for i, b := range []byte("ACGT") {
		baseIndex[b] = int8(i)
		baseIndex[b+'a'-'A'] = int8(i)
	}
	baseIndex['U'], baseIndex['u'] = 3, 3
}

func tripletIndex(t string) (int, bool) {
	if len(t) != 3 {
		return 0, false
	}
	a, b, c := baseIndex[t[0]], baseIndex[t[1]], baseIndex[t[2]]
	if a < 0 || b < 0 || c < 0 {
		return 0, false
	}
	return int(a)<<4 | int(b)<<2 | int(c), true
}

func indexTriplet(i int) string {
	const bases = "ACGT"
	return string([]byte{bases[i>>4&3], bases[i>>2&3], bases[i&3]})
}
