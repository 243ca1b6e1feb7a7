// Package evidence provides RNA-seq intron and coverage evidence in strand
// coordinates.
package evidence

import (
	"bufio"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
	"go.uber.org/zap"

	"github.com/inodb/vibe-gemoma/internal/genome"
)

// Intron is a split-read supported intron in strand coordinates. Donor is
// the first intron base and Acceptor the first exon base after the intron.
type Intron struct {
	Donor    int
	Acceptor int
	Reads    int
}

type strandKey struct {
	contig  string
	forward bool
}

// Introns indexes introns per contig and strand.
type Introns struct {
	byDonor    map[strandKey][]Intron
	byAcceptor map[strandKey][]Intron
	count      int
}

// NewIntrons builds an index from introns given in strand coordinates.
func NewIntrons() *Introns {
	return &Introns{
		byDonor:    make(map[strandKey][]Intron),
		byAcceptor: make(map[strandKey][]Intron),
	}
}

// Add adds an intron in strand coordinates. Call Sort after the last Add.
func (in *Introns) Add(contig string, forward bool, intron Intron) {
	k := strandKey{contig, forward}
	in.byDonor[k] = append(in.byDonor[k], intron)
	in.byAcceptor[k] = append(in.byAcceptor[k], intron)
	in.count++
}

// Sort orders the indexes. It must be called before any query.
func (in *Introns) Sort() {
	for _, list := range in.byDonor {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Donor != list[j].Donor {
				return list[i].Donor < list[j].Donor
			}
			return list[i].Acceptor < list[j].Acceptor
		})
	}
	for _, list := range in.byAcceptor {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Acceptor != list[j].Acceptor {
				return list[i].Acceptor < list[j].Acceptor
			}
			return list[i].Donor < list[j].Donor
		})
	}
}

// Count returns the number of indexed introns.
func (in *Introns) Count() int {
	if in == nil {
		return 0
	}
	return in.count
}

// HasStrand reports whether any intron exists on the contig strand.
func (in *Introns) HasStrand(contig string, forward bool) bool {
	return in != nil && len(in.byDonor[strandKey{contig, forward}]) > 0
}

// DonorsIn returns introns whose donor lies in [lo, hi], ordered by donor.
func (in *Introns) DonorsIn(contig string, forward bool, lo, hi int) []Intron {
	if in == nil {
		return nil
	}
	list := in.byDonor[strandKey{contig, forward}]
	i := sort.Search(len(list), func(i int) bool { return list[i].Donor >= lo })
	j := sort.Search(len(list), func(j int) bool { return list[j].Donor > hi })
	if i >= j {
		return nil
	}
	return list[i:j]
}

// AcceptorsIn returns introns whose acceptor lies in [lo, hi], ordered by acceptor.
func (in *Introns) AcceptorsIn(contig string, forward bool, lo, hi int) []Intron {
	if in == nil {
		return nil
	}
	list := in.byAcceptor[strandKey{contig, forward}]
	i := sort.Search(len(list), func(i int) bool { return list[i].Acceptor >= lo })
	j := sort.Search(len(list), func(j int) bool { return list[j].Acceptor > hi })
	if i >= j {
		return nil
	}
	return list[i:j]
}

// Reads returns the split-read count of the intron with the given donor and
// acceptor.
func (in *Introns) Reads(contig string, forward bool, donor, acceptor int) (int, bool) {
	for _, intron := range in.DonorsIn(contig, forward, donor, donor) {
		if intron.Acceptor == acceptor {
			return intron.Reads, true
		}
	}
	return 0, false
}

// LoadIntrons reads introns from a GFF-like file: column 1 contig, columns 4
// and 5 the first intron base and the first base after the intron (1-based),
// column 6 the split-read count and column 7 the strand. Introns with fewer
// than minReads reads are dropped. Unstranded introns are assigned a strand
// from their GT/GC..AG motifs; unresolvable ones are skipped.
func LoadIntrons(path string, g *genome.Genome, minReads int, logger *zap.Logger) (*Introns, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open intron file: %w", err)
	}
	defer fh.Close()

	in := NewIntrons()
	scanner := bufio.NewScanner(fh)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	lineNum, skipped := 0, 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			return nil, fmt.Errorf("intron line %d: expected at least 7 columns: %q", lineNum, line)
		}
		a, err1 := strconv.Atoi(fields[3])
		b, err2 := strconv.Atoi(fields[4])
		reads, err3 := strconv.Atoi(fields[5])
		if err1 != nil || err2 != nil || err3 != nil || b <= a {
			return nil, fmt.Errorf("intron line %d: invalid coordinates or reads: %q", lineNum, line)
		}
		if reads < minReads {
			continue
		}
		contig := fields[0]
		n := g.Len(contig)
		if n < 0 || b-1 > n {
			skipped++
			continue
		}

		var forward bool
		switch fields[6] {
		case "+":
			forward = true
		case "-":
			forward = false
		default:
			var ok bool
			forward, ok = motifStrand(g, contig, a, b)
			if !ok {
				skipped++
				continue
			}
		}
		if forward {
			in.Add(contig, true, Intron{Donor: a, Acceptor: b, Reads: reads})
		} else {
			in.Add(contig, false, Intron{Donor: n - b + 2, Acceptor: n - a + 2, Reads: reads})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read intron file: %w", err)
	}
	in.Sort()
	logger.Info("loaded introns", zap.String("path", path), zap.Int("introns", in.Count()), zap.Int("skipped", skipped))
	return in, nil
}

// motifStrand resolves the strand of intron [a, b) from its terminal dinucleotides.
func motifStrand(g *genome.Genome, contig string, a, b int) (forward bool, ok bool) {
	first := g.Slice(contig, a-1, a+1)
	last := g.Slice(contig, b-3, b-1)
	switch {
	case (first == "GT" || first == "GC") && last == "AG":
		return true, true
	case first == "CT" && (last == "AC" || last == "GC"):
		return false, true
	}
	return false, false
}
