package genome

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoSequence is returned for contigs missing from the genome.
var ErrNoSequence = errors.New("no sequence for contig")

// Genome holds the target contigs. It is read-only after construction and
// safe for concurrent use.
type Genome struct {
	contigs map[string][]byte
	names   []string
}

// Load reads the target genome from a FASTA file.
func Load(path string) (*Genome, error) {
	records, err := ReadFASTA(path)
	if err != nil {
		return nil, err
	}
	g := &Genome{contigs: make(map[string][]byte, len(records))}
	for _, r := range records {
		if _, dup := g.contigs[r.ID]; dup {
			return nil, fmt.Errorf("duplicate contig %q in %s", r.ID, path)
		}
		g.contigs[r.ID] = r.Seq
	}
	g.index()
	return g, nil
}

// New builds a genome from in-memory sequences.
func New(seqs map[string]string) *Genome {
	g := &Genome{contigs: make(map[string][]byte, len(seqs))}
	for name, s := range seqs {
		g.contigs[name] = []byte(s)
	}
	g.index()
	return g
}

func (g *Genome) index() {
	g.names = make([]string, 0, len(g.contigs))
	for name := range g.contigs {
		g.names = append(g.names, name)
	}
	sort.Strings(g.names)
}

// Names returns the contig names in sorted order.
func (g *Genome) Names() []string {
	return g.names
}

// ContigCount returns the number of contigs.
func (g *Genome) ContigCount() int {
	return len(g.contigs)
}

// Len returns the length of a contig, or -1 if it is unknown.
func (g *Genome) Len(contig string) int {
	s, ok := g.contigs[contig]
	if !ok {
		return -1
	}
	return len(s)
}

// View returns the strand view of a contig.
func (g *Genome) View(contig string, forward bool) (View, error) {
	s, ok := g.contigs[contig]
	if !ok {
		return View{}, fmt.Errorf("%w %q", ErrNoSequence, contig)
	}
	return View{seq: s, forward: forward}, nil
}

// Slice returns genomic bases [from, to) (0-based) of the forward strand.
func (g *Genome) Slice(contig string, from, to int) string {
	v, err := g.View(contig, true)
	if err != nil {
		return ""
	}
	return v.Slice(from, to)
}
