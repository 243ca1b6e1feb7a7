package predict

import (
	"context"
	"fmt"
	"sort"

	"github.com/inodb/vibe-gemoma/internal/codon"
	"github.com/inodb/vibe-gemoma/internal/genome"
	"github.com/inodb/vibe-gemoma/internal/hit"
	"github.com/inodb/vibe-gemoma/internal/reference"
)

// Job is one transcript to predict together with the hits of its gene.
type Job struct {
	Seq        int
	Transcript *reference.Transcript
	Hits       []hit.Hit
	// Lines is the number of search hits read for the gene.
	Lines  int
	Region reference.Region
}

// lines holds the hits of one contig strand per part position, each list
// sorted by start.
type lines [][]*hit.Hit

func (l lines) empty() bool {
	for _, list := range l {
		if len(list) > 0 {
			return false
		}
	}
	return true
}

func (l lines) count() int {
	n := 0
	for _, list := range l {
		n += len(list)
	}
	return n
}

func (l lines) sort() {
	for _, list := range l {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Start != list[j].Start {
				return list[i].Start < list[j].Start
			}
			return list[i].End < list[j].End
		})
	}
}

// all returns the hits of all parts sorted by start.
func (l lines) all() []*hit.Hit {
	var out []*hit.Hit
	for _, list := range l {
		out = append(out, list...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start < out[j].Start
	})
	return out
}

// analysis is the state of predicting one transcript. It lives on one
// worker goroutine.
type analysis struct {
	ctx context.Context
	ws  *Workspace
	res *Resources
	p   Params

	tr        *reference.Transcript
	maxIntron int
	// strict translates maximal extensions, where any ambiguity ends the walk.
	strict *codon.Code

	// strand under analysis
	contig string
	view   genome.View

	derived map[int]*derived
	// err is the first translation error under the strict ambiguity policy.
	err error

	stats Stats
}

func newAnalysis(ctx context.Context, ws *Workspace, res *Resources, p Params, tr *reference.Transcript) *analysis {
	return &analysis{
		ctx:       ctx,
		ws:        ws,
		res:       res,
		p:         p,
		tr:        tr,
		maxIntron: p.MaxIntronFor(tr),
		strict:    res.Code.WithAmbiguity(codon.Strict),
		derived:   make(map[int]*derived),
	}
}

// setStrand selects the contig strand for the following steps.
func (a *analysis) setStrand(contig string, forward bool) error {
	v, err := a.res.Genome.View(contig, forward)
	if err != nil {
		return err
	}
	a.contig, a.view = contig, v
	return nil
}

// check returns the context error or the sticky translation error.
func (a *analysis) check() error {
	if err := a.ctx.Err(); err != nil {
		return err
	}
	return a.err
}

// translateCodon translates one codon. Under the strict policy the first
// failure is kept and reported when the analysis returns.
func (a *analysis) translateCodon(c string) byte {
	aa, err := a.res.Code.Translate(c)
	if err == nil {
		return aa
	}
	if c != "NNN" && a.err == nil {
		a.err = fmt.Errorf("translate %s on %s: %w", c, a.contig, err)
	}
	return 'X'
}

func (a *analysis) translate(dna string) string {
	n := len(dna) / 3 * 3
	out := make([]byte, 0, n/3)
	for i := 0; i < n; i += 3 {
		out = append(out, a.translateCodon(dna[i:i+3]))
	}
	return string(out)
}

// dna returns the bases of h extended by up bases upstream and down bases
// downstream.
func (a *analysis) dna(h *hit.Hit, up, down int) string {
	return a.view.Slice(h.Start-1-up, h.End+down)
}

// part returns the reference sequence of the part at position i.
func (a *analysis) part(i int) string {
	return a.tr.PartSeqs[i]
}

// partIndex returns the part position of a hit.
func (a *analysis) partIndex(h *hit.Hit) int {
	i, _ := a.tr.PartIndex(h.Part)
	return i
}

// gapCost scores missing reference residues and missing parts.
func (a *analysis) gapCost(residues, parts int) int {
	c := 0
	if residues > 0 {
		c = a.p.GapOpen + a.p.GapExtend*residues
	}
	return -c - parts*a.p.IntronGainLoss
}

// copyHit returns a copy of h with a fresh id.
func (a *analysis) copyHit(h hit.Hit) *hit.Hit {
	h.ID = a.ws.newID()
	return &h
}
