package predict

import (
	"github.com/inodb/vibe-gemoma/internal/align"
	"github.com/inodb/vibe-gemoma/internal/codon"
	"github.com/inodb/vibe-gemoma/internal/evidence"
	"github.com/inodb/vibe-gemoma/internal/genome"
)

// Resources are the read-only inputs shared by all workers.
type Resources struct {
	Genome   *genome.Genome
	Evidence *evidence.Set
	Code     *codon.Code
	Costs    align.Costs
}

// NewResources bundles the shared inputs. A nil evidence set means no
// evidence.
func NewResources(g *genome.Genome, ev *evidence.Set, code *codon.Code, costs align.Costs) *Resources {
	if ev == nil {
		ev = &evidence.Set{}
	}
	return &Resources{Genome: g, Evidence: ev, Code: code, Costs: costs}
}

// Workspace holds the mutable scratch state of one worker: aligner buffers
// and the hit id counter. It is never shared between goroutines; the
// scheduler replaces it after a timeout.
type Workspace struct {
	aligner *align.Aligner
	second  *align.Aligner

	nextID     int
	alignments int
}

// NewWorkspace returns a workspace for the given cost model.
func NewWorkspace(costs align.Costs) *Workspace {
	return &Workspace{
		aligner: align.NewAligner(costs),
		second:  align.NewAligner(costs),
	}
}

// reset prepares the workspace for the next transcript.
func (ws *Workspace) reset() {
	ws.nextID = 0
	ws.alignments = 0
}

func (ws *Workspace) newID() int {
	ws.nextID++
	return ws.nextID
}

// globalCost returns the cost of the global alignment of a and b.
func (ws *Workspace) globalCost(a, b string) int {
	ws.alignments++
	ws.aligner.Compute(align.Global, a, b)
	return ws.aligner.Cost(len(a), len(b))
}

// compute fills the primary aligner and returns it for matrix queries.
func (ws *Workspace) compute(mode align.Mode, a, b string) *align.Aligner {
	ws.alignments++
	ws.aligner.Compute(mode, a, b)
	return ws.aligner
}

// local returns the best local alignment of a and b.
func (ws *Workspace) local(a, b string) align.Alignment {
	ws.alignments++
	return ws.aligner.Align(align.Local, a, b)
}

// global returns the optimal global alignment of a and b.
func (ws *Workspace) global(a, b string) align.Alignment {
	ws.alignments++
	return ws.aligner.Align(align.Global, a, b)
}
