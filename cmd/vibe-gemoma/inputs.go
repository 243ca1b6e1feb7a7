package main

import (
	"fmt"
	"path/filepath"

	"github.com/shenwei356/xopen"
	"go.uber.org/zap"

	"github.com/inodb/vibe-gemoma/internal/align"
	"github.com/inodb/vibe-gemoma/internal/codon"
	"github.com/inodb/vibe-gemoma/internal/evidence"
	"github.com/inodb/vibe-gemoma/internal/genome"
	"github.com/inodb/vibe-gemoma/internal/output"
	"github.com/inodb/vibe-gemoma/internal/predict"
	"github.com/inodb/vibe-gemoma/internal/reference"
)

// inputs holds everything loaded before prediction starts.
type inputs struct {
	genome    *genome.Genome
	ref       *reference.Reference
	selection *reference.Selection
	resources *predict.Resources
}

func loadInputs(opts predictOptions, p predict.Params, logger *zap.Logger) (*inputs, error) {
	amb, err := codon.ParseAmbiguity(p.Ambiguity)
	if err != nil {
		return nil, &usageError{err: err}
	}
	code := codon.Standard(amb)
	if opts.GeneticCode != "" {
		if code, err = codon.LoadCode(opts.GeneticCode, amb); err != nil {
			return nil, err
		}
	}

	matrix := align.BLOSUM62()
	if opts.Matrix != "" {
		if matrix, err = align.LoadMatrix(opts.Matrix); err != nil {
			return nil, err
		}
	}

	g, err := genome.Load(opts.Genome)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded genome", zap.String("file", opts.Genome), zap.Int("contigs", g.ContigCount()))

	ref, err := reference.Load(reference.Files{
		Assignment: opts.Assignment,
		Parts:      opts.Parts,
		Proteins:   opts.Proteins,
	}, logger)
	if err != nil {
		return nil, err
	}

	var sel *reference.Selection
	if opts.Selected != "" {
		if sel, err = reference.LoadSelection(opts.Selected); err != nil {
			return nil, err
		}
		logger.Info("loaded selection", zap.Int("transcripts", sel.Len()))
	}

	ev, err := loadEvidence(opts, g, logger)
	if err != nil {
		return nil, err
	}

	costs := align.Costs{Matrix: matrix, GapOpen: p.GapOpen, GapExtend: p.GapExtend}
	return &inputs{
		genome:    g,
		ref:       ref,
		selection: sel,
		resources: predict.NewResources(g, ev, code, costs),
	}, nil
}

func loadEvidence(opts predictOptions, g *genome.Genome, logger *zap.Logger) (*evidence.Set, error) {
	ev := &evidence.Set{}
	if opts.Introns != "" {
		introns, err := evidence.LoadIntrons(opts.Introns, g, opts.MinReads, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded introns", zap.String("file", opts.Introns), zap.Int("introns", introns.Count()))
		ev.Introns = introns
	}

	files := evidence.CoverageFiles{
		Forward:    opts.CoverageForward,
		Reverse:    opts.CoverageReverse,
		Unstranded: opts.Coverage,
	}
	if !files.Empty() {
		cov, err := evidence.LoadCoverage(files, g)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded coverage")
		ev.Coverage = cov
	}
	return ev, nil
}

// outputs holds the result files of a run.
type outputs struct {
	files   []*xopen.Writer
	gff     *output.GFFWriter
	fasta   *output.FASTAWriter
	summary *output.SummaryWriter
	closed  bool
}

func createOutputs(outDir string, p predict.Params) (*outputs, error) {
	out := &outputs{}
	open := func(name string) (*xopen.Writer, error) {
		fh, err := xopen.Wopen(filepath.Join(outDir, name))
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		out.files = append(out.files, fh)
		return fh, nil
	}

	gffFile, err := open(gffName)
	if err != nil {
		return nil, err
	}
	fastaFile, err := open(proteinName)
	if err != nil {
		return nil, err
	}
	summaryFile, err := open(summaryName)
	if err != nil {
		return nil, err
	}

	out.gff = output.NewGFFWriter(gffFile, p.Tag, p.Prefix)
	out.fasta = output.NewFASTAWriter(fastaFile, p.Prefix)
	out.summary = output.NewSummaryWriter(summaryFile)
	if err := out.gff.WriteHeader(); err != nil {
		out.Close()
		return nil, err
	}
	if err := out.summary.WriteHeader(); err != nil {
		out.Close()
		return nil, err
	}
	return out, nil
}

// Write writes the predictions and the summary row of a result.
func (o *outputs) Write(r *predict.Result) error {
	for _, pred := range r.Predictions {
		if err := o.gff.Write(pred); err != nil {
			return fmt.Errorf("writing annotation: %w", err)
		}
		if err := o.fasta.Write(pred); err != nil {
			return fmt.Errorf("writing proteins: %w", err)
		}
	}
	if err := o.summary.Write(r); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	return nil
}

// Close flushes the writers and closes the files. Calling it again is a
// no-op.
func (o *outputs) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if o.gff != nil {
		keep(o.gff.Flush())
	}
	if o.fasta != nil {
		keep(o.fasta.Flush())
	}
	if o.summary != nil {
		keep(o.summary.Flush())
	}
	for _, fh := range o.files {
		keep(fh.Close())
	}
	return first
}
