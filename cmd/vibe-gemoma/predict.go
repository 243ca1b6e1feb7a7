package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/zap"

	"github.com/inodb/vibe-gemoma/internal/duckdb"
	"github.com/inodb/vibe-gemoma/internal/hit"
	"github.com/inodb/vibe-gemoma/internal/predict"
	"github.com/inodb/vibe-gemoma/internal/reference"
)

// Output file names in the output directory.
const (
	gffName     = "predicted_annotation.gff"
	proteinName = "predicted_proteins.fasta"
	summaryName = "summary.tsv"
)

// dbBatchSize is the number of results written to the database at once.
const dbBatchSize = 200

type predictOptions struct {
	Hits       string
	Assignment string
	Genome     string
	Parts      string
	Proteins   string

	Introns         string
	MinReads        int
	Coverage        string
	CoverageForward string
	CoverageReverse string

	Selected    string
	GeneticCode string
	Matrix      string

	OutDir   string
	Force    bool
	DB       string
	Resume   bool
	Threads  int
	Progress bool
}

func (o predictOptions) validate() error {
	for _, req := range []struct{ flag, value string }{
		{"hits", o.Hits},
		{"assignment", o.Assignment},
		{"genome", o.Genome},
		{"parts", o.Parts},
	} {
		if req.value == "" {
			return usageErrorf("--%s is required", req.flag)
		}
	}
	if o.Coverage != "" && (o.CoverageForward != "" || o.CoverageReverse != "") {
		return usageErrorf("--coverage cannot be combined with --coverage-forward/--coverage-reverse")
	}
	if (o.CoverageForward == "") != (o.CoverageReverse == "") {
		return usageErrorf("--coverage-forward and --coverage-reverse must be given together")
	}
	if o.Resume && o.DB == "" {
		return usageErrorf("--resume requires --db")
	}
	if o.DB != "" && isWithin(o.DB, o.OutDir) {
		return usageErrorf("--db must not be inside --out-dir")
	}
	if o.MinReads < 1 {
		return usageErrorf("--reads must be at least 1")
	}
	return nil
}

// isWithin reports whether path lies inside dir.
func isWithin(path, dir string) bool {
	absPath, err1 := filepath.Abs(path)
	absDir, err2 := filepath.Abs(dir)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func newPredictCmd() *cobra.Command {
	var opts predictOptions
	var paramFlags *pflag.FlagSet

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict gene models from search hits",
		Long: `Predict gene models in a target genome from tblastn hits of reference CDS
parts. Writes the annotation (GFF3), the predicted proteins (FASTA) and a
per-transcript summary to the output directory.

Prediction parameters can also be set in ~/.vibe-gemoma.yaml or as
VIBE_GEMOMA_* environment variables (e.g. VIBE_GEMOMA_MAX_INTRON).`,
		Example: `  vibe-gemoma predict --hits hits.tsv.gz --assignment assignment.tsv \
      --genome target.fa.gz --parts cds-parts.fa --out-dir out

  # with RNA-seq evidence and a results database
  vibe-gemoma predict --hits hits.tsv --assignment assignment.tsv --genome target.fa \
      --parts cds-parts.fa --proteins proteins.fa --introns introns.gff \
      --coverage-forward fwd.bedgraph --coverage-reverse rev.bedgraph \
      --db predictions.duckdb --out-dir out --threads 8`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(paramFlags)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			p, err := loadParams()
			if err != nil {
				return err
			}

			verbose, _ := cmd.Flags().GetBool("verbose")
			logger, err := newLogger(verbose)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPredict(ctx, opts, p, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Hits, "hits", "", "Search hits of the CDS parts (tabular, '-' for stdin)")
	f.StringVar(&opts.Assignment, "assignment", "", "Gene/transcript/part assignment table")
	f.StringVar(&opts.Genome, "genome", "", "Target genome FASTA")
	f.StringVar(&opts.Parts, "parts", "", "CDS part sequences (FASTA, translated)")
	f.StringVar(&opts.Proteins, "proteins", "", "Reference proteins (FASTA) for identity metrics")
	f.StringVar(&opts.Introns, "introns", "", "Intron evidence (GFF)")
	f.IntVar(&opts.MinReads, "reads", 1, "Minimal split reads of an intron")
	f.StringVar(&opts.Coverage, "coverage", "", "Unstranded coverage (bedgraph)")
	f.StringVar(&opts.CoverageForward, "coverage-forward", "", "Forward strand coverage (bedgraph)")
	f.StringVar(&opts.CoverageReverse, "coverage-reverse", "", "Reverse strand coverage (bedgraph)")
	f.StringVar(&opts.Selected, "selected", "", "Transcripts to predict, optionally with a region")
	f.StringVar(&opts.GeneticCode, "genetic-code", "", "Genetic code table (default: standard)")
	f.StringVar(&opts.Matrix, "matrix", "", "Substitution matrix (default: BLOSUM62)")
	f.StringVarP(&opts.OutDir, "out-dir", "o", "vibe-gemoma_out", "Output directory")
	f.BoolVar(&opts.Force, "force", false, "Overwrite a non-empty output directory")
	f.StringVar(&opts.DB, "db", "", "DuckDB database receiving the results")
	f.BoolVar(&opts.Resume, "resume", false, "Skip transcripts already completed in --db")
	f.IntVarP(&opts.Threads, "threads", "j", runtime.NumCPU(), "Number of workers")
	f.BoolVar(&opts.Progress, "progress", true, "Show a progress bar")

	paramFlags = newParamFlags(predict.DefaultParams())
	f.AddFlagSet(paramFlags)

	return cmd
}

// newParamFlags returns the flags of the prediction parameters. Their names
// match the mapstructure tags of predict.Params.
func newParamFlags(d predict.Params) *pflag.FlagSet {
	f := pflag.NewFlagSet("parameters", pflag.ContinueOnError)
	f.Int("max-intron", d.MaxIntron, "Maximal intron length")
	f.Int("min-dynamic-intron", d.MinDynamicIntron, "Lower bound of the dynamic maximal intron length")
	f.Float64("dynamic-factor", d.DynamicFactor, "Scale the longest reference intron into the maximal intron length (0 disables)")
	f.Int("intron-gain-loss", d.IntronGainLoss, "Penalty of an intron gain or loss")
	f.Float64("evalue", d.EValue, "Maximal e-value of a search hit")
	f.Float64("contig-threshold", d.ContigThreshold, "Contig strands must reach this fraction of the best chain score")
	f.Float64("region-threshold", d.RegionThreshold, "Regions must reach this fraction of the best region score")
	f.Float64("hit-threshold", d.HitThreshold, "Hits must reach this fraction of the best hit score of their part")
	f.Int("predictions", d.Predictions, "Maximal number of predictions per transcript")
	f.Bool("avoid-stop", d.AvoidStop, "Split hits at premature stop codons")
	f.Bool("approx", d.Approx, "Score splice variants within one part from precomputed alignments instead of realigning")
	f.Bool("splice", d.Splice, "Use canonical splice sites where intron evidence has no candidate")
	f.Int("gap-open", d.GapOpen, "Gap opening cost")
	f.Int("gap-extend", d.GapExtend, "Gap extension cost")
	f.String("ambiguity", d.Ambiguity, "Translation of ambiguous codons: ambiguous, exception or random")
	f.Duration("timeout", d.Timeout, "Timeout per transcript")
	f.Duration("grace", d.Grace, "Time a timed out worker may take to stop")
	f.Int("max-new-hits", d.MaxNewHits, "Maximal hits gap filling adds per part")
	f.String("tag", d.Tag, "Feature type of predictions in the GFF")
	f.String("prefix", d.Prefix, "Prefix of prediction ids")
	return f
}

// loadParams decodes the prediction parameters from flags, config file and
// environment.
func loadParams() (predict.Params, error) {
	p := predict.DefaultParams()
	if err := viper.Unmarshal(&p); err != nil {
		return p, usageErrorf("invalid parameters: %v", err)
	}
	if err := p.Validate(); err != nil {
		return p, &usageError{err: err}
	}
	return p, nil
}

// makeOutDir creates the output directory. A non-empty directory is removed
// with force and rejected without it.
func makeOutDir(outDir string, force bool, logger *zap.Logger) error {
	pwd, _ := os.Getwd()
	if outDir == "." || outDir == "./" || filepath.Clean(outDir) == pwd {
		return usageErrorf("output directory should not be the current directory")
	}
	existed, err := pathutil.DirExists(outDir)
	if err != nil {
		return fmt.Errorf("check output directory %s: %w", outDir, err)
	}
	if existed {
		empty, err := pathutil.IsEmpty(outDir)
		if err != nil {
			return fmt.Errorf("check output directory %s: %w", outDir, err)
		}
		if !empty {
			if !force {
				return usageErrorf("output directory not empty: %s, use --force to overwrite", outDir)
			}
			logger.Info("removing old output directory", zap.String("dir", outDir))
			if err := os.RemoveAll(outDir); err != nil {
				return fmt.Errorf("remove output directory: %w", err)
			}
		}
	}
	if err := os.MkdirAll(outDir, 0777); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}

func runPredict(ctx context.Context, opts predictOptions, p predict.Params, logger *zap.Logger) error {
	start := time.Now()

	in, err := loadInputs(opts, p, logger)
	if err != nil {
		return err
	}

	var store *duckdb.Store
	var completed map[string]bool
	if opts.DB != "" {
		store, completed, err = openStore(opts, logger)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	if err := makeOutDir(opts.OutDir, opts.Force, logger); err != nil {
		return err
	}
	out, err := createOutputs(opts.OutDir, p)
	if err != nil {
		return err
	}
	defer out.Close()

	reader, err := hit.Open(opts.Hits, in.genome, p.EValue)
	if err != nil {
		return err
	}
	defer reader.Close()

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	pending := countPending(in.ref, in.selection, completed)
	logger.Info("predicting transcripts",
		zap.Int("transcripts", pending),
		zap.Int("skipped", len(completed)),
		zap.Int("threads", threads))

	var pbs *mpb.Progress
	var bar *mpb.Bar
	if opts.Progress {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(pending),
			mpb.PrependDecorators(
				decor.Name("predicted transcripts: ", decor.WC{W: len("predicted transcripts: "), C: decor.DindentRight}),
				decor.Name("", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.EwmaETA(decor.ET_STYLE_GO, 10),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan *predict.Job, 2*threads)
	var feedErr error
	go func() {
		defer close(jobs)
		feedErr = feedJobs(ctx, reader, in.ref, in.selection, completed, jobs, logger)
	}()

	pr := predict.NewPredictor(in.resources, p)
	pr.SetLogger(logger)
	results := pr.ParallelPredict(ctx, jobs, threads)

	var batch []*predict.Result
	handle := func(r *predict.Result) error {
		if bar != nil {
			bar.EwmaIncrBy(1, r.Stats.Elapsed)
		}
		if err := out.Write(r); err != nil {
			return err
		}
		if store == nil {
			return nil
		}
		batch = append(batch, r)
		if len(batch) >= dbBatchSize {
			if err := store.WriteResults(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
		return nil
	}
	collectErr := predict.OrderedCollect(results, func(r *predict.Result) error {
		if err := handle(r); err != nil {
			cancel()
			return err
		}
		return nil
	})

	if bar != nil {
		bar.SetTotal(-1, true)
		pbs.Wait()
	}

	if collectErr != nil {
		return collectErr
	}
	if store != nil {
		if err := store.WriteResults(batch); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("interrupted: %w", err)
	}
	if feedErr != nil {
		return fmt.Errorf("reading hits: %w", feedErr)
	}
	if err := out.Close(); err != nil {
		return err
	}

	stats := out.summary.Stats()
	stats.WriteSummary(os.Stderr)
	logger.Info("done",
		zap.Int("transcripts", stats.Transcripts),
		zap.Int("predictions", stats.Predictions),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
		zap.String("out-dir", opts.OutDir))
	return nil
}

// openStore opens the results database. With resume and unchanged inputs
// it returns the completed transcripts; otherwise earlier results are
// cleared and the inputs of this run recorded.
func openStore(opts predictOptions, logger *zap.Logger) (*duckdb.Store, map[string]bool, error) {
	store, err := duckdb.Open(opts.DB)
	if err != nil {
		return nil, nil, err
	}

	inputs, err := fingerprintInputs(opts)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	if opts.Resume {
		ok, err := store.InputsMatch(inputs)
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		if ok {
			completed, err := store.CompletedTranscripts()
			if err != nil {
				store.Close()
				return nil, nil, err
			}
			logger.Info("resuming", zap.String("db", opts.DB), zap.Int("completed", len(completed)))
			return store, completed, nil
		}
		logger.Warn("inputs changed since the stored run, starting over", zap.String("db", opts.DB))
	}

	if err := store.ClearResults(); err != nil {
		store.Close()
		return nil, nil, err
	}
	if err := store.RecordInputs(inputs); err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, nil, nil
}

func fingerprintInputs(opts predictOptions) (map[string]duckdb.FileFingerprint, error) {
	inputs := make(map[string]duckdb.FileFingerprint)
	for name, path := range map[string]string{
		"hits":             opts.Hits,
		"assignment":       opts.Assignment,
		"genome":           opts.Genome,
		"parts":            opts.Parts,
		"proteins":         opts.Proteins,
		"introns":          opts.Introns,
		"coverage":         opts.Coverage,
		"coverage-forward": opts.CoverageForward,
		"coverage-reverse": opts.CoverageReverse,
		"selected":         opts.Selected,
		"genetic-code":     opts.GeneticCode,
		"matrix":           opts.Matrix,
	} {
		if path == "" || path == "-" {
			continue
		}
		fp, err := duckdb.StatFile(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		inputs[name] = fp
	}
	return inputs, nil
}

// countPending returns the number of selected transcripts still to predict.
func countPending(ref *reference.Reference, sel *reference.Selection, skip map[string]bool) int {
	n := 0
	for _, gene := range ref.Genes() {
		for _, tr := range ref.Gene(gene) {
			if _, ok := sel.Lookup(tr.ID); ok && !skip[tr.ID] {
				n++
			}
		}
	}
	return n
}

// feedJobs reads the hit groups and sends one job per selected transcript
// of each gene, numbered in input order.
func feedJobs(ctx context.Context, r *hit.Reader, ref *reference.Reference, sel *reference.Selection,
	skip map[string]bool, jobs chan<- *predict.Job, logger *zap.Logger) error {
	seq := 0
	for {
		g, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		transcripts := ref.Gene(g.Gene)
		if len(transcripts) == 0 {
			logger.Warn("hits of unknown gene", zap.String("gene", g.Gene), zap.Int("hits", len(g.Hits)))
			continue
		}
		for _, tr := range transcripts {
			region, ok := sel.Lookup(tr.ID)
			if !ok || skip[tr.ID] {
				continue
			}
			job := &predict.Job{
				Seq:        seq,
				Transcript: tr,
				Hits:       g.Hits,
				Lines:      g.Lines,
				Region:     region,
			}
			select {
			case jobs <- job:
				seq++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
