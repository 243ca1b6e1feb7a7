package predict

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/inodb/vibe-gemoma/internal/codon"
	"github.com/inodb/vibe-gemoma/internal/evidence"
	"github.com/inodb/vibe-gemoma/internal/genome"
	"github.com/inodb/vibe-gemoma/internal/hit"
	"github.com/inodb/vibe-gemoma/internal/reference"
)

const (
	part0 = "MAGKLWRDEF"
	part1 = "SPTVINQHYC"
	part2 = "DEKRLLGGAW"
)

func canonicalJob(contig string, forward bool) (*Job, layout) {
	tr := reference.NewTranscript("g1", "t1", part0, part1)
	lay := buildLayout(encode(part0), encode(part1))
	job := &Job{
		Transcript: tr,
		Hits: []hit.Hit{
			exactHit(tr, 0, contig, forward, lay.starts[0]),
			exactHit(tr, 1, contig, forward, lay.starts[1]),
		},
		Lines:  2,
		Region: reference.Region{End: -1},
	}
	return job, lay
}

func TestPredict_CanonicalIntron(t *testing.T) {
	job, lay := canonicalJob("chr1", true)
	res := testResources(map[string]string{"chr1": lay.seq})

	r := runJob(t, res, testParams(), job)
	require.Equal(t, Completed, r.State)
	require.NoError(t, r.Err)
	require.Len(t, r.Predictions, 1)

	p := r.Predictions[0]
	assert.Equal(t, selfScore(part0)+selfScore(part1), p.Score)
	assert.Equal(t, part0+part1, p.Protein)
	assert.Equal(t, []int{0, 1}, partsOf(p))
	require.Len(t, p.CDS, 2)
	assert.Equal(t, lay.starts[0], p.CDS[0].Start)
	assert.Equal(t, lay.starts[0]+29, p.CDS[0].End)
	assert.Equal(t, lay.starts[1], p.CDS[1].Start)
	assert.Equal(t, 0, p.CDS[1].Phase)
	assert.Equal(t, lay.starts[0], p.Start)
	assert.Equal(t, lay.starts[1]+29, p.End)
	assert.True(t, p.FirstPart)
	assert.True(t, p.LastPart)
	assert.Equal(t, byte('M'), p.FirstResidue())
	assert.False(t, p.IntronGain)
	assert.False(t, p.IntronLoss)
	assert.Equal(t, 0, p.Stops)
	assert.Equal(t, "ok", r.Status())
	assert.Equal(t, 2, r.Stats.Hits)
	assert.Equal(t, 1, r.Stats.Strands)
	assert.Positive(t, r.Stats.Alignments)
}

func TestPredict_ReverseStrandMirror(t *testing.T) {
	fwdJob, lay := canonicalJob("chr1", true)
	fwd := runJob(t, testResources(map[string]string{"chr1": lay.seq}), testParams(), fwdJob)

	revJob, _ := canonicalJob("chr1", false)
	rc := codon.ReverseComplement(lay.seq)
	rev := runJob(t, testResources(map[string]string{"chr1": rc}), testParams(), revJob)

	require.Len(t, fwd.Predictions, 1)
	require.Len(t, rev.Predictions, 1)
	f, r := fwd.Predictions[0], rev.Predictions[0]
	assert.False(t, r.Forward)
	assert.Equal(t, f.Score, r.Score)
	assert.Equal(t, f.Protein, r.Protein)

	n := len(lay.seq)
	assert.Equal(t, n-f.End+1, r.Start)
	assert.Equal(t, n-f.Start+1, r.End)
	require.Len(t, r.CDS, len(f.CDS))
	for i := range f.CDS {
		assert.Equal(t, f.CDS[i].Start, r.CDS[i].Start)
		assert.Equal(t, n-f.CDS[i].GenomicEnd+1, r.CDS[i].GenomicStart)
	}
}

func TestPredict_MissingMiddlePart(t *testing.T) {
	t.Run("recovered by gap filling", func(t *testing.T) {
		tr := reference.NewTranscript("g2", "t2", part0, part1, part2)
		lay := buildLayout(encode(part0), encode(part1), encode(part2))
		job := &Job{
			Transcript: tr,
			Hits: []hit.Hit{
				exactHit(tr, 0, "chr1", true, lay.starts[0]),
				exactHit(tr, 2, "chr1", true, lay.starts[2]),
			},
			Lines:  2,
			Region: reference.Region{End: -1},
		}
		r := runJob(t, testResources(map[string]string{"chr1": lay.seq}), testParams(), job)
		require.Len(t, r.Predictions, 1)
		p := r.Predictions[0]
		assert.Equal(t, []int{0, 1, 2}, partsOf(p))
		assert.Equal(t, part0+part1+part2, p.Protein)
		assert.Equal(t, selfScore(part0)+selfScore(part1)+selfScore(part2), p.Score)
		assert.Contains(t, p.Exons[1].Info, "internal;")
		assert.Equal(t, lay.starts[1], p.Exons[1].Start)
	})

	t.Run("not recoverable", func(t *testing.T) {
		missing := "WWWWWWWWWW"
		tr := reference.NewTranscript("g3", "t3", part0, missing, part2)
		lay := buildLayout(encode(part0), encode(part2))
		job := &Job{
			Transcript: tr,
			Hits: []hit.Hit{
				exactHit(tr, 0, "chr1", true, lay.starts[0]),
				exactHit(tr, 2, "chr1", true, lay.starts[1]),
			},
			Lines:  2,
			Region: reference.Region{End: -1},
		}
		r := runJob(t, testResources(map[string]string{"chr1": lay.seq}), testParams(), job)
		require.Len(t, r.Predictions, 1)
		p := r.Predictions[0]
		assert.Equal(t, []int{0, 2}, partsOf(p))
		assert.Equal(t, part0+part2, p.Protein)
		assert.Less(t, p.Score, selfScore(part0)+selfScore(part2))
	})
}

func TestPredict_NoHits(t *testing.T) {
	tr := reference.NewTranscript("g4", "t4", part0)
	job := &Job{Transcript: tr, Region: reference.Region{End: -1}}
	r := runJob(t, testResources(map[string]string{"chr1": flank}), testParams(), job)
	assert.Equal(t, Completed, r.State)
	assert.Empty(t, r.Predictions)
	assert.Equal(t, "no prediction", r.Status())
}

func TestPredict_RegionRestriction(t *testing.T) {
	job, lay := canonicalJob("chr1", true)
	job.Hits = append(job.Hits, exactHit(job.Transcript, 0, "chr2", true, lay.starts[0]))
	res := testResources(map[string]string{"chr1": lay.seq, "chr2": lay.seq})

	job.Region = reference.Region{Contig: "chr2", End: -1}
	r := runJob(t, res, testParams(), job)
	require.Len(t, r.Predictions, 1)
	assert.Equal(t, "chr2", r.Predictions[0].Contig)
	assert.Equal(t, 1, r.Stats.Strands)

	job.Region = reference.Region{Contig: "chr1", Strand: -1, End: -1}
	r = runJob(t, res, testParams(), job)
	assert.Empty(t, r.Predictions)
	assert.Equal(t, 0, r.Stats.Strands)
}

func TestPredict_IntronEvidence(t *testing.T) {
	_, lay := canonicalJob("chr1", true)
	confirmed := evidence.Intron{Donor: lay.starts[0] + 30, Acceptor: lay.starts[1], Reads: 7}
	unrelated := evidence.Intron{Donor: 2, Acceptor: 20, Reads: 3}

	tests := []struct {
		name      string
		forward   bool
		intron    evidence.Intron
		splice    bool
		parts     []int
		confirmed int
		minReads  int
	}{
		{"confirmed forward", true, confirmed, true, []int{0, 1}, 1, 7},
		{"confirmed reverse", false, confirmed, true, []int{0, 1}, 1, 7},
		{"canonical fallback", true, unrelated, true, []int{0, 1}, 0, 0},
		{"fallback disabled", true, unrelated, false, []int{1}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, _ := canonicalJob("chr1", tt.forward)
			seq := lay.seq
			if !tt.forward {
				seq = codon.ReverseComplement(seq)
			}
			introns := evidence.NewIntrons()
			introns.Add("chr1", tt.forward, tt.intron)
			introns.Sort()
			res := NewResources(genome.New(map[string]string{"chr1": seq}),
				&evidence.Set{Introns: introns}, codon.Standard(codon.Ambiguous), testCosts())
			p := testParams()
			p.Splice = tt.splice

			r := runJob(t, res, p, job)
			require.Len(t, r.Predictions, 1)
			pred := r.Predictions[0]
			assert.Equal(t, tt.parts, partsOf(pred))

			ev := pred.Evidence
			assert.True(t, ev.HasIntrons)
			assert.Equal(t, tt.confirmed, ev.ConfirmedIntrons)
			assert.Equal(t, tt.minReads, ev.MinSplitReads)
			if len(tt.parts) == 2 {
				assert.Equal(t, selfScore(part0)+selfScore(part1), pred.Score)
				assert.Equal(t, part0+part1, pred.Protein)
				assert.Equal(t, 1, ev.Introns)
				assert.Equal(t, tt.confirmed, ev.ConfirmedDonors)
				assert.Equal(t, tt.confirmed, ev.ConfirmedAcceptors)
			}
		})
	}
}

func TestPredict_DefaultParamsUseCanonicalFallback(t *testing.T) {
	job, lay := canonicalJob("chr1", true)
	introns := evidence.NewIntrons()
	introns.Add("chr1", true, evidence.Intron{Donor: 2, Acceptor: 20, Reads: 1})
	introns.Sort()
	res := NewResources(genome.New(map[string]string{"chr1": lay.seq}),
		&evidence.Set{Introns: introns}, codon.Standard(codon.Ambiguous), testCosts())

	require.True(t, DefaultParams().Splice)
	r := runJob(t, res, testParams(), job)
	require.Len(t, r.Predictions, 1)
	assert.Equal(t, []int{0, 1}, partsOf(r.Predictions[0]))
	assert.Equal(t, selfScore(part0)+selfScore(part1), r.Predictions[0].Score)
}

func TestPredict_GapFillingCap(t *testing.T) {
	// part1 occurs twice between the hits of part0 and part2
	tr := reference.NewTranscript("g5", "t5", part0, part1, part2)
	lay := buildLayout(encode(part0), encode(part1), encode(part1), encode(part2))

	tests := []struct {
		name       string
		maxNewHits int
		cut        bool
	}{
		{"below cap", 20000, false},
		{"cap reached", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{
				Transcript: tr,
				Hits: []hit.Hit{
					exactHit(tr, 0, "chr1", true, lay.starts[0]),
					exactHit(tr, 2, "chr1", true, lay.starts[3]),
				},
				Lines:  2,
				Region: reference.Region{End: -1},
			}
			p := testParams()
			p.MaxNewHits = tt.maxNewHits
			r := runJob(t, testResources(map[string]string{"chr1": lay.seq}), p, job)
			require.Len(t, r.Predictions, 1)
			pred := r.Predictions[0]
			assert.Equal(t, tt.cut, pred.Cut)
			assert.False(t, pred.Backup)
			assert.Equal(t, []int{0, 1, 2}, partsOf(pred))
			assert.Equal(t, part0+part1+part2, pred.Protein)
			assert.Equal(t, selfScore(part0)+selfScore(part1)+selfScore(part2), pred.Score)
		})
	}
}

func TestPredict_BackupRegion(t *testing.T) {
	// a decoy copy of the last part between the first two splits the strand
	// into two regions that each miss a part; parts are long enough for
	// their hits to delimit regions
	p0, p1, p2 := part0+part2, part1+"GHIKLMNPQR", "STVWYACDEFKRHDENQSTG"
	tr := reference.NewTranscript("g6", "t6", p0, p1, p2)
	lay := buildLayout(encode(p0), encode(p2), encode(p1), encode(p2))
	job := &Job{
		Transcript: tr,
		Hits: []hit.Hit{
			exactHit(tr, 0, "chr1", true, lay.starts[0]),
			exactHit(tr, 2, "chr1", true, lay.starts[1]),
			exactHit(tr, 1, "chr1", true, lay.starts[2]),
			exactHit(tr, 2, "chr1", true, lay.starts[3]),
		},
		Lines:  4,
		Region: reference.Region{End: -1},
	}
	p := testParams()
	p.HitThreshold = 0

	r := runJob(t, testResources(map[string]string{"chr1": lay.seq}), p, job)
	require.Len(t, r.Predictions, 1)
	pred := r.Predictions[0]
	assert.True(t, pred.Backup)
	assert.False(t, pred.Cut)
	assert.Equal(t, []int{0, 1, 2}, partsOf(pred))
	assert.Equal(t, p0+p1+p2, pred.Protein)
	assert.Equal(t, selfScore(p0)+selfScore(p1)+selfScore(p2), pred.Score)
	assert.Equal(t, lay.starts[2], pred.Exons[1].Start)
}

func TestPredict_IntronGain(t *testing.T) {
	// the reference part part0+part1 is split by an intron in the target
	tr := reference.NewTranscript("g7", "t7", part0+part1, part2)
	lay := buildLayout(encode(part0), encode(part1), encode(part2))
	half := func(q string, queryStart, start int) hit.Hit {
		return hit.Hit{
			QueryID:     tr.QueryID(0),
			Gene:        tr.GeneID,
			Part:        tr.Parts[0],
			Contig:      "chr1",
			Forward:     true,
			QueryStart:  queryStart,
			QueryEnd:    queryStart + len(q) - 1,
			QueryLength: len(part0 + part1),
			Start:       start,
			End:         start + 3*len(q) - 1,
			Score:       selfScore(q),
			QueryAlign:  q,
			TargetAlign: q,
		}
	}
	want := selfScore(part0) + selfScore(part1) + selfScore(part2) - DefaultParams().IntronGainLoss

	for _, approx := range []bool{true, false} {
		t.Run(fmt.Sprintf("approx=%v", approx), func(t *testing.T) {
			job := &Job{
				Transcript: tr,
				Hits: []hit.Hit{
					half(part0, 1, lay.starts[0]),
					half(part1, len(part0)+1, lay.starts[1]),
					exactHit(tr, 1, "chr1", true, lay.starts[2]),
				},
				Lines:  3,
				Region: reference.Region{End: -1},
			}
			p := testParams()
			p.Approx = approx

			r := runJob(t, testResources(map[string]string{"chr1": lay.seq}), p, job)
			require.Len(t, r.Predictions, 1)
			pred := r.Predictions[0]
			assert.Equal(t, want, pred.Score)
			assert.Equal(t, []int{0, 0, 1}, partsOf(pred))
			assert.Equal(t, part0+part1+part2, pred.Protein)
			assert.True(t, pred.IntronGain)
			assert.False(t, pred.IntronLoss)
			assert.Len(t, pred.CDS, 3)
		})
	}
}

func TestPredict_StartCodonExtension(t *testing.T) {
	job, lay := canonicalJob("chr1", true)
	// the hit of part0 misses the leading methionine
	q := part0[1:]
	h := &job.Hits[0]
	h.QueryStart = 2
	h.Start += 3
	h.Score = selfScore(q)
	h.QueryAlign, h.TargetAlign = q, q

	r := runJob(t, testResources(map[string]string{"chr1": lay.seq}), testParams(), job)
	require.Len(t, r.Predictions, 1)
	pred := r.Predictions[0]
	assert.Equal(t, part0+part1, pred.Protein)
	assert.Equal(t, byte('M'), pred.FirstResidue())
	assert.Equal(t, lay.starts[0], pred.Start)
	assert.Equal(t, lay.starts[0], pred.CDS[0].Start)
	assert.Contains(t, pred.Exons[0].Info, "START (1 aa);")
	assert.Equal(t, selfScore(part0)+selfScore(part1), pred.Score)
}

func TestPredict_PrematureStopCount(t *testing.T) {
	tr := reference.NewTranscript("g8", "t8", part0, part1+"*")
	lay := buildLayout(encode(part0), encode(part1+"*"))
	job := &Job{
		Transcript: tr,
		Hits: []hit.Hit{
			exactHit(tr, 0, "chr1", true, lay.starts[0]),
			exactHit(tr, 1, "chr1", true, lay.starts[1]),
		},
		Lines:  2,
		Region: reference.Region{End: -1},
	}
	r := runJob(t, testResources(map[string]string{"chr1": lay.seq}), testParams(), job)
	require.Len(t, r.Predictions, 1)
	pred := r.Predictions[0]
	assert.Equal(t, part0+part1+"*", pred.Protein)
	assert.Equal(t, byte('*'), pred.LastResidue())
	assert.Equal(t, 0, pred.Stops)
}

func TestScheduler_TimeoutThenNext(t *testing.T) {
	job, lay := canonicalJob("chr1", true)
	res := testResources(map[string]string{"chr1": lay.seq})

	core, logs := observer.New(zap.WarnLevel)
	p := testParams()
	p.Timeout = time.Nanosecond
	s := NewScheduler(res, p)
	s.SetLogger(zap.New(core))

	r := s.Run(context.Background(), job)
	assert.Equal(t, TimedOut, r.State)
	assert.Equal(t, TimedOut, s.State())
	assert.ErrorIs(t, r.Err, ErrTimeout)
	assert.Empty(t, r.Predictions)
	assert.Equal(t, "timeout", r.Status())

	entries := logs.FilterMessage("transcript timed out").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "t1", entries[0].ContextMap()["transcript"])

	s.p.Timeout = time.Minute
	next, _ := canonicalJob("chr1", true)
	next.Seq = 1
	r = s.Run(context.Background(), next)
	assert.Equal(t, Completed, r.State)
	require.Len(t, r.Predictions, 1)
	assert.Equal(t, selfScore(part0)+selfScore(part1), r.Predictions[0].Score)
}

// denseJob returns a transcript of eight parts whose exact hits are each
// repeated copies times, so every choice of copies is a co-optimal chain.
func denseJob(contig string, copies int) (*Job, layout) {
	seqs := []string{part0, part1, part2, "GHIKLMNPQR", "STVWYACDEF", "KRHDENQSTG", "WYFLIVMACP", "QERTYIPASD"}
	tr := reference.NewTranscript("g9", "t9", seqs...)
	exons := make([]string, len(seqs))
	for i, s := range seqs {
		exons[i] = encode(s)
	}
	lay := buildLayout(exons...)
	var hits []hit.Hit
	for k := range seqs {
		for c := 0; c < copies; c++ {
			hits = append(hits, exactHit(tr, k, contig, true, lay.starts[k]))
		}
	}
	return &Job{Transcript: tr, Hits: hits, Lines: len(hits), Region: reference.Region{End: -1}}, lay
}

func TestScheduler_DenseHitsTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timeout test in short mode")
	}
	dense, denseLay := denseJob("chr2", 200)
	next, lay := canonicalJob("chr1", true)
	next.Seq = 1
	res := testResources(map[string]string{"chr1": lay.seq, "chr2": denseLay.seq})

	core, logs := observer.New(zap.WarnLevel)
	p := testParams()
	p.Timeout = time.Second
	p.Grace = time.Millisecond
	s := NewScheduler(res, p)
	s.SetLogger(zap.New(core))
	ws := s.ws

	r := s.Run(context.Background(), dense)
	assert.Equal(t, TimedOut, r.State)
	assert.ErrorIs(t, r.Err, ErrTimeout)
	assert.Empty(t, r.Predictions)
	assert.Equal(t, "timeout", r.Status())
	assert.Equal(t, 1600, r.Stats.Hits)
	assert.GreaterOrEqual(t, r.Stats.Elapsed, p.Timeout)
	assert.Less(t, r.Stats.Elapsed, p.Timeout+2*time.Second)
	assert.NotSame(t, ws, s.ws)

	entries := logs.FilterMessage("transcript timed out").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "t9", entries[0].ContextMap()["transcript"])

	r = s.Run(context.Background(), next)
	assert.Equal(t, Completed, r.State)
	assert.Equal(t, Completed, s.State())
	require.Len(t, r.Predictions, 1)
	pred := r.Predictions[0]
	assert.Equal(t, selfScore(part0)+selfScore(part1), pred.Score)
	assert.Equal(t, part0+part1, pred.Protein)
	assert.Equal(t, lay.starts[0], pred.Start)
}

func TestScheduler_Failures(t *testing.T) {
	t.Run("panic", func(t *testing.T) {
		job, _ := canonicalJob("chr1", true)
		res := NewResources(nil, nil, codon.Standard(codon.Ambiguous), testCosts())

		core, logs := observer.New(zap.WarnLevel)
		s := NewScheduler(res, testParams())
		s.SetLogger(zap.New(core))
		r := s.Run(context.Background(), job)
		assert.Equal(t, Failed, r.State)
		require.Error(t, r.Err)
		assert.Contains(t, r.Err.Error(), "panic")
		assert.Equal(t, 1, logs.FilterMessage("transcript failed").Len())
	})

	t.Run("unknown contig", func(t *testing.T) {
		job, lay := canonicalJob("chrX", true)
		res := testResources(map[string]string{"chr1": lay.seq})
		r := NewScheduler(res, testParams()).Run(context.Background(), job)
		assert.Equal(t, Failed, r.State)
		assert.ErrorIs(t, r.Err, genome.ErrNoSequence)
		assert.True(t, strings.HasPrefix(r.Status(), "error: "))
	})
}

func TestParallelPredict_Deterministic(t *testing.T) {
	lay := buildLayout(encode(part0), encode(part1), encode(part2))
	res := testResources(map[string]string{
		"chr1": lay.seq,
		"chr2": codon.ReverseComplement(lay.seq),
	})
	makeJobs := func() <-chan *Job {
		ch := make(chan *Job, 12)
		for i := 0; i < 12; i++ {
			tr := reference.NewTranscript(fmt.Sprintf("g%d", i), fmt.Sprintf("t%d", i), part0, part1, part2)
			contig, forward := "chr1", true
			if i%2 == 1 {
				contig, forward = "chr2", false
			}
			var hits []hit.Hit
			for k := 0; k < 3; k++ {
				if k == i%3 && i%4 == 0 {
					continue
				}
				hits = append(hits, exactHit(tr, k, contig, forward, lay.starts[k]))
			}
			ch <- &Job{Seq: i, Transcript: tr, Hits: hits, Lines: len(hits), Region: reference.Region{End: -1}}
		}
		close(ch)
		return ch
	}
	collect := func(workers int) []string {
		pr := NewPredictor(res, testParams())
		var out []string
		err := OrderedCollect(pr.ParallelPredict(context.Background(), makeJobs(), workers), func(r *Result) error {
			require.Len(t, r.Predictions, 1)
			p := r.Predictions[0]
			out = append(out, fmt.Sprintf("%d %s %s %d %d %d %s", r.Seq, p.TranscriptID, p.Contig, p.Start, p.End, p.Score, p.Protein))
			return nil
		})
		require.NoError(t, err)
		return out
	}

	one := collect(1)
	require.Len(t, one, 12)
	assert.Equal(t, one, collect(4))
	assert.Equal(t, one, collect(8))
}

func TestOrderedCollect_StopsOnError(t *testing.T) {
	results := make(chan *Result, 3)
	results <- &Result{Seq: 1}
	results <- &Result{Seq: 0}
	results <- &Result{Seq: 2}
	close(results)

	var seen []int
	err := OrderedCollect(results, func(r *Result) error {
		seen = append(seen, r.Seq)
		if r.Seq == 1 {
			return fmt.Errorf("stop")
		}
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, []int{0, 1}, seen)
}
