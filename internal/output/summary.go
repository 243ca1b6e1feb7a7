package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/vibe-gemoma/internal/predict"
)

// summaryColumns are the columns of the per-transcript summary table.
var summaryColumns = []string{
	"#gene",
	"transcript",
	"#parts",
	"#predicted hits",
	"#hits",
	"#strands",
	"best sum score",
	"#candidate strands",
	"#remaining solutions",
	"#alignments",
	"score",
	"chr",
	"strand",
	"start",
	"end",
	"runtime (s)",
	"#cds",
	"first part",
	"first AA",
	"last part",
	"last AA",
	"#stops",
	"intron gain",
	"intron loss",
	"backup",
	"cut",
	"minimal score",
	"alignment score",
	"optimal score",
	"positives",
	"identity",
	"max gap",
	"ref length",
	"pred length",
	"tae",
	"tde",
	"tie",
	"tpc",
	"minCov",
	"similar",
	"status",
}

const na = "NA"

// SummaryWriter writes one row per prediction, or one row per transcript
// without prediction, and accumulates run statistics.
type SummaryWriter struct {
	w     *bufio.Writer
	stats RunStats
}

// NewSummaryWriter creates a summary table writer.
func NewSummaryWriter(w io.Writer) *SummaryWriter {
	return &SummaryWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the header line.
func (s *SummaryWriter) WriteHeader() error {
	_, err := s.w.WriteString(strings.Join(summaryColumns, "\t") + "\n")
	return err
}

// Write writes the rows of one transcript result.
func (s *SummaryWriter) Write(r *predict.Result) error {
	s.stats.Add(r)
	if len(r.Predictions) == 0 {
		row := make([]string, len(summaryColumns))
		for i := range row {
			row[i] = na
		}
		row[0], row[1] = r.Transcript.GeneID, r.Transcript.ID
		row[2] = strconv.Itoa(r.Transcript.NumParts())
		row[4] = strconv.Itoa(r.Stats.Hits)
		row[5] = strconv.Itoa(r.Stats.Strands)
		row[15] = seconds(r)
		row[len(row)-1] = r.Status()
		return s.row(row)
	}
	for _, p := range r.Predictions {
		if err := s.row(predictionRow(r, p)); err != nil {
			return err
		}
	}
	return nil
}

func predictionRow(r *predict.Result, p *predict.Prediction) []string {
	strand := "-1"
	if p.Forward {
		strand = "+1"
	}
	row := []string{
		p.GeneID,
		p.TranscriptID,
		strconv.Itoa(r.Transcript.NumParts()),
		strconv.Itoa(len(p.Exons)),
		strconv.Itoa(r.Stats.Hits),
		strconv.Itoa(r.Stats.Strands),
		strconv.Itoa(r.Stats.BestSum),
		strconv.Itoa(r.Stats.CandidateStrands),
		strconv.Itoa(p.Remaining),
		strconv.Itoa(r.Stats.Alignments),
		strconv.Itoa(p.Score),
		p.Contig,
		strand,
		strconv.Itoa(p.Start),
		strconv.Itoa(p.End),
		seconds(r),
		strconv.Itoa(len(p.CDS)),
		strconv.FormatBool(p.FirstPart),
		string(p.FirstResidue()),
		strconv.FormatBool(p.LastPart),
		string(p.LastResidue()),
		strconv.Itoa(p.Stops),
		strconv.FormatBool(p.IntronGain),
		strconv.FormatBool(p.IntronLoss),
		strconv.FormatBool(p.Backup),
		strconv.FormatBool(p.Cut),
	}
	if c := p.Comparison; c != nil {
		row = append(row,
			strconv.Itoa(c.MinimalScore),
			strconv.Itoa(c.Score),
			strconv.Itoa(c.OptimalScore),
			FormatDecimal(c.Positives),
			FormatDecimal(c.Identity),
			strconv.Itoa(c.MaxGap),
			strconv.Itoa(c.RefLength),
			strconv.Itoa(c.PredLength))
	} else {
		row = append(row, na, na, na, na, na, na, na, na)
	}

	ev := p.Evidence
	if ev.HasIntrons {
		row = append(row,
			ratio(ev.ConfirmedAcceptors, ev.Acceptors),
			ratio(ev.ConfirmedDonors, ev.Donors),
			ratio(ev.ConfirmedIntrons, ev.Introns))
	} else {
		row = append(row, na, na, na)
	}
	if ev.HasCoverage {
		row = append(row, FormatDecimal(ev.Coverage.Fraction()), strconv.Itoa(ev.Coverage.Min))
	} else {
		row = append(row, na, na)
	}

	similar := na
	if p.HasSimilar {
		similar = strconv.Itoa(p.Similar)
	}
	return append(row, similar, r.Status())
}

func seconds(r *predict.Result) string {
	return strconv.FormatFloat(r.Stats.Elapsed.Seconds(), 'f', 3, 64)
}

func (s *SummaryWriter) row(fields []string) error {
	_, err := s.w.WriteString(strings.Join(fields, "\t") + "\n")
	return err
}

// Flush flushes the writer.
func (s *SummaryWriter) Flush() error {
	return s.w.Flush()
}

// Stats returns the statistics of all written results.
func (s *SummaryWriter) Stats() RunStats {
	return s.stats
}

// RunStats counts transcripts and predictions of a run.
type RunStats struct {
	Transcripts  int
	Predicted    int
	Timeouts     int
	Failures     int
	Predictions  int
	StartM       int
	StopCodon    int
	IntronGains  int
	IntronLosses int
}

// Add counts one transcript result.
func (st *RunStats) Add(r *predict.Result) {
	st.Transcripts++
	switch r.State {
	case predict.TimedOut:
		st.Timeouts++
	case predict.Failed:
		st.Failures++
	}
	if len(r.Predictions) > 0 {
		st.Predicted++
	}
	for _, p := range r.Predictions {
		st.Predictions++
		if p.FirstResidue() == 'M' {
			st.StartM++
		}
		if p.LastResidue() == '*' {
			st.StopCodon++
		}
		if p.IntronGain {
			st.IntronGains++
		}
		if p.IntronLoss {
			st.IntronLosses++
		}
	}
}

// WriteSummary writes the run statistics to w.
func (st RunStats) WriteSummary(w io.Writer) {
	pct := func(n int) float64 {
		if st.Predictions == 0 {
			return 0
		}
		return float64(n) / float64(st.Predictions) * 100
	}
	fmt.Fprintf(w, "\nPrediction Summary:\n")
	fmt.Fprintf(w, "  Transcripts:     %d\n", st.Transcripts)
	fmt.Fprintf(w, "  Predicted:       %d\n", st.Predicted)
	fmt.Fprintf(w, "  Timeouts:        %d\n", st.Timeouts)
	fmt.Fprintf(w, "  Failures:        %d\n", st.Failures)
	fmt.Fprintf(w, "  Predictions:     %d\n", st.Predictions)
	fmt.Fprintf(w, "  Start M:         %d (%.1f%%)\n", st.StartM, pct(st.StartM))
	fmt.Fprintf(w, "  Stop *:          %d (%.1f%%)\n", st.StopCodon, pct(st.StopCodon))
	fmt.Fprintf(w, "  Intron gain:     %d (%.1f%%)\n", st.IntronGains, pct(st.IntronGains))
	fmt.Fprintf(w, "  Intron loss:     %d (%.1f%%)\n", st.IntronLosses, pct(st.IntronLosses))
}
