// Package output provides prediction output formatters.
package output

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/vibe-gemoma/internal/predict"
)

// Source is the GFF source column of all written features.
const Source = "vibe-gemoma"

// GFFWriter writes predictions as GFF3: one transcript feature per
// prediction followed by its CDS features in transcription order.
type GFFWriter struct {
	w      *bufio.Writer
	tag    string
	prefix string
}

// NewGFFWriter creates a GFF3 writer. tag is the feature type of the
// transcript lines and prefix is prepended to every prediction id.
func NewGFFWriter(w io.Writer, tag, prefix string) *GFFWriter {
	if tag == "" {
		tag = "mRNA"
	}
	return &GFFWriter{w: bufio.NewWriter(w), tag: tag, prefix: prefix}
}

// WriteHeader writes the GFF3 version pragma.
func (g *GFFWriter) WriteHeader() error {
	_, err := g.w.WriteString("##gff-version 3\n")
	return err
}

// PredictionID returns the id of a prediction: prefix, transcript id and rank.
func PredictionID(prefix string, p *predict.Prediction) string {
	return prefix + p.TranscriptID + "_R" + strconv.Itoa(p.Rank)
}

// Write writes one prediction.
func (g *GFFWriter) Write(p *predict.Prediction) error {
	id := PredictionID(g.prefix, p)
	strand := "-"
	if p.Forward {
		strand = "+"
	}
	ev := p.Evidence

	attrs := []string{
		"ID=" + escapeAttr(id),
		"ref-gene=" + escapeAttr(p.GeneID),
		"AA=" + strconv.Itoa(p.AA()),
		"score=" + strconv.Itoa(p.Score),
	}
	if ev.HasIntrons {
		attrs = append(attrs,
			"tae="+ratio(ev.ConfirmedAcceptors, ev.Acceptors),
			"tde="+ratio(ev.ConfirmedDonors, ev.Donors),
			"tie="+ratio(ev.ConfirmedIntrons, ev.Introns),
			"minSplitReads="+countOrUnknown(ev.MinSplitReads, ev.Introns))
	}
	if ev.HasCoverage {
		attrs = append(attrs,
			"tpc="+FormatDecimal(ev.Coverage.Fraction()),
			"minCov="+strconv.Itoa(ev.Coverage.Min),
			"avgCov="+FormatDecimal(ev.Coverage.Mean()))
	}
	if p.Comparison != nil {
		attrs = append(attrs, "iAA="+FormatDecimal(p.Comparison.Identity))
	}
	attrs = append(attrs,
		"start="+string(p.FirstResidue()),
		"stop="+string(p.LastResidue()))
	if err := g.line(p.Contig, g.tag, p.Start, p.End, strand, ".", attrs); err != nil {
		return err
	}

	for k, c := range p.CDS {
		attrs := []string{
			"ID=" + escapeAttr(id+"_cds"+strconv.Itoa(k)),
			"Parent=" + escapeAttr(id),
		}
		if ev.HasIntrons {
			if k > 0 {
				attrs = append(attrs, "ae="+strconv.FormatBool(c.AcceptorEvidence))
			}
			if k < len(p.CDS)-1 {
				attrs = append(attrs, "de="+strconv.FormatBool(c.DonorEvidence))
			}
		}
		if ev.HasCoverage {
			attrs = append(attrs,
				"pc="+FormatDecimal(c.Coverage.Fraction()),
				"minCov="+strconv.Itoa(c.Coverage.Min))
		}
		if err := g.line(p.Contig, "CDS", c.GenomicStart, c.GenomicEnd, strand, strconv.Itoa(c.Phase), attrs); err != nil {
			return err
		}
	}
	return nil
}

func (g *GFFWriter) line(contig, typ string, start, end int, strand, phase string, attrs []string) error {
	fields := []string{
		contig, Source, typ,
		strconv.Itoa(start), strconv.Itoa(end),
		".", strand, phase,
		strings.Join(attrs, ";"),
	}
	_, err := g.w.WriteString(strings.Join(fields, "\t") + "\n")
	return err
}

// Flush flushes the underlying writer.
func (g *GFFWriter) Flush() error {
	return g.w.Flush()
}

// FormatDecimal formats a value with at most four decimals and no trailing
// zeros.
func FormatDecimal(v float64) string {
	s := strconv.FormatFloat(v, 'f', 4, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// ratio formats n/d, "?" if d is 0.
func ratio(n, d int) string {
	if d == 0 {
		return "?"
	}
	return FormatDecimal(float64(n) / float64(d))
}

func countOrUnknown(v, d int) string {
	if d == 0 {
		return "?"
	}
	return strconv.Itoa(v)
}

var attrEscaper = strings.NewReplacer(
	"%", "%25",
	";", "%3B",
	"=", "%3D",
	"&", "%26",
	",", "%2C",
	"\t", "%09",
)

// escapeAttr percent-encodes the characters reserved in GFF3 attribute
// values.
func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}
