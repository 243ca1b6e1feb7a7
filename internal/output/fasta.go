package output

import (
	"bufio"
	"io"

	"github.com/inodb/vibe-gemoma/internal/predict"
)

// FASTAWriter writes predicted proteins, one sequence line per record.
type FASTAWriter struct {
	w      *bufio.Writer
	prefix string
}

// NewFASTAWriter creates a protein FASTA writer using the same ids as the
// GFF writer.
func NewFASTAWriter(w io.Writer, prefix string) *FASTAWriter {
	return &FASTAWriter{w: bufio.NewWriter(w), prefix: prefix}
}

// Write writes the protein of one prediction.
func (f *FASTAWriter) Write(p *predict.Prediction) error {
	if _, err := f.w.WriteString(">" + PredictionID(f.prefix, p) + "\n"); err != nil {
		return err
	}
	_, err := f.w.WriteString(p.Protein + "\n")
	return err
}

// Flush flushes the underlying writer.
func (f *FASTAWriter) Flush() error {
	return f.w.Flush()
}
