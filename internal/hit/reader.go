package hit

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/shenwei356/xopen"
)

// ContigLengths resolves contig lengths for strand normalization.
type ContigLengths interface {
	// Len returns the contig length or -1 if the contig is unknown.
	Len(contig string) int
}

// Group holds all hits of one reference gene.
type Group struct {
	Gene string
	Hits []Hit
	// Lines is the number of records read for the gene, filtered ones included.
	Lines int
}

// ParseError is a malformed search-hit line.
type ParseError struct {
	Line    int
	Text    string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("hit parse error at line %d: %s: %q", e.Line, e.Message, e.Text)
}

// Reader streams search hits grouped by gene. Records of one gene must be
// consecutive.
type Reader struct {
	r       *bufio.Reader
	closer  io.Closer
	lengths ContigLengths
	maxE    float64

	lineNumber int
	pending    *Record
	seen       map[string]bool
	nextID     int
}

// Open opens a hit file (plain or compressed, "-" for stdin). Hits with an
// e-value above maxEValue are dropped.
func Open(path string, lengths ContigLengths, maxEValue float64) (*Reader, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open hit file: %w", err)
	}
	r := NewReader(fh, lengths, maxEValue)
	r.closer = fh
	return r, nil
}

// NewReader reads hits from r.
func NewReader(r io.Reader, lengths ContigLengths, maxEValue float64) *Reader {
	return &Reader{
		r:       bufio.NewReaderSize(r, 1<<16),
		lengths: lengths,
		maxE:    maxEValue,
		seen:    make(map[string]bool),
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// next returns the next parsed record, skipping comments and empty lines.
func (r *Reader) next() (*Record, error) {
	if r.pending != nil {
		rec := r.pending
		r.pending = nil
		return rec, nil
	}
	for {
		line, err := r.r.ReadString('\n')
		if len(line) == 0 && err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read hits: %w", err)
		}
		r.lineNumber++
		line = strings.TrimRight(line, "\r\n")
		if line == "" || line[0] == '#' {
			continue
		}
		rec, perr := ParseRecord(line)
		if perr != nil {
			return nil, &ParseError{Line: r.lineNumber, Text: line, Message: perr.Error()}
		}
		return rec, nil
	}
}

// Next returns the hits of the next gene. It returns io.EOF after the last
// gene.
func (r *Reader) Next() (*Group, error) {
	var g *Group
	for {
		rec, err := r.next()
		if err == io.EOF {
			if g == nil {
				return nil, io.EOF
			}
			return g, nil
		}
		if err != nil {
			return nil, err
		}
		if g == nil {
			if r.seen[rec.Gene] {
				return nil, &ParseError{Line: r.lineNumber, Text: rec.QueryID,
					Message: fmt.Sprintf("hits of gene %s are not consecutive", rec.Gene)}
			}
			r.seen[rec.Gene] = true
			g = &Group{Gene: rec.Gene}
		} else if rec.Gene != g.Gene {
			r.pending = rec
			return g, nil
		}

		g.Lines++
		if rec.EValue > r.maxE {
			continue
		}
		n := r.lengths.Len(rec.Contig)
		if n < 0 {
			return nil, &ParseError{Line: r.lineNumber, Text: rec.QueryID,
				Message: fmt.Sprintf("unknown contig %s", rec.Contig)}
		}
		h, err := rec.Normalize(n)
		if err != nil {
			return nil, &ParseError{Line: r.lineNumber, Text: rec.QueryID, Message: err.Error()}
		}
		r.nextID++
		h.ID = r.nextID
		g.Hits = append(g.Hits, h)
	}
}
