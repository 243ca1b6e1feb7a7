package evidence

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/rdleal/intervalst/interval"
	"github.com/shenwei356/xopen"

	"github.com/inodb/vibe-gemoma/internal/genome"
)

// Interval is a run of constant read coverage, 1-based inclusive, in strand
// coordinates.
type Interval struct {
	Start, End int
	Reads      int
}

type coverageTrack struct {
	intervals []Interval
	tree      *interval.SearchTree[int, int]
}

// Coverage indexes coverage intervals per contig and strand.
type Coverage struct {
	tracks map[strandKey]*coverageTrack
}

// NewCoverage returns an empty coverage index.
func NewCoverage() *Coverage {
	return &Coverage{tracks: make(map[strandKey]*coverageTrack)}
}

func cmpInt(x, y int) int { return x - y }

// Add adds a coverage interval in strand coordinates.
func (c *Coverage) Add(contig string, forward bool, iv Interval) error {
	k := strandKey{contig, forward}
	track := c.tracks[k]
	if track == nil {
		track = &coverageTrack{tree: interval.NewSearchTree[int, int](cmpInt)}
		c.tracks[k] = track
	}
	// stored half-open so single-base intervals have a non-empty range
	if err := track.tree.Insert(iv.Start, iv.End+1, len(track.intervals)); err != nil {
		return fmt.Errorf("index coverage %s:%d-%d: %w", contig, iv.Start, iv.End, err)
	}
	track.intervals = append(track.intervals, iv)
	return nil
}

// HasStrand reports whether coverage exists for the contig strand.
func (c *Coverage) HasStrand(contig string, forward bool) bool {
	return c != nil && c.tracks[strandKey{contig, forward}] != nil
}

// Stats summarises the coverage of a region.
type Stats struct {
	Len     int
	Covered int
	Min     int
	Sum     int
}

// Add accumulates another region.
func (s *Stats) Add(o Stats) {
	if s.Len == 0 || o.Min < s.Min {
		s.Min = o.Min
	}
	s.Len += o.Len
	s.Covered += o.Covered
	s.Sum += o.Sum
}

// Fraction returns the covered fraction.
func (s Stats) Fraction() float64 {
	if s.Len == 0 {
		return 0
	}
	return float64(s.Covered) / float64(s.Len)
}

// Mean returns the average coverage per base.
func (s Stats) Mean() float64 {
	if s.Len == 0 {
		return 0
	}
	return float64(s.Sum) / float64(s.Len)
}

// Region returns the coverage statistics of [lo, hi] (strand coordinates).
func (c *Coverage) Region(contig string, forward bool, lo, hi int) Stats {
	st := Stats{Len: hi - lo + 1}
	track := c.tracks[strandKey{contig, forward}]
	if track == nil || hi < lo {
		return st
	}
	idx, ok := track.tree.AllIntersections(lo, hi+1)
	if !ok {
		return st
	}
	lowest := -1
	for _, i := range idx {
		iv := track.intervals[i]
		s, e := max(iv.Start, lo), min(iv.End, hi)
		if s > e {
			continue
		}
		n := e - s + 1
		st.Covered += n
		st.Sum += n * iv.Reads
		if lowest < 0 || iv.Reads < lowest {
			lowest = iv.Reads
		}
	}
	if st.Covered == st.Len && lowest >= 0 {
		st.Min = lowest
	}
	return st
}

// CoverageFiles names bedgraph inputs: either a forward/reverse pair or one
// unstranded file used for both strands.
type CoverageFiles struct {
	Forward    string
	Reverse    string
	Unstranded string
}

// Empty reports whether no file is given.
func (f CoverageFiles) Empty() bool {
	return f.Forward == "" && f.Reverse == "" && f.Unstranded == ""
}

// LoadCoverage reads bedgraph coverage (0-based start, exclusive end).
func LoadCoverage(files CoverageFiles, g *genome.Genome) (*Coverage, error) {
	c := NewCoverage()
	if files.Unstranded != "" {
		if err := c.loadBedGraph(files.Unstranded, g, true, true); err != nil {
			return nil, err
		}
	}
	if files.Forward != "" {
		if err := c.loadBedGraph(files.Forward, g, true, false); err != nil {
			return nil, err
		}
	}
	if files.Reverse != "" {
		if err := c.loadBedGraph(files.Reverse, g, false, true); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Coverage) loadBedGraph(path string, g *genome.Genome, forward, reverse bool) error {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return fmt.Errorf("open coverage file: %w", err)
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "track") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return fmt.Errorf("coverage line %d: expected 4 columns: %q", lineNum, line)
		}
		start, err1 := strconv.Atoi(fields[1])
		end, err2 := strconv.Atoi(fields[2])
		reads, err3 := strconv.Atoi(fields[3])
		if err1 != nil || err2 != nil || err3 != nil || end <= start {
			return fmt.Errorf("coverage line %d: invalid interval: %q", lineNum, line)
		}
		n := g.Len(fields[0])
		if n < 0 {
			continue
		}
		if forward {
			if err := c.Add(fields[0], true, Interval{Start: start + 1, End: end, Reads: reads}); err != nil {
				return err
			}
		}
		if reverse {
			if err := c.Add(fields[0], false, Interval{Start: n - end + 1, End: n - start, Reads: reads}); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read coverage file: %w", err)
	}
	return nil
}
