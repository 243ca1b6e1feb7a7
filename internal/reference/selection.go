package reference

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

// Region restricts the search of one transcript. Zero fields mean no
// restriction: empty Contig, Strand 0, End -1.
type Region struct {
	Contig string
	Strand int
	Start  int
	End    int
}

// Bounded reports whether the region limits coordinates.
func (r Region) Bounded() bool {
	return !(r.Start == 0 && r.End == -1)
}

// Excludes reports whether the genomic interval [start, end] lies outside
// the region. A negative End leaves the region open to the right.
func (r Region) Excludes(start, end int) bool {
	return end < r.Start || (r.End >= 0 && start > r.End)
}

// Selection lists the transcripts to predict. A nil selection selects all.
type Selection struct {
	regions map[string]Region
}

// Lookup returns the region of a selected transcript.
func (s *Selection) Lookup(id string) (Region, bool) {
	if s == nil {
		return Region{End: -1}, true
	}
	r, ok := s.regions[strings.ToUpper(id)]
	return r, ok
}

// Len returns the number of selected transcripts.
func (s *Selection) Len() int {
	if s == nil {
		return 0
	}
	return len(s.regions)
}

// LoadSelection reads the selection file: transcript id, optionally followed
// by contig, strand (+, -, 1, -1), start and end.
func LoadSelection(path string) (*Selection, error) {
	fh, err := xopen.Ropen(path)
	if err != nil {
		return nil, fmt.Errorf("open selection file: %w", err)
	}
	defer fh.Close()

	s := &Selection{regions: make(map[string]Region)}
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Split(line, "\t")
		r := Region{End: -1}
		if len(fields) > 1 {
			r.Contig = fields[1]
		}
		if len(fields) > 2 {
			switch fields[2] {
			case "+", "1":
				r.Strand = 1
			case "-", "-1":
				r.Strand = -1
			}
		}
		if len(fields) > 3 {
			if v, err := strconv.Atoi(fields[3]); err == nil {
				r.Start = v
			}
		}
		if len(fields) > 4 {
			if v, err := strconv.Atoi(fields[4]); err == nil {
				r.End = v
			}
		}
		s.regions[strings.ToUpper(fields[0])] = r
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read selection file: %w", err)
	}
	return s, nil
}
