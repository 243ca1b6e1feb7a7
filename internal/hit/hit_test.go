package hit

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-gemoma/internal/align"
)

type lengths map[string]int

func (l lengths) Len(contig string) int {
	if n, ok := l[contig]; ok {
		return n
	}
	return -1
}

// line builds a search-hit line with the given values in the used columns.
func line(qid, contig string, qs, qe, ts, te int, evalue string, score int, qa, ta string, ql int) string {
	f := make([]string, minColumns)
	for i := range f {
		f[i] = "0"
	}
	f[colQueryID] = qid
	f[colTargetID] = contig
	f[colQueryStart] = strconv.Itoa(qs)
	f[colQueryEnd] = strconv.Itoa(qe)
	f[colTargetStart] = strconv.Itoa(ts)
	f[colTargetEnd] = strconv.Itoa(te)
	f[colEValue] = evalue
	f[colScore] = strconv.Itoa(score)
	f[colQueryAlign] = qa
	f[colTargetAlign] = ta
	f[colQueryLength] = strconv.Itoa(ql)
	return strings.Join(f, "\t")
}

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord(line("geneA_3", "chr1", 2, 5, 101, 112, "1e-5", 20, "KVLW", "KBZW", 40))
	require.NoError(t, err)

	assert.Equal(t, "geneA", rec.Gene)
	assert.Equal(t, 3, rec.Part)
	assert.Equal(t, "chr1", rec.Contig)
	assert.True(t, rec.Forward)
	assert.Equal(t, 2, rec.QueryStart)
	assert.Equal(t, 5, rec.QueryEnd)
	assert.Equal(t, 40, rec.QueryLength)
	assert.Equal(t, 20, rec.Score)
	assert.Equal(t, "KXXW", rec.TargetAlign)
	assert.InDelta(t, 1e-5, rec.EValue, 1e-12)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		ts, te     int
		forward    bool
		start, end int
	}{
		{"forward", 101, 112, true, 101, 112},
		{"reverse", 300, 211, false, 701, 790},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseRecord(line("g_0", "c", 1, 4, tt.ts, tt.te, "0", 10, "KVLW", "KVLW", 4))
			require.NoError(t, err)
			h, err := rec.Normalize(1000)
			require.NoError(t, err)
			assert.Equal(t, tt.forward, h.Forward)
			assert.Equal(t, tt.start, h.Start)
			assert.Equal(t, tt.end, h.End)
			assert.LessOrEqual(t, h.Start, h.End)
		})
	}

	rec, err := ParseRecord(line("g_0", "c", 1, 4, 990, 1001, "0", 10, "KVLW", "KVLW", 4))
	require.NoError(t, err)
	_, err = rec.Normalize(1000)
	assert.Error(t, err)
}

func TestParseRecord_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few columns", "g_1\tchr1\t1"},
		{"bad part", line("gene", "c", 1, 4, 1, 12, "0", 10, "KVLW", "KVLW", 4)},
		{"bad number", strings.Replace(line("g_1", "c", 1, 4, 1, 12, "0", 10, "KVLW", "KVLW", 4), "\t12\t", "\tx\t", 1)},
		{"alignment length", line("g_1", "c", 1, 4, 1, 12, "0", 10, "KVLW", "KVL", 4)},
		{"empty target interval", line("g_1", "c", 1, 4, 5, 5, "0", 10, "KVLW", "KVLW", 4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRecord(tt.line)
			assert.Error(t, err)
		})
	}
}

func TestSplitQueryID(t *testing.T) {
	gene, part, err := SplitQueryID("AT1G01010_with_underscore_12")
	require.NoError(t, err)
	assert.Equal(t, "AT1G01010_with_underscore", gene)
	assert.Equal(t, 12, part)

	_, _, err = SplitQueryID("nopart_")
	assert.Error(t, err)
}

func TestReader_Groups(t *testing.T) {
	input := strings.Join([]string{
		"# comment",
		line("a_0", "c1", 1, 4, 1, 12, "1e-10", 20, "KVLW", "KVLW", 4),
		line("a_1", "c1", 1, 4, 100, 89, "1e-10", 20, "KVLW", "KVLW", 4),
		line("a_1", "c2", 1, 4, 1, 12, "500", 20, "KVLW", "KVLW", 4),
		"",
		line("b_0", "c2", 1, 4, 13, 24, "1e-3", 20, "KVLW", "KVLW", 4),
	}, "\n") + "\n"

	r := NewReader(strings.NewReader(input), lengths{"c1": 100, "c2": 50}, 100)

	g, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", g.Gene)
	assert.Equal(t, 3, g.Lines)
	require.Len(t, g.Hits, 2, "the hit above the e-value cutoff is dropped")
	assert.False(t, g.Hits[1].Forward)
	assert.Equal(t, 1, g.Hits[1].Start)
	assert.Equal(t, 12, g.Hits[1].End)
	assert.NotEqual(t, g.Hits[0].ID, g.Hits[1].ID)

	g, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", g.Gene)
	assert.Len(t, g.Hits, 1)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_Errors(t *testing.T) {
	t.Run("malformed line", func(t *testing.T) {
		input := line("a_0", "c1", 1, 4, 1, 12, "0", 20, "KVLW", "KVLW", 4) + "\nbroken\tline\n"
		r := NewReader(strings.NewReader(input), lengths{"c1": 100}, 100)
		_, err := r.Next()
		var pe *ParseError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, 2, pe.Line)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("unknown contig", func(t *testing.T) {
		input := line("a_0", "chrX", 1, 4, 1, 12, "0", 20, "KVLW", "KVLW", 4) + "\n"
		r := NewReader(strings.NewReader(input), lengths{"c1": 100}, 100)
		_, err := r.Next()
		assert.ErrorContains(t, err, "unknown contig")
	})

	t.Run("gene not consecutive", func(t *testing.T) {
		input := strings.Join([]string{
			line("a_0", "c1", 1, 4, 1, 12, "0", 20, "KVLW", "KVLW", 4),
			line("b_0", "c1", 1, 4, 1, 12, "0", 20, "KVLW", "KVLW", 4),
			line("a_1", "c1", 1, 4, 1, 12, "0", 20, "KVLW", "KVLW", 4),
		}, "\n")
		r := NewReader(strings.NewReader(input), lengths{"c1": 100}, 100)
		_, err := r.Next()
		require.NoError(t, err)
		_, err = r.Next()
		require.NoError(t, err)
		_, err = r.Next()
		assert.ErrorContains(t, err, "not consecutive")
	})
}

func TestSplitAtStops(t *testing.T) {
	costs := align.Costs{Matrix: align.BLOSUM62(), GapOpen: 11, GapExtend: 1}

	t.Run("no stop", func(t *testing.T) {
		h := Hit{QueryStart: 1, QueryEnd: 4, Start: 10, End: 21, Score: 20, QueryAlign: "KVLW", TargetAlign: "KVLW"}
		assert.Equal(t, []Hit{h}, SplitAtStops(h, costs))
	})

	t.Run("stop aligned to stop", func(t *testing.T) {
		h := Hit{QueryStart: 1, QueryEnd: 4, Start: 10, End: 21, Score: 20, QueryAlign: "KVL*", TargetAlign: "KVL*"}
		assert.Equal(t, []Hit{h}, SplitAtStops(h, costs))
	})

	t.Run("mismatched stop", func(t *testing.T) {
		h := Hit{QueryStart: 5, QueryEnd: 13, Start: 100, End: 126, Score: 30,
			QueryAlign: "ACDEFGHIK", TargetAlign: "ACD*FGHIK", Info: "search;"}
		pieces := SplitAtStops(h, costs)
		require.Len(t, pieces, 2)

		assert.Equal(t, 5, pieces[0].QueryStart)
		assert.Equal(t, 7, pieces[0].QueryEnd)
		assert.Equal(t, 100, pieces[0].Start)
		assert.Equal(t, 108, pieces[0].End)
		assert.Equal(t, 19, pieces[0].Score)

		assert.Equal(t, 9, pieces[1].QueryStart)
		assert.Equal(t, 13, pieces[1].QueryEnd)
		assert.Equal(t, 112, pieces[1].Start)
		assert.Equal(t, 126, pieces[1].End)
		assert.Equal(t, "FGHIK", pieces[1].TargetAlign)
		assert.Contains(t, pieces[1].Info, "split")

		// the stop codon and the residue opposite it are excised
		assert.Equal(t, 3, pieces[1].Start-pieces[0].End-1)
	})

	t.Run("stop opposite a query gap", func(t *testing.T) {
		h := Hit{QueryStart: 1, QueryEnd: 4, Start: 1, End: 15, Score: 20,
			QueryAlign: "AC-FG", TargetAlign: "AC*FG"}
		pieces := SplitAtStops(h, costs)
		require.Len(t, pieces, 2)
		assert.Equal(t, 3, pieces[1].QueryStart)
		assert.Equal(t, 10, pieces[1].Start)
		assert.Equal(t, 15, pieces[1].End)
	})

	t.Run("non-positive piece dropped", func(t *testing.T) {
		h := Hit{QueryStart: 1, QueryEnd: 5, Start: 1, End: 15, Score: 10,
			QueryAlign: "AWKKK", TargetAlign: "L*KKK"}
		pieces := SplitAtStops(h, costs)
		require.Len(t, pieces, 1)
		assert.Equal(t, 3, pieces[0].QueryStart)
		assert.Equal(t, 7, pieces[0].Start)
		assert.Equal(t, 15, pieces[0].End)
		assert.Equal(t, 15, pieces[0].Score)
	})
}
