package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	files := Files{
		Assignment: writeFile(t, dir, "assignment.tsv",
			"#geneID\ttranscript\tcds-parts\tphases\tchr\tstrand\tstart\tend\tfull-length\n"+
				"g2\tt2b\t3,4\t0,1\tchr1\t+\t100\t900\ttrue\tG\t2500\n"+
				"g1\tt1\t1,2\t0,2\tchr2\t-\t5\t50\ttrue\n"+
				"g2\tt2a\t3\t0\tchr1\t+\t100\t500\tfalse\n"),
		Parts: writeFile(t, dir, "parts.fa",
			">g1_1\nMKV\n>g1_2\nLW*\n>g2_3\nMAAA\n>g2_4\nCC*\n"),
		Proteins: writeFile(t, dir, "proteins.fa", ">t1\nMKVLW*\n"),
	}

	ref, err := Load(files, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ref.TranscriptCount())
	assert.Equal(t, []string{"g1", "g2"}, ref.Genes())

	g2 := ref.Gene("g2")
	require.Len(t, g2, 2)
	assert.Equal(t, "t2a", g2[0].ID)
	assert.Equal(t, "t2b", g2[1].ID)

	t2b := g2[1]
	assert.Equal(t, []int{3, 4}, t2b.Parts)
	assert.Equal(t, []string{"G"}, t2b.SplitAA)
	assert.Equal(t, 2500, t2b.MaxIntron)
	assert.Equal(t, 5, t2b.CumLength(1))
	assert.Equal(t, 4, t2b.RevCumLength(0))
	assert.Equal(t, 8, t2b.TotalLength())
	assert.Equal(t, "AAGCC", t2b.Between(0, 3, 1, 2))

	t1, ok := ref.Transcript("t1")
	require.True(t, ok)
	assert.Equal(t, "MKVLW*", t1.Protein)
	assert.Equal(t, "g1_2", t1.QueryID(1))
	idx, ok := t1.PartIndex(2)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	assert.True(t, t1.StartsWithM())
	assert.True(t, t1.EndsWithStop())
	assert.True(t, t1.ProteinStartsWithM())
	assert.Equal(t, "chr2", t1.RefContig)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	parts := writeFile(t, dir, "parts.fa", ">g_1\nMK\n")
	tests := []struct {
		name       string
		assignment string
	}{
		{"too few columns", "g\tt\n"},
		{"bad parts", "g\tt\t1,x\n"},
		{"duplicate part", "g\tt\t1,1\n"},
		{"duplicate transcript", "g\tt\t1\ng\tt\t1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "a.tsv", tt.assignment)
			_, err := Load(Files{Assignment: path, Parts: parts}, nil)
			assert.Error(t, err)
		})
	}
}

func TestNewTranscript(t *testing.T) {
	tr := NewTranscript("g", "t", "MKV", "LLLL", "W*")
	assert.Equal(t, 3, tr.NumParts())
	assert.Equal(t, []int{0, 3, 7}, []int{tr.CumLength(0), tr.CumLength(1), tr.CumLength(2)})
	assert.Equal(t, []int{6, 2, 0}, []int{tr.RevCumLength(0), tr.RevCumLength(1), tr.RevCumLength(2)})
	assert.Equal(t, "VLLLLW", tr.Between(0, 3, 2, 1))
	assert.Equal(t, "KV", tr.Between(0, 2, 0, 3))
	assert.Empty(t, tr.Between(1, 3, 1, 2))
}

func TestLoadSelection(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sel.tsv", "t1\nt2\tchr1\t-\t100\t200\nt3\tchr2\t+\n")
	sel, err := LoadSelection(path)
	require.NoError(t, err)
	assert.Equal(t, 3, sel.Len())

	r, ok := sel.Lookup("T1")
	require.True(t, ok)
	assert.False(t, r.Bounded())

	r, ok = sel.Lookup("t2")
	require.True(t, ok)
	assert.Equal(t, Region{Contig: "chr1", Strand: -1, Start: 100, End: 200}, r)
	assert.True(t, r.Excludes(10, 99))
	assert.False(t, r.Excludes(150, 250))

	_, ok = sel.Lookup("t4")
	assert.False(t, ok)

	var all *Selection
	r, ok = all.Lookup("anything")
	assert.True(t, ok)
	assert.False(t, r.Bounded())
}
