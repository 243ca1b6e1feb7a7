package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-gemoma/internal/predict"
)

var backCodon = map[byte]string{
	'A': "GCT", 'C': "TGT", 'D': "GAT", 'E': "GAA", 'F': "TTT",
	'G': "GGT", 'H': "CAT", 'I': "ATT", 'K': "AAA", 'L': "CTG",
	'M': "ATG", 'N': "AAC", 'P': "CCT", 'Q': "CAA", 'R': "CGT",
	'S': "TCT", 'T': "ACT", 'V': "GTT", 'W': "TGG", 'Y': "TAT",
}

func encode(protein string) string {
	var sb strings.Builder
	for i := 0; i < len(protein); i++ {
		sb.WriteString(backCodon[protein[i]])
	}
	return sb.String()
}

// hitLine builds a tabular search hit with the columns the reader uses.
func hitLine(qid, contig string, ts, te int, seq string) string {
	f := make([]string, 23)
	for i := range f {
		f[i] = "0"
	}
	f[0] = qid
	f[1] = contig
	f[6] = "1"
	f[7] = strconv.Itoa(len(seq))
	f[8] = strconv.Itoa(ts)
	f[9] = strconv.Itoa(te)
	f[10] = "1e-10"
	f[13] = "50"
	f[20] = seq
	f[21] = seq
	f[22] = strconv.Itoa(len(seq))
	return strings.Join(f, "\t")
}

type fixture struct {
	dir        string
	hits       string
	assignment string
	genome     string
	parts      string
}

// newFixture writes a one-transcript gene of two exons separated by a
// canonical intron.
func newFixture(t *testing.T) fixture {
	t.Helper()
	const part1, part2 = "MAGKLWRDEF", "SPTVINQHYC"
	flank := strings.Repeat("C", 60)
	intron := "GT" + strings.Repeat("C", 40) + "AG"
	exon1, exon2 := encode(part1), encode(part2)
	seq := flank + exon1 + intron + exon2 + flank
	start1 := len(flank) + 1
	start2 := len(flank) + len(exon1) + len(intron) + 1

	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	return fixture{
		dir:        dir,
		genome:     write("genome.fa", ">chr1\n"+seq+"\n"),
		parts:      write("parts.fa", ">g1_1\n"+part1+"\n>g1_2\n"+part2+"\n"),
		assignment: write("assignment.tsv", "#geneID\ttranscript\tcds-parts\ng1\tt1\t1,2\n"),
		hits: write("hits.tsv",
			hitLine("g1_1", "chr1", start1, start1+29, part1)+"\n"+
				hitLine("g1_2", "chr1", start2, start2+29, part2)+"\n"),
	}
}

func (f fixture) predictArgs(outDir string, extra ...string) []string {
	args := []string{"predict",
		"--hits", f.hits,
		"--assignment", f.assignment,
		"--genome", f.genome,
		"--parts", f.parts,
		"--out-dir", outDir,
		"--threads", "2",
		"--progress=false",
	}
	return append(args, extra...)
}

// execute runs the root command and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("HOME", t.TempDir())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPredict_EndToEnd(t *testing.T) {
	f := newFixture(t)
	outDir := filepath.Join(f.dir, "out")
	db := filepath.Join(f.dir, "predictions.duckdb")

	_, err := execute(t, f.predictArgs(outDir, "--db", db, "--prefix", "v_")...)
	require.NoError(t, err)

	gff, err := os.ReadFile(filepath.Join(outDir, gffName))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(gff)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "##gff-version 3", lines[0])
	mrna := strings.Split(lines[1], "\t")
	assert.Equal(t, "chr1", mrna[0])
	assert.Equal(t, "mRNA", mrna[2])
	assert.Equal(t, "61", mrna[3])
	assert.Equal(t, "+", mrna[6])
	assert.True(t, strings.HasPrefix(mrna[8], "ID=v_t1_R0;ref-gene=g1;AA=20;"))
	assert.Equal(t, "CDS", strings.Split(lines[2], "\t")[2])

	proteins, err := os.ReadFile(filepath.Join(outDir, proteinName))
	require.NoError(t, err)
	assert.Equal(t, ">v_t1_R0\nMAGKLWRDEFSPTVINQHYC\n", string(proteins))

	summary, err := os.ReadFile(filepath.Join(outDir, summaryName))
	require.NoError(t, err)
	rows := strings.Split(strings.TrimSpace(string(summary)), "\n")
	require.Len(t, rows, 2)
	assert.True(t, strings.HasSuffix(rows[1], "\tok"))

	out, err := execute(t, "show", "--db", db, "--transcript", "t1")
	require.NoError(t, err)
	assert.Contains(t, out, "status\tok")
	assert.Contains(t, out, "t1\t0\tchr1\t+\t61\t")

	out, err = execute(t, "show", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "ok\t1")
	assert.Contains(t, out, "total\t1")

	// Resuming with unchanged inputs predicts nothing new.
	resumed := filepath.Join(f.dir, "out2")
	_, err = execute(t, f.predictArgs(resumed, "--db", db, "--resume")...)
	require.NoError(t, err)
	summary, err = os.ReadFile(filepath.Join(resumed, summaryName))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(summary)), "\n"), 1)
}

func TestPredict_OutDirNotEmpty(t *testing.T) {
	f := newFixture(t)
	outDir := filepath.Join(f.dir, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))
	stale := filepath.Join(outDir, "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))

	_, err := execute(t, f.predictArgs(outDir)...)
	var ue *usageError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, err.Error(), "--force")

	_, err = execute(t, f.predictArgs(outDir, "--force")...)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, filepath.Join(outDir, gffName))
}

func TestPredict_UsageErrors(t *testing.T) {
	f := newFixture(t)
	outDir := filepath.Join(f.dir, "out")
	tests := []struct {
		name string
		args []string
	}{
		{"missing hits", []string{"predict", "--assignment", f.assignment, "--genome", f.genome, "--parts", f.parts}},
		{"resume without db", f.predictArgs(outDir, "--resume")},
		{"db inside out dir", f.predictArgs(outDir, "--db", filepath.Join(outDir, "p.duckdb"))},
		{"coverage pair", f.predictArgs(outDir, "--coverage-forward", f.genome)},
		{"invalid parameter", f.predictArgs(outDir, "--contig-threshold", "1.5")},
		{"unknown ambiguity", f.predictArgs(outDir, "--ambiguity", "maybe")},
		{"unknown flag", []string{"predict", "--no-such-flag"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			var ue *usageError
			assert.ErrorAs(t, err, &ue)
		})
	}
}

func TestPredict_ParamsFromEnv(t *testing.T) {
	f := newFixture(t)
	outDir := filepath.Join(f.dir, "out")
	t.Setenv("VIBE_GEMOMA_TAG", "prediction")

	_, err := execute(t, f.predictArgs(outDir)...)
	require.NoError(t, err)
	gff, err := os.ReadFile(filepath.Join(outDir, gffName))
	require.NoError(t, err)
	assert.Contains(t, string(gff), "\tprediction\t")
}

func TestRunExitCodes(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Cleanup(viper.Reset)
	assert.Equal(t, ExitSuccess, run([]string{"version"}))
	assert.Equal(t, ExitUsage, run([]string{"show"}))
	assert.Equal(t, ExitError, run([]string{"show", "--db", filepath.Join(t.TempDir(), "x.duckdb"), "--transcript", "nope"}))
}

func TestShow_Gene(t *testing.T) {
	f := newFixture(t)
	db := filepath.Join(f.dir, "predictions.duckdb")
	_, err := execute(t, f.predictArgs(filepath.Join(f.dir, "out"), "--db", db)...)
	require.NoError(t, err)

	out, err := execute(t, "show", "--db", db, "--gene", "g1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "#transcript\trank\tcontig\tstrand\tstart\tend\tscore\tAA\tidentity\tcds", lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "\tNA\t61-90,135-164"))

	_, err = execute(t, "show", "--db", db, "--gene", "g2")
	assert.Error(t, err)
}

func TestConfigSetGet(t *testing.T) {
	home := t.TempDir()
	cfg := filepath.Join(home, "config.yaml")

	require.NoError(t, os.WriteFile(cfg, []byte("{}\n"), 0o644))

	out, err := execute(t, "--config", cfg, "config", "set", "max-intron", "5000")
	require.NoError(t, err)
	assert.Contains(t, out, "Set max-intron = 5000")

	data, err := os.ReadFile(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max-intron: 5000")

	out, err = execute(t, "--config", cfg, "config", "get", "max-intron")
	require.NoError(t, err)
	assert.Equal(t, "5000\n", out)
}

func TestParseConfigValue(t *testing.T) {
	assert.Equal(t, true, parseConfigValue("yes"))
	assert.Equal(t, false, parseConfigValue("off"))
	assert.Equal(t, 42, parseConfigValue("42"))
	assert.Equal(t, 0.5, parseConfigValue("0.5"))
	assert.Equal(t, "30m", parseConfigValue("30m"))
}

func TestIsWithin(t *testing.T) {
	assert.True(t, isWithin("out/p.duckdb", "out"))
	assert.True(t, isWithin("out/a/b", "out/"))
	assert.False(t, isWithin("p.duckdb", "out"))
	assert.False(t, isWithin("../p.duckdb", "out"))
	assert.False(t, isWithin("output/p.duckdb", "out"))
}

func TestParamFlags_SpliceDefault(t *testing.T) {
	f := newParamFlags(predict.DefaultParams())
	splice, err := f.GetBool("splice")
	require.NoError(t, err)
	assert.True(t, splice)

	require.NoError(t, f.Parse([]string{"--splice=false"}))
	splice, err = f.GetBool("splice")
	require.NoError(t, err)
	assert.False(t, splice)
}
