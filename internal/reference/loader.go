package reference

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
	"go.uber.org/zap"

	"github.com/inodb/vibe-gemoma/internal/genome"
)

// Files names the reference inputs. Proteins is optional.
type Files struct {
	Assignment string
	Parts      string
	Proteins   string
}

// Reference holds all reference transcripts grouped by gene.
type Reference struct {
	genes       map[string][]*Transcript
	transcripts map[string]*Transcript
	geneOrder   []string
}

// Gene returns the transcripts of a gene sorted by id.
func (r *Reference) Gene(geneID string) []*Transcript {
	return r.genes[geneID]
}

// Genes returns the gene ids in sorted order.
func (r *Reference) Genes() []string {
	return r.geneOrder
}

// Transcript returns a transcript by id.
func (r *Reference) Transcript(id string) (*Transcript, bool) {
	t, ok := r.transcripts[id]
	return t, ok
}

// TranscriptCount returns the number of transcripts.
func (r *Reference) TranscriptCount() int {
	return len(r.transcripts)
}

// Load reads the assignment table, the CDS part sequences and the optional
// reference proteins.
func Load(files Files, logger *zap.Logger) (*Reference, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	records, err := genome.ReadFASTA(files.Parts)
	if err != nil {
		return nil, fmt.Errorf("load CDS parts: %w", err)
	}
	parts := make(map[string]string, len(records))
	for _, r := range records {
		parts[r.ID] = string(r.Seq)
	}

	proteins := make(map[string]string)
	if files.Proteins != "" {
		records, err := genome.ReadFASTA(files.Proteins)
		if err != nil {
			return nil, fmt.Errorf("load reference proteins: %w", err)
		}
		for _, r := range records {
			proteins[r.ID] = string(r.Seq)
		}
	}

	fh, err := xopen.Ropen(files.Assignment)
	if err != nil {
		return nil, fmt.Errorf("open assignment file: %w", err)
	}
	defer fh.Close()

	ref, err := parseAssignment(fh, parts, proteins, logger)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", files.Assignment, err)
	}
	logger.Info("loaded reference",
		zap.Int("genes", len(ref.geneOrder)),
		zap.Int("transcripts", len(ref.transcripts)),
		zap.Int("parts", len(parts)),
		zap.Int("proteins", len(proteins)))
	return ref, nil
}

// parseAssignment parses the assignment table:
//
//	#geneID transcript cds-parts phases chr strand start end full-length [split-aa max-intron]
func parseAssignment(r io.Reader, parts, proteins map[string]string, logger *zap.Logger) (*Reference, error) {
	ref := &Reference{
		genes:       make(map[string][]*Transcript),
		transcripts: make(map[string]*Transcript),
	}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected at least 3 columns: %q", lineNum, line)
		}
		t := &Transcript{GeneID: fields[0], ID: fields[1]}
		if _, dup := ref.transcripts[t.ID]; dup {
			return nil, fmt.Errorf("line %d: duplicate transcript %q", lineNum, t.ID)
		}
		var err error
		if t.Parts, err = parseInts(fields[2]); err != nil || len(t.Parts) == 0 {
			return nil, fmt.Errorf("line %d: invalid cds parts %q", lineNum, fields[2])
		}
		seen := make(map[int]bool, len(t.Parts))
		for _, p := range t.Parts {
			if seen[p] {
				return nil, fmt.Errorf("line %d: part %d listed twice", lineNum, p)
			}
			seen[p] = true
		}
		if len(fields) > 3 && fields[3] != "" && fields[3] != "." {
			if t.Phases, err = parseInts(fields[3]); err != nil {
				return nil, fmt.Errorf("line %d: invalid phases %q", lineNum, fields[3])
			}
		}
		if len(fields) > 7 {
			t.RefContig, t.RefStrand = fields[4], fields[5]
			t.RefStart, _ = strconv.Atoi(fields[6])
			t.RefEnd, _ = strconv.Atoi(fields[7])
		}
		if len(fields) > 9 && fields[9] != "" && fields[9] != "." {
			t.SplitAA = strings.Split(fields[9], ",")
			for i, aa := range t.SplitAA {
				if aa == "." {
					t.SplitAA[i] = ""
				}
			}
		}
		if len(fields) > 10 && fields[10] != "" && fields[10] != "." {
			if t.MaxIntron, err = strconv.Atoi(fields[10]); err != nil {
				return nil, fmt.Errorf("line %d: invalid max intron %q", lineNum, fields[10])
			}
		}

		t.PartSeqs = make([]string, len(t.Parts))
		for i := range t.Parts {
			seq, ok := parts[t.QueryID(i)]
			if !ok {
				logger.Warn("missing CDS part sequence", zap.String("transcript", t.ID), zap.String("part", t.QueryID(i)))
			}
			t.PartSeqs[i] = seq
		}
		t.Protein = proteins[t.ID]
		t.init()

		ref.transcripts[t.ID] = t
		ref.genes[t.GeneID] = append(ref.genes[t.GeneID], t)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for gene, list := range ref.genes {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		ref.geneOrder = append(ref.geneOrder, gene)
	}
	sort.Strings(ref.geneOrder)
	return ref, nil
}

func parseInts(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
