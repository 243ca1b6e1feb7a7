package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-gemoma/internal/duckdb"
	"github.com/inodb/vibe-gemoma/internal/output"
)

func newShowCmd() *cobra.Command {
	var dbPath, transcript, gene string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored prediction results",
		Long:  "Query a results database written by 'predict --db'. Without a selector the number of transcripts per status is printed.",
		Example: `  vibe-gemoma show --db predictions.duckdb
  vibe-gemoma show --db predictions.duckdb --transcript ENST00000269305
  vibe-gemoma show --db predictions.duckdb --gene ENSG00000141510`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				return usageErrorf("--db is required")
			}
			if transcript != "" && gene != "" {
				return usageErrorf("--transcript and --gene are mutually exclusive")
			}
			store, err := duckdb.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			switch {
			case transcript != "":
				return showTranscript(w, store, transcript)
			case gene != "":
				preds, err := store.SearchByGene(gene)
				if err != nil {
					return err
				}
				if len(preds) == 0 {
					return fmt.Errorf("no predictions for gene %q", gene)
				}
				return writePredictionRows(w, preds)
			}
			return showCounts(w, store)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "Results database")
	cmd.Flags().StringVar(&transcript, "transcript", "", "Show one transcript")
	cmd.Flags().StringVar(&gene, "gene", "", "Show all predictions of a gene")

	return cmd
}

func showTranscript(w io.Writer, store *duckdb.Store, id string) error {
	tr, err := store.LookupTranscript(id)
	if err != nil {
		return err
	}
	if tr == nil {
		return fmt.Errorf("transcript %q not found", id)
	}
	fmt.Fprintf(w, "transcript\t%s\n", tr.TranscriptID)
	fmt.Fprintf(w, "gene\t%s\n", tr.GeneID)
	fmt.Fprintf(w, "parts\t%d\n", tr.Parts)
	fmt.Fprintf(w, "status\t%s\n", tr.Status)
	fmt.Fprintf(w, "hits\t%d\n", tr.Hits)
	fmt.Fprintf(w, "strands\t%d\n", tr.Strands)
	fmt.Fprintf(w, "best sum\t%d\n", tr.BestSum)
	fmt.Fprintf(w, "alignments\t%d\n", tr.Alignments)
	fmt.Fprintf(w, "runtime\t%s\n", tr.Elapsed)

	preds, err := store.LookupPredictions(id)
	if err != nil {
		return err
	}
	if len(preds) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return writePredictionRows(w, preds)
}

func writePredictionRows(w io.Writer, preds []duckdb.PredictionRecord) error {
	fmt.Fprintln(w, "#transcript\trank\tcontig\tstrand\tstart\tend\tscore\tAA\tidentity\tcds")
	for _, p := range preds {
		strand := "-"
		if p.Forward {
			strand = "+"
		}
		identity := "NA"
		if p.HasIdentity {
			identity = output.FormatDecimal(p.Identity)
		}
		cds := make([]string, len(p.CDS))
		for i, c := range p.CDS {
			cds[i] = strconv.Itoa(c.Start) + "-" + strconv.Itoa(c.End)
		}
		if _, err := fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			p.TranscriptID, p.Rank, p.Contig, strand, p.Start, p.End,
			p.Score, p.AA, identity, strings.Join(cds, ",")); err != nil {
			return err
		}
	}
	return nil
}

func showCounts(w io.Writer, store *duckdb.Store) error {
	counts, err := store.StateCounts()
	if err != nil {
		return err
	}
	statuses := make([]string, 0, len(counts))
	total := 0
	for s, n := range counts {
		statuses = append(statuses, s)
		total += n
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	return nil
}
