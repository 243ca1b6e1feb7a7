package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-gemoma/internal/predict"
)

// TranscriptRecord is the stored outcome of one transcript.
type TranscriptRecord struct {
	TranscriptID string
	GeneID       string
	Parts        int
	State        string
	Status       string
	Hits         int
	Strands      int
	BestSum      int
	Alignments   int
	Elapsed      time.Duration
}

// PredictionRecord is one stored gene model.
type PredictionRecord struct {
	TranscriptID string
	Rank         int
	GeneID       string
	Contig       string
	Forward      bool
	Start, End   int
	Score        int
	AA           int
	Protein      string
	FirstPart    bool
	LastPart     bool
	Stops        int
	IntronGain   bool
	IntronLoss   bool
	Backup       bool
	Cut          bool
	// Identity is the fraction of identical residues in the alignment with
	// the reference protein; HasIdentity is false without one.
	Identity    float64
	HasIdentity bool
	CDS         []CDSRecord
}

// CDSRecord is one stored coding segment in genomic coordinates.
type CDSRecord struct {
	Start, End       int
	Phase            int
	AcceptorEvidence bool
	DonorEvidence    bool
}

// WriteResults stores transcript results, replacing earlier results of the
// same transcripts. Rows are batch-inserted with the Appender API.
func (s *Store) WriteResults(results []*predict.Result) error {
	if len(results) == 0 {
		return nil
	}

	ctx := context.Background()
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	seen := make(map[string]bool, len(results))
	deduped := make([]*predict.Result, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		id := results[i].Transcript.ID
		if seen[id] {
			continue
		}
		seen[id] = true
		deduped = append(deduped, results[i])
		for _, table := range []string{"transcripts", "predictions", "cds"} {
			if _, err := conn.ExecContext(ctx, "DELETE FROM "+table+" WHERE transcript_id=?", id); err != nil {
				return fmt.Errorf("replace %s of %s: %w", table, id, err)
			}
		}
	}

	return conn.Raw(func(driverConn any) error {
		dc := driverConn.(driver.Conn)
		if err := appendRows(dc, "transcripts", deduped, appendTranscript); err != nil {
			return err
		}
		if err := appendRows(dc, "predictions", deduped, appendPredictions); err != nil {
			return err
		}
		return appendRows(dc, "cds", deduped, appendCDS)
	})
}

func appendRows(dc driver.Conn, table string, results []*predict.Result, fn func(*goduckdb.Appender, *predict.Result) error) error {
	appender, err := goduckdb.NewAppenderFromConn(dc, "", table)
	if err != nil {
		return fmt.Errorf("create %s appender: %w", table, err)
	}
	defer appender.Close()

	for _, r := range results {
		if err := fn(appender, r); err != nil {
			return fmt.Errorf("append %s row: %w", table, err)
		}
	}
	return appender.Flush()
}

func appendTranscript(a *goduckdb.Appender, r *predict.Result) error {
	return a.AppendRow(
		r.Transcript.ID, r.Transcript.GeneID, int64(r.Transcript.NumParts()),
		r.State.String(), r.Status(),
		int64(r.Stats.Hits), int64(r.Stats.Strands), int64(r.Stats.BestSum),
		int64(r.Stats.Alignments), r.Stats.Elapsed.Milliseconds(),
	)
}

func appendPredictions(a *goduckdb.Appender, r *predict.Result) error {
	for _, p := range r.Predictions {
		var identity any
		if p.Comparison != nil {
			identity = p.Comparison.Identity
		}
		if err := a.AppendRow(
			p.TranscriptID, int64(p.Rank), p.GeneID, p.Contig, p.Forward,
			int64(p.Start), int64(p.End), int64(p.Score), int64(p.AA()), p.Protein,
			p.FirstPart, p.LastPart, int64(p.Stops), p.IntronGain, p.IntronLoss,
			p.Backup, p.Cut, identity,
		); err != nil {
			return err
		}
	}
	return nil
}

func appendCDS(a *goduckdb.Appender, r *predict.Result) error {
	for _, p := range r.Predictions {
		for i, c := range p.CDS {
			if err := a.AppendRow(
				p.TranscriptID, int64(p.Rank), int64(i),
				int64(c.GenomicStart), int64(c.GenomicEnd), int64(c.Phase),
				c.AcceptorEvidence, c.DonorEvidence,
			); err != nil {
				return err
			}
		}
	}
	return nil
}

// ClearResults removes all stored results.
func (s *Store) ClearResults() error {
	for _, table := range []string{"transcripts", "predictions", "cds"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// LookupTranscript returns the stored outcome of a transcript, nil if it
// has none.
func (s *Store) LookupTranscript(id string) (*TranscriptRecord, error) {
	row := s.db.QueryRow(`SELECT
		transcript_id, gene_id, parts, state, status,
		hits, strands, best_sum, alignments, elapsed_ms
		FROM transcripts WHERE transcript_id=?`, id)
	var t TranscriptRecord
	var ms int64
	err := row.Scan(&t.TranscriptID, &t.GeneID, &t.Parts, &t.State, &t.Status,
		&t.Hits, &t.Strands, &t.BestSum, &t.Alignments, &ms)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	t.Elapsed = time.Duration(ms) * time.Millisecond
	return &t, nil
}

// CompletedTranscripts returns the ids of transcripts whose analysis
// completed. Timed out and failed transcripts are not included.
func (s *Store) CompletedTranscripts() (map[string]bool, error) {
	rows, err := s.db.Query("SELECT transcript_id FROM transcripts WHERE state=?", predict.Completed.String())
	if err != nil {
		return nil, fmt.Errorf("query completed transcripts: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		done[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcripts: %w", err)
	}
	return done, nil
}

const predictionColumns = `transcript_id, rank, gene_id, contig, forward,
	start_pos, end_pos, score, aa, protein,
	first_part, last_part, stops, intron_gain, intron_loss,
	backup, cut, identity`

// LookupPredictions returns the stored predictions of a transcript ordered
// by rank, with their CDS.
func (s *Store) LookupPredictions(transcriptID string) ([]PredictionRecord, error) {
	rows, err := s.db.Query(`SELECT `+predictionColumns+`
		FROM predictions WHERE transcript_id=? ORDER BY rank`, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	return s.scanPredictions(rows)
}

// SearchByGene returns the stored predictions of all transcripts of a gene.
func (s *Store) SearchByGene(geneID string) ([]PredictionRecord, error) {
	rows, err := s.db.Query(`SELECT `+predictionColumns+`
		FROM predictions WHERE gene_id=? ORDER BY transcript_id, rank`, geneID)
	if err != nil {
		return nil, fmt.Errorf("query by gene: %w", err)
	}
	defer rows.Close()

	return s.scanPredictions(rows)
}

// scanPredictions scans prediction rows and attaches their CDS.
func (s *Store) scanPredictions(rows *sql.Rows) ([]PredictionRecord, error) {
	var out []PredictionRecord
	for rows.Next() {
		var p PredictionRecord
		var identity sql.NullFloat64
		if err := rows.Scan(
			&p.TranscriptID, &p.Rank, &p.GeneID, &p.Contig, &p.Forward,
			&p.Start, &p.End, &p.Score, &p.AA, &p.Protein,
			&p.FirstPart, &p.LastPart, &p.Stops, &p.IntronGain, &p.IntronLoss,
			&p.Backup, &p.Cut, &identity,
		); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Identity, p.HasIdentity = identity.Float64, identity.Valid
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	rows.Close()

	for i := range out {
		cds, err := s.lookupCDS(out[i].TranscriptID, out[i].Rank)
		if err != nil {
			return nil, err
		}
		out[i].CDS = cds
	}
	return out, nil
}

func (s *Store) lookupCDS(transcriptID string, rank int) ([]CDSRecord, error) {
	rows, err := s.db.Query(`SELECT start_pos, end_pos, phase, acceptor_evidence, donor_evidence
		FROM cds WHERE transcript_id=? AND rank=? ORDER BY idx`, transcriptID, rank)
	if err != nil {
		return nil, fmt.Errorf("query cds: %w", err)
	}
	defer rows.Close()

	var out []CDSRecord
	for rows.Next() {
		var c CDSRecord
		if err := rows.Scan(&c.Start, &c.End, &c.Phase, &c.AcceptorEvidence, &c.DonorEvidence); err != nil {
			return nil, fmt.Errorf("scan cds: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cds: %w", err)
	}
	return out, nil
}

// StateCounts returns the number of stored transcripts per status.
func (s *Store) StateCounts() (map[string]int, error) {
	rows, err := s.db.Query("SELECT status, count(*) FROM transcripts GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("query state counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan state count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
