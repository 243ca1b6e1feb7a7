// Package genome provides the target genome and strand-normalized views of it.
package genome

import (
	"bytes"
	"fmt"
	"io"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
)

func init() {
	// residues such as '*' or IUPAC codes must survive loading
	seq.ValidateSeq = false
}

// Record is one FASTA record.
type Record struct {
	ID  string
	Seq []byte
}

// ReadFASTA reads all records of a (possibly compressed) FASTA file in file
// order. Sequences are upper-cased. Empty records are skipped.
func ReadFASTA(path string) ([]Record, error) {
	reader, err := fastx.NewReader(nil, path, "")
	if err != nil {
		return nil, fmt.Errorf("open FASTA file: %w", err)
	}
	defer reader.Close()

	var records []Record
	for i := 0; ; i++ {
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("read sequence %d in %s: %w", i, path, err)
		}
		if len(record.Seq.Seq) == 0 {
			continue
		}
		records = append(records, Record{
			ID:  string(record.ID),
			Seq: bytes.ToUpper(record.Seq.Seq),
		})
	}
	return records, nil
}
