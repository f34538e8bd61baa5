package disbursement

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/brillestotte/internal/batch"
	"github.com/gyeh/brillestotte/internal/model"
)

// ErrInvalidOutbox is returned when a file is readable but is not a
// well-formed batch written by FileChannel.
var ErrInvalidOutbox = errors.New("invalid outbox file")

// OutboxFile is a batch file read back from the outbox directory.
type OutboxFile struct {
	Path         string
	SHA256       string
	Size         int64
	BatchID      string
	OrgID        string
	BatchDate    string
	Resubmission bool
	Total        int64
	Rows         []model.BatchFileRow
}

// ReadOutbox loads and checks one outbox file. Outbox files hold a single
// batch, so the whole file is read into memory and hashed in one pass.
func ReadOutbox(path string) (*OutboxFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read outbox file: %w", err)
	}
	sum := sha256.Sum256(data)

	pf, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutbox, err)
	}
	if err := checkColumns(pf.Schema()); err != nil {
		return nil, err
	}
	rows, err := readRows(pf)
	if err != nil {
		return nil, err
	}

	f := &OutboxFile{
		Path:   path,
		SHA256: hex.EncodeToString(sum[:]),
		Size:   int64(len(data)),
		Rows:   rows,
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return f, nil
}

func checkColumns(schema *parquet.Schema) error {
	columns := make(map[string]bool)
	for _, field := range schema.Fields() {
		columns[strings.ToLower(field.Name())] = true
	}
	var missing []string
	for _, col := range model.BatchFileColumns() {
		if !columns[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing column(s) %s", ErrInvalidOutbox, strings.Join(missing, ", "))
	}
	return nil
}

func readRows(pf *parquet.File) ([]model.BatchFileRow, error) {
	r := parquet.NewGenericReader[model.BatchFileRow](pf)
	defer r.Close()

	rows := make([]model.BatchFileRow, r.NumRows())
	n, err := r.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read outbox rows: %w", err)
	}
	return rows[:n], nil
}

// check fills the batch header from the first row and verifies that every
// row agrees with it and with the file name FileChannel gave it.
func (f *OutboxFile) check() error {
	if len(f.Rows) == 0 {
		return fmt.Errorf("%w: no rows", ErrInvalidOutbox)
	}
	first := f.Rows[0]
	f.BatchID, f.OrgID, f.BatchDate, f.Resubmission = first.BatchID, first.OrgID, first.BatchDate, first.Resubmission

	date, err := time.Parse("2006-01-02", f.BatchDate)
	if err != nil {
		return fmt.Errorf("%w: batch date %q", ErrInvalidOutbox, f.BatchDate)
	}
	if want := batch.ID(f.OrgID, date); f.BatchID != want {
		return fmt.Errorf("%w: batch id %s does not match org and date (%s)", ErrInvalidOutbox, f.BatchID, want)
	}
	if !strings.HasPrefix(filepath.Base(f.Path), f.BatchID+"-") {
		return fmt.Errorf("%w: file name does not start with batch id %s", ErrInvalidOutbox, f.BatchID)
	}

	seen := make(map[string]bool, len(f.Rows))
	for i, r := range f.Rows {
		if r.BatchID != f.BatchID || r.OrgID != f.OrgID || r.BatchDate != f.BatchDate {
			return fmt.Errorf("%w: row %d belongs to batch %s", ErrInvalidOutbox, i, r.BatchID)
		}
		if r.Resubmission != f.Resubmission {
			return fmt.Errorf("%w: row %d has resubmission=%t", ErrInvalidOutbox, i, r.Resubmission)
		}
		if seen[r.PaymentID] {
			return fmt.Errorf("%w: row %d repeats payment %s", ErrInvalidOutbox, i, r.PaymentID)
		}
		seen[r.PaymentID] = true
		if r.Amount < 0 {
			return fmt.Errorf("%w: row %d has negative amount %d", ErrInvalidOutbox, i, r.Amount)
		}
		f.Total += r.Amount
	}
	return nil
}
