package disbursement

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/gyeh/brillestotte/internal/model"
)

// FileChannel writes each submitted batch as a Parquet file in an outbox
// directory. Files appear atomically: they are written under a temporary
// name and renamed once closed.
type FileChannel struct {
	dir string
	log zerolog.Logger
	now func() time.Time
}

// NewFileChannel creates the outbox directory if needed.
func NewFileChannel(dir string, log zerolog.Logger) (*FileChannel, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create outbox %s: %w", dir, err)
	}
	return &FileChannel{
		dir: dir,
		log: log.With().Str("component", "disbursement").Str("channel", "file").Logger(),
		now: time.Now,
	}, nil
}

// Dir returns the outbox directory.
func (c *FileChannel) Dir() string {
	return c.dir
}

// Submit writes the batch to {dir}/{batch id}-{unix nanos}.parquet.
func (c *FileChannel) Submit(ctx context.Context, b *model.Batch, resubmission bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := fmt.Sprintf("%s-%d.parquet", b.ID, c.now().UnixNano())
	final := filepath.Join(c.dir, name)

	tmp, err := os.CreateTemp(c.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("create outbox file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	w := parquet.NewGenericWriter[model.BatchFileRow](tmp)
	if _, err := w.Write(model.BatchFileRows(b, resubmission)); err != nil {
		cleanup()
		return fmt.Errorf("write batch %s: %w", b.ID, err)
	}
	if err := w.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close writer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync outbox file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close outbox file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish outbox file: %w", err)
	}

	c.log.Info().
		Str("batch_id", b.ID).
		Str("file", final).
		Int("payments", len(b.Payments)).
		Bool("resubmission", resubmission).
		Msg("batch written")
	return nil
}
