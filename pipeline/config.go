package pipeline

import (
	"fmt"
	"time"

	"github.com/poiesic/scriptorium/core"
	"github.com/poiesic/scriptorium/dedupe"
	"github.com/poiesic/scriptorium/embed"
	"github.com/poiesic/scriptorium/importer"
)

// Config holds the knobs of one run.
type Config struct {
	PrefixLen        int
	EmbedBatchSize   int
	EmbedPause       time.Duration
	ImportBatchSize  int
	SnapshotPageSize int
	// Resume skips entries whose fingerprint is already in the store.
	Resume bool
	Mode   core.Mode
	// ExpectedTotal overrides the computed reconciliation target when > 0.
	ExpectedTotal int
	Dimension     int
}

// DefaultConfig returns the settings used by the CLI when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PrefixLen:        core.DefaultPrefixLen,
		EmbedBatchSize:   embed.DefaultBatchSize,
		EmbedPause:       embed.DefaultBatchPause,
		ImportBatchSize:  importer.DefaultBatchSize,
		SnapshotPageSize: dedupe.DefaultPageSize,
		Mode:             core.DryRun,
		Dimension:        core.DefaultDimension,
	}
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	switch {
	case c.PrefixLen <= 0:
		return fmt.Errorf("%w: prefix length must be positive, got %d", ErrInvalidConfig, c.PrefixLen)
	case c.EmbedBatchSize <= 0:
		return fmt.Errorf("%w: embed batch size must be positive, got %d", ErrInvalidConfig, c.EmbedBatchSize)
	case c.EmbedPause < 0:
		return fmt.Errorf("%w: negative embed pause", ErrInvalidConfig)
	case c.ImportBatchSize <= 0:
		return fmt.Errorf("%w: import batch size must be positive, got %d", ErrInvalidConfig, c.ImportBatchSize)
	case c.SnapshotPageSize <= 0:
		return fmt.Errorf("%w: snapshot page size must be positive, got %d", ErrInvalidConfig, c.SnapshotPageSize)
	case c.Dimension <= 0:
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, c.Dimension)
	case c.ExpectedTotal < 0:
		return fmt.Errorf("%w: negative expected total", ErrInvalidConfig)
	}
	return nil
}
