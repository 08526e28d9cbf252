package metrics

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/chassisctl/internal/errors"
)

const (
	defaultDirPerm      = 0o755
	defaultDBPath       = "/var/lib/chassisctl/metrics.db"
	defaultBatchSize    = 10
	defaultBatchTimeout = 60
	defaultRetention    = 7 * 24 * time.Hour
	backupSubdir        = "backups"
)

type Config struct {
	DBPath  string
	Enabled bool
	// BatchSize reports are buffered before a write, BatchTimeout seconds
	// at most
	BatchSize    int
	BatchTimeout int
	// Retention drops older samples on each write. Zero keeps everything.
	Retention time.Duration
	BackupDir string
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Retention:    defaultRetention,
	}
}

func (c Config) Validate() error {
	if c.Enabled && c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 || c.Retention < 0 {
		return errors.New().WithData(ErrInvalidConfig, map[string]any{
			"batch_size":    c.BatchSize,
			"batch_timeout": c.BatchTimeout,
			"retention":     c.Retention.String(),
		})
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), backupSubdir)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
