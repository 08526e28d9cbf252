package statedb

import (
	"path/filepath"

	"codeberg.org/mutker/chassisctl/internal/errors"
)

const (
	defaultDirPerm = 0o755
	backupSubdir   = "backups"
)

type Config struct {
	Path string
	// ReadOnly opens an existing database without touching its schema
	ReadOnly bool
	// BackupDir receives a copy of the database before a schema
	// recreation. Defaults to a backups directory next to Path.
	BackupDir string
}

func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.Path), backupSubdir)
}
