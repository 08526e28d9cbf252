package statedb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
)

// migrations[i] moves a database from user_version i to i+1.
var migrations = []string{
	// One row per (table, key, field). A state table row is the set of
	// fields sharing tbl and key.
	`CREATE TABLE state (
	    tbl    TEXT NOT NULL,
	    key    TEXT NOT NULL,
	    field  TEXT NOT NULL,
	    value  TEXT NOT NULL,
	    PRIMARY KEY (tbl, key, field)
	);`,
}

// SchemaVersion is the user_version after all migrations ran.
var SchemaVersion = len(migrations)

const (
	selectTablesSQL = `SELECT DISTINCT tbl FROM state ORDER BY tbl`
	selectKeysSQL   = `SELECT DISTINCT key FROM state WHERE tbl = ? ORDER BY key`
	selectRowSQL    = `SELECT field, value FROM state WHERE tbl = ? AND key = ?`
	deleteRowSQL    = `DELETE FROM state WHERE tbl = ? AND key = ?`
	insertFieldSQL  = `INSERT INTO state (tbl, key, field, value) VALUES (?, ?, ?, ?)`
)

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, errors.New().Wrap(ErrSchemaValidationFailed, err)
	}
	return v, nil
}

func hasTable(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, errors.New().Wrap(ErrSchemaValidationFailed, err).WithMessage("look up table " + name)
	}
	return n > 0, nil
}

// Migrate applies the pending migrations. A database written by a newer
// release, or carrying a state table without a version, is backed up to
// backupDir and started over.
func Migrate(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}

	foreign := version > SchemaVersion
	if version == 0 {
		if foreign, err = hasTable(db, "state"); err != nil {
			return err
		}
	}
	if foreign {
		if err := resetDatabase(db, backupDir, version, log); err != nil {
			return err
		}
		version = 0
	}

	for v := version; v < SchemaVersion; v++ {
		if err := step(db, v); err != nil {
			return err
		}
		log.Debug().Int("version", v+1).Msg("State schema migrated")
	}
	return nil
}

func step(db *sql.DB, from int) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.New().Wrap(ErrSchemaMigrationFailed, err)
	}
	if _, err := tx.Exec(migrations[from]); err != nil {
		_ = tx.Rollback()
		return errors.New().Wrap(ErrSchemaMigrationFailed, err).WithData(from + 1)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", from+1)); err != nil {
		_ = tx.Rollback()
		return errors.New().Wrap(ErrSchemaMigrationFailed, err).WithData(from + 1)
	}
	if err := tx.Commit(); err != nil {
		return errors.New().Wrap(ErrSchemaMigrationFailed, err)
	}
	return nil
}

// resetDatabase copies db into backupDir, then drops everything the
// migrations create.
func resetDatabase(db *sql.DB, backupDir string, version int, log logger.Logger) error {
	if err := os.MkdirAll(backupDir, defaultDirPerm); err != nil {
		return errors.New().Wrap(ErrSchemaMigrationFailed, err).WithMessage("create " + backupDir)
	}
	path := filepath.Join(backupDir,
		fmt.Sprintf("state_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z")))
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return errors.New().Wrap(ErrSchemaMigrationFailed, err).WithMessage("back up to " + path)
	}
	log.Warn().Str("backup", path).Int("version", version).Msg("Replacing unrecognized state database")

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS state",
		"DROP TABLE IF EXISTS schema_versions",
		"PRAGMA user_version = 0",
	} {
		if _, err := db.Exec(stmt); err != nil {
			return errors.New().Wrap(ErrSchemaMigrationFailed, err)
		}
	}
	return nil
}
