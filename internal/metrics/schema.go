package metrics

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
)

// SchemaVersion is stored in PRAGMA user_version. A database carrying any
// other non-zero version is backed up and recreated.
const SchemaVersion = 4

// Tables of earlier layouts, dropped on recreate.
var legacyTables = []string{"metrics", "schema_versions", "zone_metrics"}

const (
	createTablesSQL = `
CREATE TABLE IF NOT EXISTS zone_metrics (
    timestamp      INTEGER NOT NULL,
    zone           TEXT    NOT NULL,
    speed          REAL    NOT NULL,
    last_speed     REAL    NOT NULL,
    overheat       INTEGER NOT NULL CHECK (overheat IN (0, 1)),
    sensor         TEXT    NOT NULL,
    deltap         REAL    NOT NULL,
    fans           INTEGER NOT NULL,
    thermals       INTEGER NOT NULL,
    write_failures INTEGER NOT NULL,
    PRIMARY KEY (timestamp, zone)
);
CREATE INDEX IF NOT EXISTS zone_metrics_zone_ts ON zone_metrics (zone, timestamp);`

	insertMetricsSQL = `
INSERT OR REPLACE INTO zone_metrics
    (timestamp, zone, speed, last_speed, overheat, sensor, deltap, fans, thermals, write_failures)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectMetricsSQL = `
SELECT timestamp, zone, speed, last_speed, overheat, sensor, deltap, fans, thermals, write_failures
FROM zone_metrics
WHERE zone = ? AND timestamp >= ?
ORDER BY timestamp`

	pruneMetricsSQL = `DELETE FROM zone_metrics WHERE timestamp < ?`
)

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, errors.New().Wrap(ErrSchemaValidationFailed, err)
	}
	return v, nil
}

// ValidateAndUpdateSchema brings db to SchemaVersion. Stored samples of
// another version are copied to backupDir first, then discarded.
func ValidateAndUpdateSchema(db *sql.DB, backupDir string, log logger.Logger) error {
	version, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if version == SchemaVersion {
		return nil
	}

	log.Debug().
		Int("found", version).
		Int("want", SchemaVersion).
		Msg("Schema out of date")

	if version != 0 {
		path, err := backup(db, backupDir, version)
		if err != nil {
			return err
		}
		log.Info().Str("path", path).Int("version", version).Msg("Database backup created")
	}

	if err := recreate(db, log); err != nil {
		return err
	}
	log.Info().Int("version", SchemaVersion).Msg("Schema initialized")
	return nil
}

func backup(db *sql.DB, dir string, version int) (string, error) {
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errors.New().Wrap(ErrSchemaMigrationFailed, err).WithMessage("create backup dir " + dir)
	}

	name := fmt.Sprintf("metrics_v%d_%s.db", version, time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(dir, name)

	// VACUUM INTO must run outside a transaction
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		return "", errors.New().Wrap(ErrSchemaMigrationFailed, err).WithMessage("backup to " + path)
	}
	return path, nil
}

func recreate(db *sql.DB, log logger.Logger) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Debug().Err(rbErr).Msg("Failed to roll back schema change")
		}
	}()

	for _, table := range legacyTables {
		if _, err = tx.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return errors.New().Wrap(ErrSchemaMigrationFailed, err).WithMessage("drop " + table)
		}
	}
	if _, err = tx.Exec(createTablesSQL); err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}
	// PRAGMA does not take bind parameters
	if _, err = tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}
	if err = tx.Commit(); err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}
	return nil
}
