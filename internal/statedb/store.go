// Package statedb is a sqlite backed shared state database. Each table
// holds rows addressed by key, each row a set of string fields, the shape
// the cooling entities read FAN_INFO, PSU_INFO and the sensor tables in.
package statedb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db       *sql.DB
	log      logger.Logger
	cfg      Config
	readOnly bool
}

// Open opens the database at cfg.Path, creating it and its schema unless
// cfg.ReadOnly is set.
func Open(cfg Config, log logger.Logger) (*Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn := cfg.Path + "?_journal=WAL&_busy_timeout=5000"
	if cfg.ReadOnly {
		if _, err := os.Stat(cfg.Path); err != nil {
			return nil, errFactory.Wrap(ErrStorageInit, err)
		}
		dsn = cfg.Path + "?_busy_timeout=5000"
	} else if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.Path,
			Error: err.Error(),
		})
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	if !cfg.ReadOnly {
		if err := Migrate(db, cfg.backupDir(), log); err != nil {
			db.Close()
			return nil, errFactory.WithData(ErrStorageInit, struct {
				Phase string
				Error string
			}{
				Phase: "schema_version",
				Error: err.Error(),
			})
		}
	}

	log.Info().
		Str("path", cfg.Path).
		Bool("read_only", cfg.ReadOnly).
		Msg("State database opened")

	return &Store{db: db, log: log, cfg: cfg, readOnly: cfg.ReadOnly}, nil
}

func (s *Store) Path() string {
	return s.cfg.Path
}

func (s *Store) Tables(ctx context.Context) ([]string, error) {
	return s.strings(ctx, selectTablesSQL)
}

func (s *Store) Keys(ctx context.Context, table string) ([]string, error) {
	return s.strings(ctx, selectKeysSQL, table)
}

// Row returns the fields of one row, an empty map when it does not exist.
func (s *Store) Row(ctx context.Context, table, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, selectRowSQL, table, key)
	if err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, errors.New().Wrap(ErrStorageAccess, err)
		}
		fields[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}
	return fields, nil
}

// SetRow replaces a row with the given fields.
func (s *Store) SetRow(ctx context.Context, table, key string, fields map[string]string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteRowSQL, table, key); err != nil {
			return err
		}
		for field, value := range fields {
			if _, err := tx.ExecContext(ctx, insertFieldSQL, table, key, field, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) DeleteRow(ctx context.Context, table, key string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, deleteRowSQL, table, key)
		return err
	})
}

func (s *Store) Close() error {
	if !s.readOnly {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.log.Debug().Err(err).Msg("Failed to checkpoint WAL")
		}
	}
	if err := s.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}
	return nil
}

func (s *Store) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.New().Wrap(ErrStorageAccess, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	errFactory := errors.New()

	if s.readOnly {
		return errFactory.New(ErrReadOnly)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	return nil
}
