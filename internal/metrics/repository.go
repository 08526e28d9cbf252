package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// repository buffers samples and writes them in one transaction once
// BatchSize are pending or BatchTimeout has passed.
type repository struct {
	db  *sql.DB
	log logger.Logger
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	pending []*ZoneSample

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewRepository(cfg Config, log logger.Logger) (MetricsRepository, error) {
	db, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}

	r := &repository{
		db:      db,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
		pending: make([]*ZoneSample, 0, max(cfg.BatchSize, 1)),
		stop:    make(chan struct{}),
	}

	if cfg.BatchSize > 0 && cfg.BatchTimeout > 0 {
		r.wg.Add(1)
		go r.flushEvery(time.Duration(cfg.BatchTimeout) * time.Second)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Dur("retention", cfg.Retention).
		Msg("Metrics repository initialized")

	return r, nil
}

func openDB(cfg Config, log logger.Logger) (*sql.DB, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err).WithMessage("create directory " + filepath.Dir(cfg.DBPath))
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL&_auto_vacuum=2")
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}
	// one writer, sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}
	return db, nil
}

func (r *repository) Record(sample *ZoneSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pending = append(r.pending, sample)
	if len(r.pending) < r.cfg.BatchSize {
		return nil
	}
	return r.flushLocked(context.Background())
}

// Query returns the stored samples of a zone from since on, oldest first.
// Pending samples are written first.
func (r *repository) Query(zone string, since time.Time) ([]ZoneSample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx := context.Background()
	if err := r.flushLocked(ctx); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, selectMetricsSQL, zone, since.UnixMilli())
	if err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}
	defer rows.Close()

	var out []ZoneSample
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, errors.New().Wrap(ErrStorageAccess, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New().Wrap(ErrStorageAccess, err)
	}
	return out, nil
}

func scanSample(rows *sql.Rows) (ZoneSample, error) {
	var (
		s        ZoneSample
		ts       int64
		overheat int
	)
	err := rows.Scan(&ts, &s.Zone, &s.Speed, &s.LastSpeed, &overheat, &s.Sensor,
		&s.DeltaP, &s.Fans, &s.Thermals, &s.WriteFailures)
	s.Timestamp = time.UnixMilli(ts)
	s.Overheat = overheat == 1
	return s, err
}

func (r *repository) Close() error {
	errFactory := errors.New()

	close(r.stop)
	r.wg.Wait()

	r.mu.Lock()
	if err := r.flushLocked(context.Background()); err != nil {
		r.log.Error().Err(err).Int("samples", len(r.pending)).Msg("Dropping unwritten metrics")
	}
	r.mu.Unlock()

	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		r.db.Close()
		return errFactory.Wrap(ErrStorageClose, err).WithMessage("checkpoint wal")
	}
	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	r.log.Debug().Msg("Metrics repository closed")
	return nil
}

func (r *repository) flushEvery(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			if err := r.flushLocked(context.Background()); err != nil {
				r.log.Warn().Err(err).Msg("Periodic metrics flush failed")
			}
			r.mu.Unlock()
		case <-r.stop:
			return
		}
	}
}

// flushLocked writes the pending samples and applies retention. r.mu must
// be held. Samples stay pending when the write fails.
func (r *repository) flushLocked(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New().Wrap(ErrTransactionFailed, err)
	}
	if err := insertSamples(ctx, tx, r.pending); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error().Err(rbErr).Msg("Failed to roll back metrics transaction")
		}
		return errors.New().Wrap(ErrTransactionFailed, err)
	}

	var pruned int64
	if r.cfg.Retention > 0 {
		cutoff := r.now().Add(-r.cfg.Retention).UnixMilli()
		res, err := tx.ExecContext(ctx, pruneMetricsSQL, cutoff)
		if err != nil {
			_ = tx.Rollback()
			return errors.New().Wrap(ErrTransactionFailed, err)
		}
		pruned, _ = res.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return errors.New().Wrap(ErrTransactionFailed, err)
	}

	r.log.Debug().
		Int("records", len(r.pending)).
		Int64("pruned", pruned).
		Msg("Flushed metrics to database")
	r.pending = r.pending[:0]
	return nil
}

func insertSamples(ctx context.Context, tx *sql.Tx, samples []*ZoneSample) error {
	stmt, err := tx.PrepareContext(ctx, insertMetricsSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		_, err := stmt.ExecContext(ctx,
			s.Timestamp.UnixMilli(), s.Zone,
			s.Speed, s.LastSpeed,
			boolToInt(s.Overheat), s.Sensor, s.DeltaP,
			s.Fans, s.Thermals, s.WriteFailures,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
