package statedb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ platform.StateDB = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "state.db")}, logger.With("statedb"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRows(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.SetRow(ctx, platform.TableFanInfo, "fan1", map[string]string{
		"speed": "40", "presence": "True", "status": "True",
	}))
	require.NoError(t, s.SetRow(ctx, platform.TableFanInfo, "fan2", map[string]string{"speed": "41"}))
	require.NoError(t, s.SetRow(ctx, platform.TablePsuInfo, "PSU 1", map[string]string{"presence": "true"}))

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{platform.TableFanInfo, platform.TablePsuInfo}, tables)

	keys, err := s.Keys(ctx, platform.TableFanInfo)
	require.NoError(t, err)
	assert.Equal(t, []string{"fan1", "fan2"}, keys)

	row, err := s.Row(ctx, platform.TableFanInfo, "fan1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"speed": "40", "presence": "True", "status": "True"}, row)

	t.Run("Replace", func(t *testing.T) {
		require.NoError(t, s.SetRow(ctx, platform.TableFanInfo, "fan1", map[string]string{"speed": "60"}))
		row, err := s.Row(ctx, platform.TableFanInfo, "fan1")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"speed": "60"}, row)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.DeleteRow(ctx, platform.TableFanInfo, "fan2"))
		row, err := s.Row(ctx, platform.TableFanInfo, "fan2")
		require.NoError(t, err)
		assert.Empty(t, row)
	})
}

func TestStoreReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	rw, err := Open(Config{Path: path}, logger.With("statedb"))
	require.NoError(t, err)
	require.NoError(t, rw.SetRow(ctx, "TEMPERATURE_INFO_1", "ASIC", map[string]string{"temperature": "50"}))
	require.NoError(t, rw.Close())

	ro, err := Open(Config{Path: path, ReadOnly: true}, logger.With("statedb"))
	require.NoError(t, err)
	defer ro.Close()

	row, err := ro.Row(ctx, "TEMPERATURE_INFO_1", "ASIC")
	require.NoError(t, err)
	assert.Equal(t, "50", row["temperature"])

	err = ro.SetRow(ctx, "TEMPERATURE_INFO_1", "ASIC", nil)
	assert.True(t, errors.HasCode(err, ErrReadOnly))

	_, err = Open(Config{Path: filepath.Join(t.TempDir(), "missing.db"), ReadOnly: true}, logger.With("statedb"))
	assert.Error(t, err)
}

func TestStoreSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, datetime('now'));
		CREATE TABLE state (legacy TEXT);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(Config{Path: path, BackupDir: filepath.Join(dir, "bk")}, logger.With("statedb"))
	require.NoError(t, err)
	defer s.Close()

	version, err := schemaVersion(s.db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	backups, err := os.ReadDir(filepath.Join(dir, "bk"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestConfigValidate(t *testing.T) {
	err := Config{}.Validate()
	assert.True(t, errors.HasCode(err, ErrInvalidDBPath))
}
