package pid

import (
	"os"
	"strconv"
	"testing"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRemove(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Write(dir))
	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	err = Write(dir)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	require.NoError(t, Remove(dir))
	require.NoError(t, Remove(dir))
	_, err = os.Stat(Path(dir))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteStale(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"dead process", "99999999\n"},
		{"garbage", "not a pid"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(Path(dir), []byte(tt.content), 0o600))
			assert.NoError(t, Write(dir))
		})
	}
}
