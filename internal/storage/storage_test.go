// internal/storage/storage_test.go
package storage_test

import (
	"testing"

	"github.com/estate360/positioner/internal/config"
	"github.com/estate360/positioner/internal/storage"
	"github.com/estate360/positioner/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend_Memory(t *testing.T) {
	b, err := storage.NewBackend(config.StorageConfig{
		Type:   "memory",
		Memory: config.MemoryConfig{OutputDir: t.TempDir()},
	})
	require.NoError(t, err)

	_, ok := b.(*memory.Backend)
	assert.True(t, ok)
	_, ok = b.(storage.Uploadable)
	assert.True(t, ok)
}

func TestNewBackend_Unknown(t *testing.T) {
	_, err := storage.NewBackend(config.StorageConfig{Type: "tape"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}
