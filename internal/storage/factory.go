// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/estate360/positioner/internal/config"
	"github.com/estate360/positioner/internal/storage/memory"
)

// NewBackend creates the file-free storage backend named by configuration.
// Database and websocket backends need live connections and are built by
// the command that owns them.
func NewBackend(cfg config.StorageConfig) (Backend, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
