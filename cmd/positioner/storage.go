package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/estate360/positioner/internal/api"
	"github.com/estate360/positioner/internal/config"
	"github.com/estate360/positioner/internal/database"
	"github.com/estate360/positioner/internal/storage"
	"github.com/estate360/positioner/internal/storage/memory"
	pgstorage "github.com/estate360/positioner/internal/storage/postgres"
	sqlitestorage "github.com/estate360/positioner/internal/storage/sqlite"
	wsstorage "github.com/estate360/positioner/internal/storage/websocket"
)

func createStorageBackend(storageCfg config.StorageConfig, apiCfg config.APIConfig, logger *slog.Logger) (storage.Backend, error) {
	metadata := map[string]string{"tag": storageCfg.Memory.Tag, "version": CurrentVersion}

	switch storageCfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			DBConfig: config.GetDBConfig(),
			Logger:   logger,
			Metadata: metadata,
		}), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     storageCfg.SQLite.DumpPath,
		}, logger, metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "dumpPath", storageCfg.SQLite.DumpPath)
		if previous, err := database.GetBackupDBPaths(filepath.Dir(storageCfg.SQLite.DumpPath)); err == nil && len(previous) > 0 {
			logger.Info("Found earlier SQLite dumps", "count", len(previous), "paths", previous)
		}
		return backend, nil

	case "websocket":
		wsURL := wsstorage.HTTPToWS(apiCfg.ServerURL) + "/api"
		logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			Secret: apiCfg.APIKey,
		}, logger), nil

	default:
		logger.Info("Memory storage backend initialized")
		return storage.NewBackend(storageCfg)
	}
}

// uploadExport sends the backend's export file to the panorama service, if
// the backend produced one.
func uploadExport(backend storage.Backend, client *api.Client, logger *slog.Logger) {
	u, ok := backend.(storage.Uploadable)
	if !ok || client == nil {
		return
	}
	path := u.GetExportedFilePath()
	if path == "" {
		logger.Debug("No placement export to upload")
		return
	}
	if err := client.Upload(path, u.GetExportMetadata()); err != nil {
		logger.Error("Failed to upload placement export", "path", path, "error", err)
		return
	}
	logger.Info("Uploaded placement export", "path", path)
}

var _ storage.Uploadable = (*memory.Backend)(nil)
