package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"voxcollect/internal/config"
	"voxcollect/internal/db"
	"voxcollect/internal/engine"
	"voxcollect/internal/migrate"
	"voxcollect/internal/storage"
)

// Context holds everything a command or server needs: the open database, the
// workspace config and the lifecycle engine.
type Context struct {
	Workspace string
	DB        *sql.DB
	Cfg       *config.Config
	Engine    *engine.Engine
	Logger    *log.Logger
}

// Open prepares the workspace: open and migrate the database, load
// voxcollect.yml if present, pick the storage backend and build the engine.
func Open(ctx context.Context, workspace string) (*Context, error) {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}

	store, err := openStore(ctx, workspace, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	eng := engine.New(conn, store, cfg, logger)
	return &Context{
		Workspace: workspace,
		DB:        conn,
		Cfg:       cfg,
		Engine:    eng,
		Logger:    logger,
	}, nil
}

func openStore(ctx context.Context, workspace string, cfg *config.Config) (storage.Store, error) {
	backend, localDir, baseURL, region := "local", "", "", ""
	if cfg != nil {
		backend = cfg.Storage.Backend
		localDir = cfg.Storage.LocalDir
		baseURL = cfg.Storage.BaseURL
		region = cfg.Storage.Region
	}
	switch backend {
	case "s3":
		return storage.NewS3Store(ctx, region)
	case "local", "":
		if localDir == "" {
			localDir = filepath.Join(workspace, ".voxcollect", "blobs")
		}
		return storage.NewLocalStore(localDir, baseURL)
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

func (c *Context) Close() error {
	return c.DB.Close()
}
