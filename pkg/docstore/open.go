package docstore

import (
	"context"
	"fmt"
)

// Config selects and configures a Store backend.
type Config struct {
	Driver           string
	Path             string
	MongoURI         string
	MongoDatabase    string
	FirestoreProject string
}

// Open creates the Store named by cfg.Driver. An empty driver means sqlite.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage.path is required for the sqlite driver")
		}
		return NewSQLite(cfg.Path)
	case "mongo":
		if cfg.MongoURI == "" || cfg.MongoDatabase == "" {
			return nil, fmt.Errorf("storage.mongo_uri and storage.mongo_database are required for the mongo driver")
		}
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "firestore":
		if cfg.FirestoreProject == "" {
			return nil, fmt.Errorf("storage.firestore_project is required for the firestore driver")
		}
		return NewFirestore(ctx, cfg.FirestoreProject)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
