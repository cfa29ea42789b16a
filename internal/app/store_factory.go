package app

import (
	"fmt"
	"strings"

	"github.com/shrimpsizemoose/marksheet/internal/store"
	"github.com/shrimpsizemoose/marksheet/internal/store/memory"
	"github.com/shrimpsizemoose/marksheet/internal/store/mongo"
	"github.com/shrimpsizemoose/marksheet/internal/store/postgres"
	"github.com/shrimpsizemoose/marksheet/internal/store/sqlite"
)

// DetectDatabaseType picks the backend from the DSN scheme. Anything
// unrecognised is treated as a sqlite path.
func DetectDatabaseType(dsn string) store.DatabaseType {
	switch {
	case strings.HasPrefix(dsn, "postgres"):
		return store.DBTypePostgres
	case strings.HasPrefix(dsn, "mongodb"):
		return store.DBTypeMongo
	case dsn == "memory" || strings.HasPrefix(dsn, "memory:"):
		return store.DBTypeMemory
	default:
		return store.DBTypeSQLite
	}
}

func NewStore(cfg store.DBConfig) (store.DocumentStore, error) {
	if cfg.Type == "" {
		cfg.Type = DetectDatabaseType(cfg.DSN)
	}

	switch cfg.Type {
	case store.DBTypePostgres:
		return postgres.NewPostgresStore(cfg.DSN, cfg.MigrationsDir)
	case store.DBTypeSQLite:
		return sqlite.NewSQLiteStore(strings.TrimPrefix(cfg.DSN, "sqlite://"), cfg.MigrationsDir)
	case store.DBTypeMongo:
		return mongo.NewMongoStore(cfg.DSN, cfg.Database)
	case store.DBTypeMemory:
		return memory.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unable to determine database type from DSN: %s", cfg.DSN)
	}
}
