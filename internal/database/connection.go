package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kadirbelkuyu/fbadapter/internal/config"

	_ "github.com/nakagami/firebirdsql"
)

// DriverName is the database/sql name the Firebird driver registers under.
const DriverName = "firebirdsql"

type Connection struct {
	DB     *sql.DB
	Config *config.Config
}

func NewConnection(cfg *config.Config) (*Connection, error) {
	if cfg.Database.Type != "" && cfg.Database.Type != "firebird" {
		return nil, fmt.Errorf("unsupported database type for SQL connection: %s", cfg.Database.Type)
	}

	db, err := sql.Open(DriverName, cfg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	return &Connection{
		DB:     db,
		Config: cfg,
	}, nil
}

// Driver pins one connection from the pool for a single adapter.
func (c *Connection) Driver(ctx context.Context) (*SQLDriver, error) {
	return NewSQLDriver(ctx, c.DB)
}

func (c *Connection) Close() error {
	return c.DB.Close()
}

func (c *Connection) GetDatabaseName() string {
	return c.Config.Database.Database
}
