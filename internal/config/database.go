package config

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxConfig parses DATABASE_URL into a pgxpool.Config with the pool
// settings both processes share.
func (c *Config) PgxConfig() (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 1 * time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	return cfg, nil
}
