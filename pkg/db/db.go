package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intermodalpt/backend-sub002/pkg/config"
)

func MustConnect(cfg *config.Config) *pgxpool.Pool {
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	pc.MaxConns = cfg.Pool.MaxConns
	pc.MinConns = cfg.Pool.MinConns
	pc.MaxConnLifetime = 30 * time.Minute
	pc.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(context.Background(), pc)
	if err != nil {
		panic(err)
	}
	return pool
}
