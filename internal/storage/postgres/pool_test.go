package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func TestOpenPoolRejectsBadDSN(t *testing.T) {
	t.Parallel()

	_, err := OpenPool(context.Background(), PoolConfig{DSN: "  "})
	require.ErrorContains(t, err, "db.dsn is required")

	_, err = OpenPool(context.Background(), PoolConfig{DSN: "postgres://%zz"})
	require.ErrorContains(t, err, "parse postgres dsn")
}

func TestApplyLimits(t *testing.T) {
	t.Parallel()

	dst, err := pgxpool.ParseConfig("postgres://seo@localhost:5432/seo")
	require.NoError(t, err)
	applyLimits(dst, PoolConfig{MaxConns: 4, MinConns: 10, MaxConnLifetime: time.Hour})

	require.Equal(t, int32(4), dst.MaxConns)
	require.Equal(t, int32(4), dst.MinConns)
	require.Equal(t, time.Hour, dst.MaxConnLifetime)
}
