package database

import (
	"testing"
	"time"

	"github.com/BradenHooton/totpgate/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurePool(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:              "db",
		Port:              5432,
		User:              "totpgate",
		Password:          "secret",
		Name:              "totpgate",
		SSLMode:           "disable",
		MaxConns:          10,
		MinConns:          2,
		MaxConnLifetime:   5 * time.Minute,
		MaxConnIdleTime:   time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    5 * time.Second,
		StatementTimeout:  3 * time.Second,
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	require.NoError(t, err)

	configurePool(poolConfig, cfg)

	assert.Equal(t, int32(10), poolConfig.MaxConns)
	assert.Equal(t, int32(2), poolConfig.MinConns)
	assert.Equal(t, 5*time.Second, poolConfig.ConnConfig.ConnectTimeout)
	assert.Equal(t, "3000", poolConfig.ConnConfig.RuntimeParams["statement_timeout"])
	assert.Equal(t, "totpgate", poolConfig.ConnConfig.RuntimeParams["application_name"])
}
