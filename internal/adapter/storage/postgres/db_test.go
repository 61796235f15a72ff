package postgres

import (
	"context"
	"io"
	"testing"

	"agentforms-webhooks/config"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_InvalidConfig(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "afw",
		Password: "afw",
		DBName:   "webhooks",
		SSLMode:  "sometimes",
	}

	pool, err := NewPool(context.Background(), cfg, zerolog.New(io.Discard))
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.Contains(t, err.Error(), "parsing database config")
}

func TestHealthCheck(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	hc := NewHealthCheck(mock)
	assert.Equal(t, "postgresql", hc.Name())

	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	assert.NoError(t, hc.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
