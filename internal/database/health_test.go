package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wannagonna/internal/config"
)

func TestCheckHealthHealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery(regexp.QuoteMeta(healthTableQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	status := checkHealth(context.Background(), db, time.Second)
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Empty(t, status.Errors)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckHealthMissingTable(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectQuery(regexp.QuoteMeta(healthTableQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	status := checkHealth(context.Background(), db, time.Second)
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Contains(t, status.Errors, "documents table missing")
}

func TestCheckHealthPingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	status := checkHealth(context.Background(), db, time.Second)
	assert.Equal(t, StatusUnhealthy, status.Status)
	require.Len(t, status.Errors, 1)
	assert.Contains(t, status.Errors[0], "connection refused")
}

func TestCheckHealthNilDB(t *testing.T) {
	status := checkHealth(context.Background(), nil, time.Second)
	assert.Equal(t, StatusUnhealthy, status.Status)
}

func TestManagerHealthAndClose(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	m := newManagerWithDB(db, &config.DatabaseConfig{HealthTimeout: time.Second}, zap.NewNop())

	mock.ExpectPing()
	mock.ExpectQuery(regexp.QuoteMeta(healthTableQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	assert.Equal(t, StatusHealthy, m.Health(context.Background()).Status)

	mock.ExpectClose()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Nil(t, m.DB())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewManagerRequiresURL(t *testing.T) {
	_, err := NewManager(&config.DatabaseConfig{}, nil)
	assert.Error(t, err)
}
