package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDatabase_RetriesPing(t *testing.T) {
	db, mock, err := sqlmock.NewWithDSN("setup-retry", sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	got, err := SetupDatabase(context.Background(), "sqlmock", "setup-retry", 2, 3, time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetupDatabase_GivesUp(t *testing.T) {
	db, mock, err := sqlmock.NewWithDSN("setup-giveup", sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	_, err = SetupDatabase(context.Background(), "sqlmock", "setup-giveup", 0, 2, time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
