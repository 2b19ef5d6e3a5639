package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	werrors "github.com/wrale/wrale-adplay/internal/wadplayd/errors"
)

func TestRunInTx_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM playout_journal").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	err = RunInTx(context.Background(), db, nil, func(tx *Tx) error {
		_, err := tx.ExecContext(context.Background(), "DELETE FROM playout_journal")
		return err
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = RunInTx(context.Background(), db, &TxOptions{ReadOnly: true}, func(tx *Tx) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
		code string
	}{
		{name: "unique", err: &pq.Error{Code: "23505"}, want: werrors.ErrConflict, code: "CONFLICT"},
		{name: "check", err: &pq.Error{Code: "23514", Message: "bad rate"}, want: werrors.ErrInvalidInput, code: "INVALID_INPUT"},
		{name: "no rows", err: sql.ErrNoRows, want: werrors.ErrNotFound, code: "NOT_FOUND"},
		{name: "other", err: errors.New("connection reset"), code: "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err, "test.op")
			var domainErr *werrors.Error
			require.ErrorAs(t, got, &domainErr)
			assert.Equal(t, tt.code, domainErr.Code)
			assert.Equal(t, "test.op", domainErr.Op)
			if tt.want != nil {
				assert.ErrorIs(t, got, tt.want)
			}
		})
	}

	assert.NoError(t, MapError(nil, "op"))
}

func TestGenerateInsertQuery(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO playout_journal (cycle_id, status) VALUES ($1, $2)",
		GenerateInsertQuery("playout_journal", []string{"cycle_id", "status"}),
	)
}
