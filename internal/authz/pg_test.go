package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMemberGranted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`select exists`).
		WithArgs("user-1", "board-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewPGChecker(db).IsMember(context.Background(), "user-1", "board-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsMemberDenied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`select exists`).
		WithArgs("user-2", "board-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ok, err := NewPGChecker(db).IsMember(context.Background(), "user-2", "board-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsMemberQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`select exists`).
		WillReturnError(errors.New("connection reset"))

	_, err = NewPGChecker(db).IsMember(context.Background(), "user-1", "board-1")
	assert.Error(t, err)
}
