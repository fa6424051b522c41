package kv

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Get(t *testing.T) {
	t.Run("PresentKey", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT value FROM kv_entries`).
			WithArgs(KeyStats).
			WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(`{"ok":5}`))

		s := NewPostgresWithPool(mock)
		got, err := s.Get(context.Background(), KeyStats)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":5}`, string(got))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AbsentKeyReturnsNil", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT value FROM kv_entries`).
			WithArgs(KeyCache).
			WillReturnRows(pgxmock.NewRows([]string{"value"}))

		s := NewPostgresWithPool(mock)
		got, err := s.Get(context.Background(), KeyCache)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_Set(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO kv_entries`).
		WithArgs(KeyCache, `{"a":1}`, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewPostgresWithPool(mock)
	require.NoError(t, s.Set(context.Background(), KeyCache, []byte(`{"a":1}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS kv_entries`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	s := NewPostgresWithPool(mock)
	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
