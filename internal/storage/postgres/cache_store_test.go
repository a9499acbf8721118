package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

func TestCacheStoreLoadScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCacheStore(mock, "cefr_cache")
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{"word", "level", "definition", "synonyms"}).
		AddRow("cat", "A1", "a small domesticated animal", "").
		AddRow("Dog", "A1", "a domesticated animal", "domestic_dog")
	mock.ExpectQuery("SELECT word, level, definition, synonyms FROM cefr_cache").WillReturnRows(rows)

	entries, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "domestic_dog", entries["dog"].Synonyms)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStoreStoreUpsertsChangedOnly(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCacheStore(mock, "")
	require.NoError(t, err)

	entries := map[string]vocab.Record{
		"cat": {Word: "cat", Level: "A1", Definition: "a small domesticated animal"},
		"dog": {Word: "dog", Level: "A1", Definition: "a domesticated animal"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cefr_cache").
		WithArgs("dog", "A1", "a domesticated animal", "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.Store(context.Background(), entries, []string{"dog"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStoreStoreRollsBackOnError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCacheStore(mock, "cefr_cache")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO cefr_cache").
		WithArgs("cat", "A1", "", "").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.Store(context.Background(), map[string]vocab.Record{"cat": {Word: "cat", Level: "A1"}}, []string{"cat"})
	require.ErrorContains(t, err, "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStoreStoreNoChangesSkipsTransaction(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewCacheStore(mock, "cefr_cache")
	require.NoError(t, err)

	require.NoError(t, store.Store(context.Background(), map[string]vocab.Record{}, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewCacheStoreRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewCacheStore(mock, "cache; DROP TABLE x")
	require.Error(t, err)
	_, err = NewCacheStore(nil, "cefr_cache")
	require.Error(t, err)
}
