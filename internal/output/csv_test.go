package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cefr-dataset/internal/vocab"
)

func TestFreshSinkWritesHeaderOnce(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "cefr.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale contents\n"), 0o600))

	sink, err := OpenCSV(path, true)
	require.NoError(t, err)
	require.NoError(t, sink.Write([]vocab.Record{
		{Word: "cat", Level: "A1", Definition: "a small domesticated animal"},
		{Word: "dog", Level: "A1", Definition: "a domesticated animal, \"loyal\"", Synonyms: "domestic_dog, canis_familiaris"},
	}))
	require.NoError(t, sink.Flush())
	sink.Commit()
	require.Equal(t, 2, sink.Rows())
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "Word,CEFR,Definition,Synonyms\n"+
		"cat,A1,a small domesticated animal,\n"+
		"dog,A1,\"a domesticated animal, \"\"loyal\"\"\",\"domestic_dog, canis_familiaris\"\n", string(data))
}

func TestAppendSinkSkipsHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cefr.csv")
	first, err := OpenCSV(path, true)
	require.NoError(t, err)
	require.NoError(t, first.Write([]vocab.Record{{Word: "cat", Level: "A1"}}))
	require.NoError(t, first.Flush())
	first.Commit()
	require.NoError(t, first.Close())

	second, err := OpenCSV(path, false)
	require.NoError(t, err)
	require.NoError(t, second.Write([]vocab.Record{{Word: "dog", Level: "A2"}}))
	require.NoError(t, second.Flush())
	second.Commit()
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "Word,CEFR,Definition,Synonyms\ncat,A1,,\ndog,A2,,\n", string(data))
}

func TestAppendToMissingFileWritesHeader(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cefr.csv")
	sink, err := OpenCSV(path, false)
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "Word,CEFR,Definition,Synonyms\n", string(data))
}

func manyRecords(n int) []vocab.Record {
	recs := make([]vocab.Record, n)
	for i := range recs {
		recs[i] = vocab.Record{
			Word:       fmt.Sprintf("word%03d", i),
			Level:      "B1",
			Definition: strings.Repeat("x", 40),
		}
	}
	return recs
}

func TestCloseDiscardsUncommittedRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cefr.csv")
	sink, err := OpenCSV(path, true)
	require.NoError(t, err)
	require.NoError(t, sink.Write([]vocab.Record{{Word: "cat", Level: "A1"}}))
	require.NoError(t, sink.Flush())
	sink.Commit()

	// Large enough that the csv writer spills to the file on its own.
	require.NoError(t, sink.Write(manyRecords(200)))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(4096))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "Word,CEFR,Definition,Synonyms\ncat,A1,,\n", string(data))
}

func TestRollbackTruncatesFlushedRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cefr.csv")
	sink, err := OpenCSV(path, true)
	require.NoError(t, err)
	require.NoError(t, sink.Write([]vocab.Record{{Word: "cat", Level: "A1"}}))
	require.NoError(t, sink.Flush())
	sink.Commit()

	require.NoError(t, sink.Write(manyRecords(3)))
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Rollback())
	require.Equal(t, 1, sink.Rows())

	require.NoError(t, sink.Write([]vocab.Record{{Word: "dog", Level: "A1"}}))
	require.NoError(t, sink.Flush())
	sink.Commit()
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "Word,CEFR,Definition,Synonyms\ncat,A1,,\ndog,A1,,\n", string(data))
}

func TestRollbackOnAppendedFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cefr.csv")
	first, err := OpenCSV(path, true)
	require.NoError(t, err)
	require.NoError(t, first.Write([]vocab.Record{{Word: "cat", Level: "A1"}}))
	require.NoError(t, first.Flush())
	first.Commit()
	require.NoError(t, first.Close())

	second, err := OpenCSV(path, false)
	require.NoError(t, err)
	require.NoError(t, second.Write([]vocab.Record{{Word: "dog", Level: "A1"}}))
	require.NoError(t, second.Flush())
	require.NoError(t, second.Rollback())
	require.NoError(t, second.Write([]vocab.Record{{Word: "eel", Level: "B2"}}))
	require.NoError(t, second.Flush())
	second.Commit()
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "Word,CEFR,Definition,Synonyms\ncat,A1,,\neel,B2,,\n", string(data))
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := OpenCSV("", true)
	require.Error(t, err)
}
