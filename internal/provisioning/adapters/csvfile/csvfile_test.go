package csvfile

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReader_ReadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extensions.csv")
	content := "Extension,Name\n1001,Dana Reyes\n1002,\"Lee, Jordan\"\n"
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := NewReader(testLogger()).ReadTable(context.Background(), path)

	assert.NoError(t, err)
	assert.Equal(t, []string{"Extension", "Name"}, table.Headers)
	assert.Len(t, table.Rows, 2)
	assert.Equal(t, "Lee, Jordan", table.Rows[1][1])
}

func TestReader_ReadTable_ToleratesRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extensions.csv")
	content := "Extension,Name\n1001\n1002,Lee,extra\n"
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := NewReader(testLogger()).ReadTable(context.Background(), path)

	assert.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestReader_ReadTable_EmptyFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	assert.NoError(t, os.WriteFile(path, nil, 0o600))

	table, err := NewReader(testLogger()).ReadTable(context.Background(), path)

	assert.Error(t, err)
	assert.Nil(t, table)
}

func TestWriter_WriteTable_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "import_active.csv")
	headers := []string{"extension", "name"}
	rows := [][]string{{"1001", "Dana Reyes"}, {"1002", "Lee, Jordan"}}

	err := NewWriter(testLogger()).WriteTable(context.Background(), path, headers, rows)
	assert.NoError(t, err)

	table, err := NewReader(testLogger()).ReadTable(context.Background(), path)
	assert.NoError(t, err)
	assert.Equal(t, headers, table.Headers)
	assert.Equal(t, rows, table.Rows)
}
