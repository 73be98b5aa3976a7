package transferlog

import (
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, status int) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(w)
	ctx.Request = httptest.NewRequest("GET", "/api/Drive/User/File?fileId=abc", nil)
	ctx.Request.Header.Set("User-Agent", "TestAgent/1.0")
	ctx.Request.RemoteAddr = "10.1.2.3:5555"
	ctx.Status(status)
	return ctx
}

func TestLogger_RecordAndRead(t *testing.T) {
	tempDir := t.TempDir()
	logger, err := New(tempDir, slog.Default())
	require.NoError(t, err)
	defer logger.Close()

	ctx := newTestContext(t, 200)
	logger.Record(ctx, Entry{User: "1000001", Op: OpDownload, FileID: "abc", FileName: "a.txt", Status: "Completed", Bytes: 42})
	logger.Record(newTestContext(t, 400), Entry{User: "1000001", Op: OpCreate, FileName: "b.txt", Status: "Failed"})

	path := filepath.Join(tempDir, "1000001", currentLogName)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(LogFilePermission), info.Mode().Perm())

	entries, err := logger.UserEntries("1000001", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, OpDownload, entries[0].Op)
	assert.Equal(t, "abc", entries[0].FileID)
	assert.Equal(t, int64(42), entries[0].Bytes)
	assert.Equal(t, 200, entries[0].HTTPStatus)
	assert.Equal(t, "10.1.2.3", entries[0].IP)
	assert.Equal(t, "TestAgent/1.0", entries[0].UserAgent)
	assert.WithinDuration(t, time.Now(), entries[0].Timestamp, time.Minute)

	assert.Equal(t, OpCreate, entries[1].Op)
	assert.Equal(t, 400, entries[1].HTTPStatus)

	entries, err = logger.UserEntries("1000001", 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, OpCreate, entries[0].Op)
}

func TestLogger_Anonymous(t *testing.T) {
	tempDir := t.TempDir()
	logger, err := New(tempDir, slog.Default())
	require.NoError(t, err)
	defer logger.Close()

	logger.Record(newTestContext(t, 200), Entry{Op: OpList, Status: "Completed"})
	assert.FileExists(t, filepath.Join(tempDir, "anonymous", currentLogName))
}

func TestLogger_UnknownUser(t *testing.T) {
	logger, err := New(t.TempDir(), slog.Default())
	require.NoError(t, err)

	entries, err := logger.UserEntries("nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLogger_Nil(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Record(newTestContext(t, 200), Entry{Op: OpList})
	})
	assert.NoError(t, logger.Close())
}

func TestEntry_JSONFormat(t *testing.T) {
	ts := time.Date(2026, 10, 17, 9, 30, 0, 123_000_000, time.UTC)
	data, err := json.Marshal(Entry{Timestamp: ts, User: "u", Op: OpUpdate, Status: "Completed"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":"2026-10-17 09:30:00.123 UTC"`)
	assert.NotContains(t, string(data), "file_id")

	var back Entry
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, ts.Equal(back.Timestamp))
	assert.Equal(t, OpUpdate, back.Op)

	require.NoError(t, json.Unmarshal([]byte(`{"timestamp":"2026-10-17T09:30:00Z","op":"list"}`), &back))
	assert.Equal(t, OpList, back.Op)

	assert.Error(t, json.Unmarshal([]byte(`{"timestamp":"yesterday"}`), &back))
}

func TestUserLogWriter_Rotate(t *testing.T) {
	dir := t.TempDir()
	w := &userLogWriter{logDir: dir}
	require.NoError(t, w.openLogFile())
	defer w.close()

	require.NoError(t, w.writeEntry(Entry{User: "u", Op: OpList}))
	w.currentSize = MaxLogSize

	require.NoError(t, w.writeEntry(Entry{User: "u", Op: OpCreate}))

	rotated, err := rotatedLogs(dir)
	require.NoError(t, err)
	require.Len(t, rotated, 1)

	data, err := os.ReadFile(filepath.Join(dir, currentLogName))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.Contains(t, string(data), `"op":"create"`)
}

func TestUserLogWriter_CleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < MaxLogFiles+2; i++ {
		name := fmt.Sprintf("transfers_20260101_0000%02d.000000.log", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, LogFilePermission))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, currentLogName), []byte("{}\n"), LogFilePermission))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, LogFilePermission))

	w := &userLogWriter{logDir: dir}
	require.NoError(t, w.cleanOldLogs())

	rotated, err := rotatedLogs(dir)
	require.NoError(t, err)
	assert.Len(t, rotated, MaxLogFiles-1)
	assert.Equal(t, fmt.Sprintf("transfers_20260101_0000%02d.000000.log", MaxLogFiles+1), rotated[len(rotated)-1])
	assert.FileExists(t, filepath.Join(dir, currentLogName))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestUserDirName(t *testing.T) {
	assert.Equal(t, "ada@example.com", userDirName("ada@example.com"))
	assert.Equal(t, ".._etc_passwd", userDirName("../etc/passwd"))
	assert.Equal(t, "anonymous", userDirName(""))
	assert.Equal(t, "anonymous", userDirName(".."))
	assert.Equal(t, "j_e", userDirName("jöe"))
}
