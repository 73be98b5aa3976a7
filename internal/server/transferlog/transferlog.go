package transferlog

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

// Logger keeps one rotating JSON-lines file per user under baseDir.
type Logger struct {
	baseDir     string
	writers     map[string]*userLogWriter
	writerMutex sync.Mutex
	logger      *slog.Logger
}

func New(baseDir string, logger *slog.Logger) (*Logger, error) {
	if err := os.MkdirAll(baseDir, LogDirPermission); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Logger{
		baseDir: baseDir,
		writers: make(map[string]*userLogWriter),
		logger:  logger.With("component", "transfer_log"),
	}, nil
}

// Record completes entry from the request and appends it to the user's log.
// Write failures are logged and otherwise ignored. A nil Logger records nothing.
func (l *Logger) Record(ctx *gin.Context, entry Entry) {
	if l == nil {
		return
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.User == "" {
		entry.User = "anonymous"
	}
	if entry.HTTPStatus == 0 {
		entry.HTTPStatus = ctx.Writer.Status()
	}
	entry.IP = ctx.ClientIP()
	entry.UserAgent = ctx.Request.UserAgent()

	if err := l.writeLog(entry.User, entry); err != nil {
		l.logger.Error("failed to write transfer log",
			"user", entry.User,
			"op", entry.Op,
			"error", err)
	}
}

func (l *Logger) writeLog(user string, entry Entry) error {
	l.writerMutex.Lock()
	writer, exists := l.writers[user]
	if !exists {
		var err error
		writer, err = l.createUserWriter(user)
		if err != nil {
			l.writerMutex.Unlock()
			return err
		}
		l.writers[user] = writer
	}
	l.writerMutex.Unlock()

	return writer.writeEntry(entry)
}

func (l *Logger) userDir(user string) string {
	return filepath.Join(l.baseDir, userDirName(user))
}

func (l *Logger) createUserWriter(user string) (*userLogWriter, error) {
	userDir := l.userDir(user)
	if err := os.MkdirAll(userDir, LogDirPermission); err != nil {
		return nil, fmt.Errorf("failed to create user log directory: %w", err)
	}

	writer := &userLogWriter{logDir: userDir}
	if err := writer.openLogFile(); err != nil {
		return nil, err
	}
	return writer, nil
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.writerMutex.Lock()
	defer l.writerMutex.Unlock()

	var errs []error
	for user, writer := range l.writers {
		if err := writer.close(); err != nil {
			errs = append(errs, err)
		}
		delete(l.writers, user)
	}
	return errors.Join(errs...)
}

// UserEntries returns up to limit of the user's most recent entries, oldest first.
func (l *Logger) UserEntries(user string, limit int) ([]Entry, error) {
	if l == nil {
		return []Entry{}, nil
	}

	userDir := l.userDir(user)

	rotated, err := rotatedLogs(userDir)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	} else if err != nil {
		return nil, err
	}

	// newest first: live file, then rotated files in reverse
	files := []string{currentLogName}
	for i := len(rotated) - 1; i >= 0; i-- {
		files = append(files, rotated[i])
	}

	var entries []Entry
	for _, name := range files {
		if len(entries) >= limit {
			break
		}

		path := filepath.Join(userDir, name)
		fileEntries, err := readLogFile(path, limit-len(entries))
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			l.logger.Warn("failed to read log file", "file", path, "error", err)
			continue
		}

		entries = append(fileEntries, entries...)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func readLogFile(path string, limit int) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	decoder := json.NewDecoder(file)

	for {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return entries, err
		}
		entries = append(entries, entry)
	}

	if len(entries) > limit {
		return entries[len(entries)-limit:], nil
	}
	return entries, nil
}
