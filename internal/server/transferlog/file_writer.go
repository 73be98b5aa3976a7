package transferlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const currentLogName = "transfers.log"

type userLogWriter struct {
	file        *os.File
	currentSize int64
	mutex       sync.Mutex
	logDir      string
}

// writeEntry appends one JSON line, rotating first if the file would outgrow MaxLogSize.
func (w *userLogWriter) writeEntry(entry Entry) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	data = append(data, '\n')

	if w.currentSize > 0 && w.currentSize+int64(len(data)) > MaxLogSize {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := w.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}

	w.currentSize += int64(n)
	return nil
}

func (w *userLogWriter) currentPath() string {
	return filepath.Join(w.logDir, currentLogName)
}

func (w *userLogWriter) openLogFile() error {
	file, err := os.OpenFile(w.currentPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, LogFilePermission)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	w.file = file
	w.currentSize = stat.Size()
	return nil
}

func (w *userLogWriter) rotate() error {
	if w.file != nil {
		w.file.Close()
	}

	rotated := filepath.Join(w.logDir, fmt.Sprintf("transfers_%s.log", time.Now().UTC().Format("20060102_150405.000000")))
	if err := os.Rename(w.currentPath(), rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if err := w.cleanOldLogs(); err != nil {
		return fmt.Errorf("failed to clean old logs: %w", err)
	}

	return w.openLogFile()
}

// rotatedLogs lists rotated files oldest first.
func rotatedLogs(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, file := range files {
		name := file.Name()
		if !file.IsDir() && name != currentLogName && strings.HasPrefix(name, "transfers_") && filepath.Ext(name) == ".log" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// cleanOldLogs keeps MaxLogFiles files including the live one.
func (w *userLogWriter) cleanOldLogs() error {
	names, err := rotatedLogs(w.logDir)
	if err != nil {
		return err
	}

	keep := MaxLogFiles - 1
	if len(names) <= keep {
		return nil
	}

	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(w.logDir, name)); err != nil {
			return fmt.Errorf("failed to remove old log file: %w", err)
		}
	}
	return nil
}

func (w *userLogWriter) close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
