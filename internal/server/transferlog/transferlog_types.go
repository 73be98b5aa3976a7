package transferlog

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

const (
	MaxLogSize        = 10 * 1024 * 1024 // 10MB
	MaxLogFiles       = 5
	LogFilePermission = 0600
	LogDirPermission  = 0700

	timestampFormat = "2006-01-02 15:04:05.000 UTC"
)

type Op string

const (
	OpList     Op = "list"
	OpDownload Op = "download"
	OpCreate   Op = "create"
	OpUpdate   Op = "update"
)

type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	User       string    `json:"user"`
	Op         Op        `json:"op"`
	FileID     string    `json:"file_id,omitempty"`
	FileName   string    `json:"file_name,omitempty"`
	Status     string    `json:"status"`
	Bytes      int64     `json:"bytes"`
	HTTPStatus int       `json:"http_status"`
	IP         string    `json:"ip"`
	UserAgent  string    `json:"user_agent"`
}

type entryJSON struct {
	Timestamp  string `json:"timestamp"`
	User       string `json:"user"`
	Op         Op     `json:"op"`
	FileID     string `json:"file_id,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	Status     string `json:"status"`
	Bytes      int64  `json:"bytes"`
	HTTPStatus int    `json:"http_status"`
	IP         string `json:"ip"`
	UserAgent  string `json:"user_agent"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(&entryJSON{
		Timestamp:  e.Timestamp.UTC().Format(timestampFormat),
		User:       e.User,
		Op:         e.Op,
		FileID:     e.FileID,
		FileName:   e.FileName,
		Status:     e.Status,
		Bytes:      e.Bytes,
		HTTPStatus: e.HTTPStatus,
		IP:         e.IP,
		UserAgent:  e.UserAgent,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var aux entryJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	t, err := time.Parse("2006-01-02 15:04:05.000 MST", aux.Timestamp)
	if err != nil {
		t, err = time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to parse timestamp: %w", err)
		}
	}

	*e = Entry{
		Timestamp:  t,
		User:       aux.User,
		Op:         aux.Op,
		FileID:     aux.FileID,
		FileName:   aux.FileName,
		Status:     aux.Status,
		Bytes:      aux.Bytes,
		HTTPStatus: aux.HTTPStatus,
		IP:         aux.IP,
		UserAgent:  aux.UserAgent,
	}
	return nil
}
