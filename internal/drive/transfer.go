package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

type TransferStatus int

const (
	TransferNotStarted TransferStatus = iota
	TransferInProgress
	TransferCompleted
	TransferFailed
)

func (s TransferStatus) String() string {
	switch s {
	case TransferNotStarted:
		return "NotStarted"
	case TransferInProgress:
		return "InProgress"
	case TransferCompleted:
		return "Completed"
	case TransferFailed:
		return "Failed"
	default:
		return fmt.Sprintf("TransferStatus(%d)", int(s))
	}
}

// Transfer is the final (or, in progress callbacks, current) state of an upload or download.
type Transfer struct {
	Status TransferStatus
	Bytes  int64
}

// ProgressFunc observes a running transfer. It is called on the transferring goroutine.
type ProgressFunc func(Transfer)

// TransferError reports a transfer that reached TransferFailed.
type TransferError struct {
	Op       string
	FileID   string
	Transfer Transfer
	Err      error
}

func (e *TransferError) Error() string {
	if e.FileID == "" {
		return fmt.Sprintf("%s failed after %d bytes: %v", e.Op, e.Transfer.Bytes, e.Err)
	}
	return fmt.Sprintf("%s %s failed after %d bytes: %v", e.Op, e.FileID, e.Transfer.Bytes, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// FailedTransfer returns the final state of a failed upload or download. ok
// is false for metadata lookup and setup errors.
func FailedTransfer(err error) (transfer Transfer, ok bool) {
	var terr *TransferError
	if !errors.As(err, &terr) {
		return Transfer{}, false
	}
	return terr.Transfer, true
}

type DownloadRequest struct {
	FileID   string
	Progress ProgressFunc
}

// Download streams a file's content into w.
func (s *Service) Download(ctx context.Context, req *DownloadRequest, w io.Writer) (*Transfer, error) {
	resp, err := s.files.Get(req.FileID).Context(ctx).Download()
	if err != nil {
		return nil, &TransferError{
			Op:       "download",
			FileID:   req.FileID,
			Transfer: Transfer{Status: TransferFailed},
			Err:      err,
		}
	}
	defer resp.Body.Close()

	cw := &countingWriter{w: w, progress: req.Progress}
	if _, err := io.Copy(cw, resp.Body); err != nil {
		return nil, &TransferError{
			Op:       "download",
			FileID:   req.FileID,
			Transfer: Transfer{Status: TransferFailed, Bytes: cw.n},
			Err:      err,
		}
	}

	return &Transfer{Status: TransferCompleted, Bytes: cw.n}, nil
}

type UploadRequest struct {
	// FileID is the file to overwrite; empty for a create.
	FileID      string
	Name        string
	ContentType string
	Body        io.Reader
	Progress    ProgressFunc
}

type UploadResult struct {
	File     File
	Transfer Transfer
}

// Create uploads a new file into the root of the user's Drive.
func (s *Service) Create(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	body, mediaOpts := s.media(req)
	call := s.files.Create(&gdrive.File{Name: req.Name}).
		Media(body, mediaOpts...).
		ProgressUpdater(progressUpdater(req.Progress)).
		Fields("id, name, mimeType").
		Context(ctx)

	f, err := call.Do()
	if err != nil {
		return nil, &TransferError{
			Op:       "upload",
			Transfer: Transfer{Status: TransferFailed, Bytes: body.n},
			Err:      err,
		}
	}

	return &UploadResult{
		File:     fromDrive(f),
		Transfer: Transfer{Status: TransferCompleted, Bytes: body.n},
	}, nil
}

// Update replaces an existing file's content. The name is carried over as given.
func (s *Service) Update(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if req.FileID == "" {
		return nil, errors.New("update: file id is required")
	}

	body, mediaOpts := s.media(req)
	call := s.files.Update(req.FileID, &gdrive.File{Name: req.Name}).
		Media(body, mediaOpts...).
		ProgressUpdater(progressUpdater(req.Progress)).
		Fields("id, name, mimeType").
		Context(ctx)

	f, err := call.Do()
	if err != nil {
		return nil, &TransferError{
			Op:       "update",
			FileID:   req.FileID,
			Transfer: Transfer{Status: TransferFailed, Bytes: body.n},
			Err:      err,
		}
	}

	return &UploadResult{
		File:     fromDrive(f),
		Transfer: Transfer{Status: TransferCompleted, Bytes: body.n},
	}, nil
}

func (s *Service) media(req *UploadRequest) (*countingReader, []googleapi.MediaOption) {
	contentType := s.config.UploadType(req.Name, req.ContentType)
	slog.Debug("drive upload", "file", req.Name, "id", req.FileID, "contentType", contentType)
	return &countingReader{r: req.Body}, []googleapi.MediaOption{
		googleapi.ContentType(contentType),
		googleapi.ChunkSize(s.config.chunkSize()),
	}
}

func progressUpdater(fn ProgressFunc) googleapi.ProgressUpdater {
	return func(current, _ int64) {
		if fn != nil {
			fn(Transfer{Status: TransferInProgress, Bytes: current})
		}
	}
}

type countingWriter struct {
	w        io.Writer
	n        int64
	progress ProgressFunc
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if c.progress != nil && n > 0 {
		c.progress(Transfer{Status: TransferInProgress, Bytes: c.n})
	}
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
