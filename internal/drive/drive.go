package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/openmined/drivegate/internal/version"
)

const (
	FolderMimeType = "application/vnd.google-apps.folder"

	queryNonFolders = "mimeType != '" + FolderMimeType + "'"
)

var ErrNotFound = errors.New("file not found")

// File is a remote file reference. IDs are assigned by Drive.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
}

// Service is a Drive client bound to one credential. It is meant to be
// created per request and dropped afterwards.
type Service struct {
	config *Config
	files  *gdrive.FilesService
	about  *gdrive.AboutService
}

func New(ctx context.Context, ts oauth2.TokenSource, config *Config, opts ...option.ClientOption) (*Service, error) {
	if ts == nil {
		return nil, errors.New("drive: nil token source")
	}

	clientOpts := []option.ClientOption{
		option.WithTokenSource(ts),
		option.WithUserAgent(version.UserAgent()),
	}
	if config.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(config.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := gdrive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Service{
		config: config,
		files:  svc.Files,
		about:  svc.About,
	}, nil
}

// ListFiles returns the first page of non-folder files, in the order Drive returns them.
func (s *Service) ListFiles(ctx context.Context) ([]File, error) {
	return s.list(ctx, queryNonFolders)
}

// ListOwnedFiles is ListFiles narrowed to files owned by email.
func (s *Service) ListOwnedFiles(ctx context.Context, email string) ([]File, error) {
	return s.list(ctx, fmt.Sprintf("'%s' in owners and %s", escapeQuery(email), queryNonFolders))
}

func (s *Service) list(ctx context.Context, query string) ([]File, error) {
	resp, err := s.files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, mimeType)").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	files := make([]File, 0, len(resp.Files))
	for _, f := range resp.Files {
		files = append(files, fromDrive(f))
	}
	return files, nil
}

// GetFile resolves a file's metadata. Unknown IDs yield ErrNotFound.
func (s *Service) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := s.files.Get(fileID).
		Fields("id, name, mimeType").
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("get file", fileID, err)
	}
	file := fromDrive(f)
	return &file, nil
}

// AboutEmail returns the email address of the authorized user.
func (s *Service) AboutEmail(ctx context.Context) (string, error) {
	about, err := s.about.Get().Fields("user").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("about: %w", err)
	}
	if about.User == nil || about.User.EmailAddress == "" {
		return "", errors.New("about: user email not returned")
	}
	return about.User.EmailAddress, nil
}

func fromDrive(f *gdrive.File) File {
	return File{ID: f.Id, Name: f.Name, MimeType: f.MimeType}
}

// IsNotFound reports whether err is a Drive 404.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

func wrapError(op, fileID string, err error) error {
	if IsNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, fileID, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, fileID, err)
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
