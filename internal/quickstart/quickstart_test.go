package quickstart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/openmined/drivegate/internal/drive"
	"github.com/openmined/drivegate/internal/drive/drivetest"
)

func newDriveService(t *testing.T, fake *drivetest.Server) *drive.Service {
	t.Helper()
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: drivetest.AccessToken})
	svc, err := drive.New(context.Background(), ts, &drive.Config{Endpoint: fake.DriveEndpoint()})
	require.NoError(t, err)
	return svc
}

func TestListFiles(t *testing.T) {
	fake := drivetest.New(t)
	a := fake.AddFile("report.pdf", "application/pdf", []byte("%PDF"))
	fake.AddFolder("Photos")
	b := fake.AddFile("notes.txt", "text/plain", []byte("hi"))

	// owned by someone else
	fake.SetUser(drivetest.User{ID: "2", Name: "Other", Email: "other@example.com"})
	fake.AddFile("shared.txt", "text/plain", nil)
	fake.SetUser(drivetest.DefaultUser)

	var out bytes.Buffer
	require.NoError(t, ListFiles(context.Background(), newDriveService(t, fake), &out))
	assert.Equal(t, fmt.Sprintf("Files:\nreport.pdf (%s)\nnotes.txt (%s)\n", a, b), out.String())
}

func TestListFiles_Empty(t *testing.T) {
	fake := drivetest.New(t)

	var out bytes.Buffer
	require.NoError(t, ListFiles(context.Background(), newDriveService(t, fake), &out))
	assert.Equal(t, "Files:\nNo files found.\n", out.String())
}

func TestDownloadFile(t *testing.T) {
	fake := drivetest.New(t)
	id := fake.AddFile("data.bin", "application/octet-stream", bytes.Repeat([]byte{7}, 100_000))
	dir := t.TempDir()

	var out bytes.Buffer
	path, err := DownloadFile(context.Background(), newDriveService(t, fake), id, dir, &out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "data.bin"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 100_000)

	assert.Contains(t, out.String(), "Bytes Downloaded: 100000 (98 KiB)\n")
	assert.True(t, bytes.HasSuffix(out.Bytes(), []byte("Download complete.\n")))
}

func TestDownloadFile_Empty(t *testing.T) {
	fake := drivetest.New(t)
	id := fake.AddFile("empty.txt", "text/plain", nil)
	dir := t.TempDir()

	var out bytes.Buffer
	path, err := DownloadFile(context.Background(), newDriveService(t, fake), id, dir, &out)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, "Bytes Downloaded: 0 (0 B)\nDownload complete.\n", out.String())
}

func TestDownloadFile_Failed(t *testing.T) {
	fake := drivetest.New(t)
	id := fake.AddFile("a.txt", "text/plain", []byte("a"))
	fake.FailDownloads(true)
	dir := t.TempDir()

	var out bytes.Buffer
	_, err := DownloadFile(context.Background(), newDriveService(t, fake), id, dir, &out)
	assert.ErrorIs(t, err, ErrDownloadFailed)
	assert.Equal(t, "Download failed.\n", out.String())
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
}

func TestDownloadFile_UnknownID(t *testing.T) {
	fake := drivetest.New(t)

	var out bytes.Buffer
	_, err := DownloadFile(context.Background(), newDriveService(t, fake), "nope", t.TempDir(), &out)
	assert.True(t, drive.IsNotFound(err))
	assert.Equal(t, "Download failed.\n", out.String())
}

type mockDrive struct {
	mock.Mock
}

func (m *mockDrive) AboutEmail(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockDrive) ListOwnedFiles(ctx context.Context, email string) ([]drive.File, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]drive.File), args.Error(1)
}

func (m *mockDrive) GetFile(ctx context.Context, fileID string) (*drive.File, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drive.File), args.Error(1)
}

func (m *mockDrive) Download(ctx context.Context, req *drive.DownloadRequest, w io.Writer) (*drive.Transfer, error) {
	args := m.Called(ctx, req, w)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drive.Transfer), args.Error(1)
}

func TestListFiles_AboutError(t *testing.T) {
	d := &mockDrive{}
	d.On("AboutEmail", mock.Anything).Return("", errors.New("unauthorized"))

	var out bytes.Buffer
	assert.Error(t, ListFiles(context.Background(), d, &out))
	assert.Empty(t, out.String())
	d.AssertNotCalled(t, "ListOwnedFiles", mock.Anything, mock.Anything)
}

func TestDownloadFile_UnsafeName(t *testing.T) {
	d := &mockDrive{}
	d.On("GetFile", mock.Anything, "id-1").Return(&drive.File{ID: "id-1", Name: "../../etc/passwd"}, nil)
	d.On("Download", mock.Anything, mock.Anything, mock.Anything).Return(&drive.Transfer{Status: drive.TransferCompleted, Bytes: 1}, nil)

	dir := t.TempDir()
	path, err := DownloadFile(context.Background(), d, "id-1", dir, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "passwd"), path)
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, "a.txt", localName(&drive.File{ID: "1", Name: "a.txt"}))
	assert.Equal(t, "b.txt", localName(&drive.File{ID: "1", Name: `dir\b.txt`}))
	assert.Equal(t, "1", localName(&drive.File{ID: "1", Name: ""}))
	assert.Equal(t, "1", localName(&drive.File{ID: "1", Name: ".."}))
}

func TestConnect(t *testing.T) {
	fake := drivetest.New(t)
	fake.AddFile("mine.txt", "text/plain", []byte("x"))
	dir := t.TempDir()

	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(`{"installed":{"client_id":"cli","client_secret":"s","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`), 0o600))

	opts := &Options{
		CredentialsFile: creds,
		TokenFile:       filepath.Join(dir, "token.json"),
		Out:             io.Discard,
		AuthURL:         fake.AuthURL(),
		TokenURL:        fake.TokenURL(),
		DriveEndpoint:   fake.DriveEndpoint(),
		OpenBrowser: func(u string) error {
			resp, err := http.Get(u)
			if err != nil {
				return err
			}
			return resp.Body.Close()
		},
	}

	svc, err := Connect(context.Background(), opts)
	require.NoError(t, err)
	assert.FileExists(t, opts.TokenFile)

	var out bytes.Buffer
	require.NoError(t, ListFiles(context.Background(), svc, &out))
	assert.Contains(t, out.String(), "mine.txt")

	// second run reuses the cached token without a browser
	opts.OpenBrowser = func(string) error { return errors.New("browser should not open") }
	_, err = Connect(context.Background(), opts)
	require.NoError(t, err)
}

func TestConnect_MissingCredentials(t *testing.T) {
	_, err := Connect(context.Background(), &Options{
		CredentialsFile: filepath.Join(t.TempDir(), "missing.json"),
		TokenFile:       filepath.Join(t.TempDir(), "token.json"),
	})
	assert.Error(t, err)
}
