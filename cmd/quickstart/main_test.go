package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/openmined/drivegate/internal/drive"
	"github.com/openmined/drivegate/internal/drive/drivetest"
	"github.com/openmined/drivegate/internal/quickstart"
)

func useFake(t *testing.T, fake *drivetest.Server) *quickstart.Options {
	t.Helper()

	var got quickstart.Options
	orig := connect
	connect = func(ctx context.Context, opts *quickstart.Options) (quickstart.Drive, error) {
		got = *opts
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: drivetest.AccessToken})
		return drive.New(ctx, ts, &drive.Config{Endpoint: fake.DriveEndpoint()})
	}
	t.Cleanup(func() { connect = orig })
	return &got
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestUsage(t *testing.T) {
	orig := connect
	connect = func(context.Context, *quickstart.Options) (quickstart.Drive, error) {
		return nil, errors.New("should not connect")
	}
	t.Cleanup(func() { connect = orig })

	for _, args := range [][]string{
		nil,
		{"--files", "--download", "abc"},
		{"files"},
	} {
		out, err := execute(t, args...)
		require.NoError(t, err, args)
		assert.Equal(t, quickstart.UsageMessage+"\n", out, args)
	}
}

func TestFiles(t *testing.T) {
	fake := drivetest.New(t)
	id := fake.AddFile("budget.xlsx", "application/vnd.ms-excel", []byte("x"))
	got := useFake(t, fake)

	out, err := execute(t, "--files", "--credentials", "creds.json")
	require.NoError(t, err)
	assert.Equal(t, "Files:\nbudget.xlsx ("+id+")\n", out)
	assert.Equal(t, "creds.json", got.CredentialsFile)
	assert.Equal(t, "token.json", got.TokenFile)
}

func TestDownload(t *testing.T) {
	fake := drivetest.New(t)
	id := fake.AddFile("hello.txt", "text/plain", []byte("hello"))
	useFake(t, fake)
	dir := t.TempDir()

	out, err := execute(t, "--download", id, "--out", dir)
	require.NoError(t, err)
	assert.Equal(t, "Bytes Downloaded: 5 (5 B)\nDownload complete.\n", out)

	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestDownload_Failed(t *testing.T) {
	fake := drivetest.New(t)
	id := fake.AddFile("hello.txt", "text/plain", []byte("hello"))
	fake.FailDownloads(true)
	useFake(t, fake)

	out, err := execute(t, "--download", id, "--out", t.TempDir())
	assert.ErrorIs(t, err, quickstart.ErrDownloadFailed)
	assert.Contains(t, out, "Download failed.\n")
}
