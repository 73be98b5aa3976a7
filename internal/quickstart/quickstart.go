package quickstart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/openmined/drivegate/internal/drive"
)

const UsageMessage = "App receive arguments: --files or --download [file id]"

var ErrDownloadFailed = errors.New("download failed")

// Drive is the part of drive.Service the console tool needs.
type Drive interface {
	AboutEmail(ctx context.Context) (string, error)
	ListOwnedFiles(ctx context.Context, email string) ([]drive.File, error)
	GetFile(ctx context.Context, fileID string) (*drive.File, error)
	Download(ctx context.Context, req *drive.DownloadRequest, w io.Writer) (*drive.Transfer, error)
}

// ListFiles prints the caller's own non-folder files, one `name (id)` per line.
func ListFiles(ctx context.Context, d Drive, out io.Writer) error {
	email, err := d.AboutEmail(ctx)
	if err != nil {
		return err
	}

	files, err := d.ListOwnedFiles(ctx, email)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Files:")
	if len(files) == 0 {
		fmt.Fprintln(out, "No files found.")
		return nil
	}
	for _, f := range files {
		fmt.Fprintf(out, "%s (%s)\n", f.Name, f.ID)
	}
	return nil
}

// DownloadFile saves a file into outDir under its Drive name and returns the
// written path. A failed transfer leaves no partial file behind.
func DownloadFile(ctx context.Context, d Drive, fileID, outDir string, out io.Writer) (string, error) {
	meta, err := d.GetFile(ctx, fileID)
	if err != nil {
		fmt.Fprintln(out, "Download failed.")
		return "", err
	}

	path := filepath.Join(outDir, localName(meta))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}

	transfer, err := d.Download(ctx, &drive.DownloadRequest{
		FileID: meta.ID,
		Progress: func(t drive.Transfer) {
			fmt.Fprintf(out, "Bytes Downloaded: %d (%s)\n", t.Bytes, humanize.IBytes(uint64(t.Bytes)))
		},
	}, f)
	closeErr := f.Close()

	if err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		fmt.Fprintln(out, "Download failed.")
		return "", fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	if transfer.Bytes == 0 {
		fmt.Fprintln(out, "Bytes Downloaded: 0 (0 B)")
	}
	fmt.Fprintln(out, "Download complete.")
	return path, nil
}

func localName(f *drive.File) string {
	name := filepath.Base(strings.ReplaceAll(f.Name, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return f.ID
	}
	return name
}
