package drive

import (
	"context"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/openmined/drivegate/internal/drive"
)

// DriveClient is the slice of drive.Service the handlers use.
type DriveClient interface {
	ListFiles(ctx context.Context) ([]drive.File, error)
	GetFile(ctx context.Context, fileID string) (*drive.File, error)
	Download(ctx context.Context, req *drive.DownloadRequest, w io.Writer) (*drive.Transfer, error)
	Create(ctx context.Context, req *drive.UploadRequest) (*drive.UploadResult, error)
	Update(ctx context.Context, req *drive.UploadRequest) (*drive.UploadResult, error)
}

// ClientFactory builds a Drive client for the caller of one request.
type ClientFactory func(ctx *gin.Context) (DriveClient, error)

// FileEntry is one row of the file listing.
type FileEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

const DefaultTransfersLimit = 50

type TransfersRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// FileRequest addresses an existing file.
type FileRequest struct {
	FileID string `form:"fileId"`
}
