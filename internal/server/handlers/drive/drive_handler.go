package drive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/openmined/drivegate/internal/drive"
	"github.com/openmined/drivegate/internal/server/handlers/api"
	"github.com/openmined/drivegate/internal/server/session"
	"github.com/openmined/drivegate/internal/server/transferlog"
)

const msgFileIDRequired = "fileId is required"

type DriveHandler struct {
	newClient ClientFactory
	config    *drive.Config
	spoolDir  string
	transfers *transferlog.Logger
}

func New(newClient ClientFactory, config *drive.Config, spoolDir string, transfers *transferlog.Logger) *DriveHandler {
	return &DriveHandler{
		newClient: newClient,
		config:    config,
		spoolDir:  spoolDir,
		transfers: transfers,
	}
}

// Files lists the caller's non-folder files as key/value pairs of id and name.
//
//	@Summary		List files
//	@Description	List the caller's Drive files, folders excluded
//	@Tags			drive
//	@Produce		json
//	@Success		200	{array}		FileEntry
//	@Failure		401	{object}	api.APIError
//	@Failure		500	{object}	api.APIError
//	@Router			/api/Drive/User/Files [get]
func (h *DriveHandler) Files(ctx *gin.Context) {
	client, err := h.newClient(ctx)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	files, err := client.ListFiles(ctx.Request.Context())
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeDriveListFailed, err)
		h.record(ctx, transferlog.Entry{Op: transferlog.OpList, Status: drive.TransferFailed.String()})
		return
	}

	entries := make([]FileEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, FileEntry{Key: f.ID, Value: f.Name})
	}

	ctx.JSON(http.StatusOK, entries)
	h.record(ctx, transferlog.Entry{Op: transferlog.OpList, Status: drive.TransferCompleted.String()})
}

// Transfers returns the caller's most recent transfer log entries, oldest first.
//
//	@Summary		Recent transfers
//	@Tags			drive
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum entries (1-1000, default 50)"
//	@Success		200		{array}		transferlog.Entry
//	@Failure		400		{object}	api.APIError
//	@Failure		401		{object}	api.APIError
//	@Failure		500		{object}	api.APIError
//	@Router			/api/Drive/User/Transfers [get]
func (h *DriveHandler) Transfers(ctx *gin.Context) {
	var req TransfersRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = DefaultTransfersLimit
	}

	sess, ok := session.FromContext(ctx)
	if !ok {
		api.AbortWithError(ctx, http.StatusUnauthorized, api.CodeAuthInvalidSession, session.ErrInvalidSession)
		return
	}

	entries, err := h.transfers.UserEntries(sess.Subject, req.Limit)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, fmt.Errorf("read transfer log: %w", err))
		return
	}

	ctx.JSON(http.StatusOK, entries)
}

// GetFile streams a file back as an attachment. The content is spooled to a
// temp file first so a failed download never sends a partial 200.
//
//	@Summary		Download file
//	@Tags			drive
//	@Produce		octet-stream
//	@Param			fileId	query		string	true	"Drive file id"
//	@Success		200		{file}		binary
//	@Failure		400		{string}	string
//	@Failure		401		{object}	api.APIError
//	@Failure		404		{string}	string
//	@Router			/api/Drive/User/File [get]
func (h *DriveHandler) GetFile(ctx *gin.Context) {
	var req FileRequest
	if err := ctx.ShouldBindQuery(&req); err != nil || req.FileID == "" {
		api.AbortWithMessage(ctx, http.StatusBadRequest, msgFileIDRequired, err)
		return
	}

	client, err := h.newClient(ctx)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	meta, ok := h.resolveFile(ctx, client, req.FileID, transferlog.OpDownload)
	if !ok {
		return
	}

	spool, err := os.CreateTemp(h.spoolDir, "download-*")
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, fmt.Errorf("create spool file: %w", err))
		return
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	transfer, err := client.Download(ctx.Request.Context(), &drive.DownloadRequest{
		FileID:   meta.ID,
		Progress: progressLogger("download", meta.ID),
	}, spool)
	if err != nil {
		h.abortTransfer(ctx, err, "Download failed", transferlog.Entry{Op: transferlog.OpDownload, FileID: meta.ID, FileName: meta.Name})
		return
	}

	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, fmt.Errorf("rewind spool file: %w", err))
		return
	}

	ctx.DataFromReader(http.StatusOK, transfer.Bytes, h.config.DownloadType(meta), spool, map[string]string{
		"Content-Disposition": attachment(meta.Name),
	})
	h.record(ctx, transferlog.Entry{
		Op:       transferlog.OpDownload,
		FileID:   meta.ID,
		FileName: meta.Name,
		Status:   transfer.Status.String(),
		Bytes:    transfer.Bytes,
	})
}

// CreateFile uploads the first multipart section as a new file and returns its id.
//
//	@Summary		Upload file
//	@Tags			drive
//	@Accept			mpfd
//	@Produce		plain
//	@Param			file	formData	file	true	"File content, first section only"
//	@Success		200		{string}	string	"New file id"
//	@Failure		400		{string}	string
//	@Failure		401		{object}	api.APIError
//	@Failure		413		{string}	string
//	@Router			/api/Drive/User/File [post]
func (h *DriveHandler) CreateFile(ctx *gin.Context) {
	sec, err := openSection(ctx.Request)
	if err != nil {
		abortEnvelope(ctx, err)
		return
	}
	if sec.FileName == "" {
		abortEnvelope(ctx, errNoFilename)
		return
	}

	client, err := h.newClient(ctx)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	res, err := client.Create(ctx.Request.Context(), &drive.UploadRequest{
		Name:        sec.FileName,
		ContentType: sec.ContentType,
		Body:        sec.Body,
		Progress:    progressLogger("upload", sec.FileName),
	})
	if err != nil {
		h.abortTransfer(ctx, err, "Upload failed", transferlog.Entry{Op: transferlog.OpCreate, FileName: sec.FileName})
		return
	}

	ctx.String(http.StatusOK, res.File.ID)
	h.record(ctx, transferlog.Entry{
		Op:       transferlog.OpCreate,
		FileID:   res.File.ID,
		FileName: res.File.Name,
		Status:   res.Transfer.Status.String(),
		Bytes:    res.Transfer.Bytes,
	})
}

// UpdateFile overwrites the content of an existing file with the first
// multipart section. The file keeps its name.
//
//	@Summary		Overwrite file
//	@Tags			drive
//	@Accept			mpfd
//	@Produce		plain
//	@Param			fileId	query		string	true	"Drive file id"
//	@Param			file	formData	file	true	"File content, first section only"
//	@Success		200		{string}	string	"File id"
//	@Failure		400		{string}	string
//	@Failure		401		{object}	api.APIError
//	@Failure		404		{string}	string
//	@Failure		413		{string}	string
//	@Router			/api/Drive/User/File [put]
func (h *DriveHandler) UpdateFile(ctx *gin.Context) {
	var req FileRequest
	if err := ctx.ShouldBindQuery(&req); err != nil || req.FileID == "" {
		api.AbortWithMessage(ctx, http.StatusBadRequest, msgFileIDRequired, err)
		return
	}

	sec, err := openSection(ctx.Request)
	if err != nil {
		abortEnvelope(ctx, err)
		return
	}

	client, err := h.newClient(ctx)
	if err != nil {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	meta, ok := h.resolveFile(ctx, client, req.FileID, transferlog.OpUpdate)
	if !ok {
		return
	}

	res, err := client.Update(ctx.Request.Context(), &drive.UploadRequest{
		FileID:      meta.ID,
		Name:        meta.Name,
		ContentType: sec.ContentType,
		Body:        sec.Body,
		Progress:    progressLogger("update", meta.ID),
	})
	if err != nil {
		h.abortTransfer(ctx, err, "Upload failed", transferlog.Entry{Op: transferlog.OpUpdate, FileID: meta.ID, FileName: meta.Name})
		return
	}

	ctx.String(http.StatusOK, res.File.ID)
	h.record(ctx, transferlog.Entry{
		Op:       transferlog.OpUpdate,
		FileID:   res.File.ID,
		FileName: meta.Name,
		Status:   res.Transfer.Status.String(),
		Bytes:    res.Transfer.Bytes,
	})
}

// resolveFile fetches metadata, answering 404 or 500 itself on failure.
func (h *DriveHandler) resolveFile(ctx *gin.Context, client DriveClient, fileID string, op transferlog.Op) (*drive.File, bool) {
	meta, err := client.GetFile(ctx.Request.Context(), fileID)
	switch {
	case drive.IsNotFound(err):
		api.AbortWithMessage(ctx, http.StatusNotFound, fmt.Sprintf("File with id %s not found", fileID), err)
		h.record(ctx, transferlog.Entry{Op: op, FileID: fileID, Status: drive.TransferNotStarted.String()})
		return nil, false
	case err != nil:
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return nil, false
	}
	return meta, true
}

func (h *DriveHandler) abortTransfer(ctx *gin.Context, err error, message string, entry transferlog.Entry) {
	transfer, ok := drive.FailedTransfer(err)
	if !ok {
		api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
		return
	}

	api.AbortWithMessage(ctx, http.StatusBadRequest, message, err)
	entry.Status = transfer.Status.String()
	entry.Bytes = transfer.Bytes
	h.record(ctx, entry)
}

func (h *DriveHandler) record(ctx *gin.Context, entry transferlog.Entry) {
	if sess, ok := session.FromContext(ctx); ok {
		entry.User = sess.Subject
	}
	h.transfers.Record(ctx, entry)
}

func abortEnvelope(ctx *gin.Context, err error) {
	var envErr *envelopeError
	if errors.As(err, &envErr) {
		api.AbortWithMessage(ctx, envErr.status, envErr.message, nil)
		return
	}
	api.AbortWithError(ctx, http.StatusInternalServerError, api.CodeInternalError, err)
}

func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

func progressLogger(op, target string) drive.ProgressFunc {
	return func(t drive.Transfer) {
		slog.Debug("drive transfer progress", "op", op, "target", target, "status", t.Status, "bytes", t.Bytes)
	}
}
