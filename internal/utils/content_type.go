package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	PlainTextType   = "text/plain"
	OctetStreamType = "application/octet-stream"
)

// DetectContentType picks a media type for an uploaded file. A usable
// declared type wins, then the name's extension, then text/plain.
func DetectContentType(name, declared string) string {
	if declared = strings.TrimSpace(declared); declared != "" && declared != OctetStreamType {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
			return mediaType
		}
	}

	if isTextLike(name) {
		return PlainTextType
	}
	if mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); mimeType != "" {
		if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
			return mediaType
		}
	}
	return PlainTextType
}

func isTextLike(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".log", ".md", ".yaml", ".yml", ".toml", ".ini":
		return true
	}
	return false
}
