package drive

import (
	"fmt"
	"net/url"

	"github.com/openmined/drivegate/internal/utils"
)

const DefaultChunkSize = 8 << 20 // 8 MiB

type Config struct {
	// Endpoint overrides the Drive API base URL (tests, emulators).
	Endpoint string `mapstructure:"endpoint"`

	// PlainTextMedia tags every upload and download as text/plain.
	PlainTextMedia bool `mapstructure:"plain_text_media"`

	// ChunkSize is the upload buffer; bodies larger than this go through a resumable session.
	ChunkSize utils.ByteSize `mapstructure:"chunk_size"`
}

func (c *Config) Validate() error {
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("drive `endpoint` must be an absolute url, got %q", c.Endpoint)
		}
	}
	if c.ChunkSize != 0 && c.ChunkSize < 256<<10 {
		return fmt.Errorf("drive `chunk_size` must be at least 256KiB, got %s", c.ChunkSize)
	}
	return nil
}

// UploadType is the media type sent to Drive for an uploaded section.
func (c *Config) UploadType(name, declared string) string {
	if c.PlainTextMedia {
		return utils.PlainTextType
	}
	return utils.DetectContentType(name, declared)
}

// DownloadType is the Content-Type served for a downloaded file.
func (c *Config) DownloadType(f *File) string {
	if c.PlainTextMedia || f == nil || f.MimeType == "" {
		return utils.PlainTextType
	}
	return f.MimeType
}

func (c *Config) chunkSize() int {
	if c.ChunkSize == 0 {
		return DefaultChunkSize
	}
	return int(c.ChunkSize)
}
