package server

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openmined/drivegate/internal/drive"
	"github.com/openmined/drivegate/internal/server/auth"
	"github.com/openmined/drivegate/internal/server/session"
	"github.com/openmined/drivegate/internal/utils"
)

const (
	DefaultAddr            = "127.0.0.1:8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodySize     = utils.ByteSize(3 << 30) // 3 GiB
	DefaultLogLevel        = "info"
)

var validate = validator.New()

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Auth     auth.Config    `mapstructure:"auth"`
	Session  session.Config `mapstructure:"session"`
	Drive    drive.Config   `mapstructure:"drive"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Download DownloadConfig `mapstructure:"download"`
	Log      LogConfig      `mapstructure:"log"`
	LogDir   string         `mapstructure:"log_dir" validate:"required"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	CertFile        string        `mapstructure:"cert_file" validate:"required_with=KeyFile"`
	KeyFile         string        `mapstructure:"key_file" validate:"required_with=CertFile"`
	StaticDir       string        `mapstructure:"static_dir"`
	DevMode         bool          `mapstructure:"dev_mode"`
	HSTS            bool          `mapstructure:"hsts"`
	CORSOrigins     []string      `mapstructure:"cors_origins" validate:"dive,url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

type UploadConfig struct {
	MaxBodySize utils.ByteSize `mapstructure:"max_body_size"`
}

type DownloadConfig struct {
	// SpoolDir holds in-flight downloads. Empty means the OS temp dir.
	SpoolDir string `mapstructure:"spool_dir"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Drive.Validate(); err != nil {
		return err
	}
	return nil
}

// ResolvePaths makes every configured path absolute.
func (c *Config) ResolvePaths() error {
	paths := []*string{&c.LogDir, &c.Download.SpoolDir, &c.HTTP.StaticDir, &c.HTTP.CertFile, &c.HTTP.KeyFile, &c.Auth.ClientSecretFile}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		resolved, err := utils.ResolvePath(*p)
		if err != nil {
			return fmt.Errorf("resolve path %q: %w", *p, err)
		}
		*p = resolved
	}
	return nil
}

func (c *Config) TransferLogDir() string {
	return filepath.Join(c.LogDir, "transfers")
}

func (c *Config) MaxBodySize() int64 {
	if c.Upload.MaxBodySize == 0 {
		return DefaultMaxBodySize.Int64()
	}
	return c.Upload.MaxBodySize.Int64()
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.HTTP.ShutdownTimeout == 0 {
		return DefaultShutdownTimeout
	}
	return c.HTTP.ShutdownTimeout
}

func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", c.HTTP.Addr),
		slog.Bool("tls", c.HTTP.CertFile != ""),
		slog.Bool("dev_mode", c.HTTP.DevMode),
		slog.String("redirect_url", c.Auth.RedirectURL),
		slog.String("client_id", c.Auth.ClientID),
		slog.String("client_secret", utils.MaskSecret(c.Auth.ClientSecret)),
		slog.String("session_secret", utils.MaskSecret(c.Session.Secret)),
		slog.Duration("session_ttl", c.Session.TTL),
		slog.Bool("plain_text_media", c.Drive.PlainTextMedia),
		slog.String("max_body_size", utils.ByteSize(c.MaxBodySize()).String()),
		slog.String("spool_dir", c.Download.SpoolDir),
		slog.String("log_dir", c.LogDir),
	)
}

func formatValidationError(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		e := errs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag", e.Namespace(), e.Tag())
	}
	return err
}
