package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openmined/drivegate/internal/server"
	"github.com/openmined/drivegate/internal/utils"
	"github.com/openmined/drivegate/internal/version"
)

const (
	envPrefix      = "DRIVEGATE"
	configFileName = "config"
)

var logLevel = new(slog.LevelVar)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "server",
		Short:   "DriveGate Server",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if err := setLogLevel(cfg.Log.Level); err != nil {
				return err
			}

			cmd.SilenceUsage = true
			slog.Info("DriveGate", "version", version.Short(), "config", cfg)

			s, err := server.New(cfg)
			if err != nil {
				return err
			}

			defer slog.Info("Bye!")
			return s.Start(cmd.Context())
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	cmd.Flags().StringP("cert", "c", "", "Path to the certificate file")
	cmd.Flags().StringP("key", "k", "", "Path to the key file")
	cmd.Flags().StringP("config", "f", "", "Path to the config file")

	return cmd
}

func main() {
	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	}))
	slog.SetDefault(logger)

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*server.Config, error) {
	// .env is optional
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("home dir: %w", err)
	}
	configDir := filepath.Join(home, ".drivegate")

	v := viper.New()
	setDefaults(v, configDir)

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(configDir)
		v.SetConfigName(configFileName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	v.BindPFlag("http.addr", cmd.Flags().Lookup("bind"))
	v.BindPFlag("http.cert_file", cmd.Flags().Lookup("cert"))
	v.BindPFlag("http.key_file", cmd.Flags().Lookup("key"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg server.Config
	err = v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		utils.ByteSizeHookFunc(),
	)))
	if err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}

	if err := cfg.ResolvePaths(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv values reach Unmarshal.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("http.addr", server.DefaultAddr)
	v.SetDefault("http.cert_file", "")
	v.SetDefault("http.key_file", "")
	v.SetDefault("http.static_dir", "")
	v.SetDefault("http.dev_mode", false)
	v.SetDefault("http.hsts", false)
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("http.shutdown_timeout", server.DefaultShutdownTimeout)

	v.SetDefault("auth.client_secret_file", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.redirect_url", "http://localhost:8080/signin-google")
	v.SetDefault("auth.state_expiry", 10*time.Minute)
	v.SetDefault("auth.post_login_path", "/")
	v.SetDefault("auth.auth_url", "")
	v.SetDefault("auth.token_url", "")
	v.SetDefault("auth.api_endpoint", "")

	v.SetDefault("session.cookie_name", "drivegate_session")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.secure", false)
	v.SetDefault("session.domain", "")
	v.SetDefault("session.max_sessions", 10000)

	v.SetDefault("drive.endpoint", "")
	v.SetDefault("drive.plain_text_media", false)
	v.SetDefault("drive.chunk_size", utils.ByteSize(0))

	v.SetDefault("upload.max_body_size", server.DefaultMaxBodySize.String())
	v.SetDefault("download.spool_dir", "")
	v.SetDefault("log.level", server.DefaultLogLevel)
	v.SetDefault("log_dir", filepath.Join(configDir, "logs"))
}

func setLogLevel(level string) error {
	if level == "" {
		return nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level %q: %w", level, err)
	}
	logLevel.Set(l)
	return nil
}
