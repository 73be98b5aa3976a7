package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/openmined/drivegate/internal/drive"
	"github.com/openmined/drivegate/internal/server/auth"
	"github.com/openmined/drivegate/internal/server/session"
	"github.com/openmined/drivegate/internal/server/transferlog"
	"github.com/openmined/drivegate/internal/utils"
)

type Services struct {
	Sessions  *session.Store
	Auth      *auth.AuthService
	Transfers *transferlog.Logger

	driveConfig *drive.Config
}

func NewServices(config *Config) (*Services, error) {
	if config.Download.SpoolDir != "" {
		if err := utils.EnsureDir(config.Download.SpoolDir, 0o700); err != nil {
			return nil, fmt.Errorf("create spool dir: %w", err)
		}
	}

	sessions := session.NewStore(&config.Session)

	authSvc, err := auth.NewAuthService(&config.Auth, sessions)
	if err != nil {
		return nil, fmt.Errorf("create auth service: %w", err)
	}

	transfers, err := transferlog.New(config.TransferLogDir(), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("create transfer logger: %w", err)
	}

	return &Services{
		Sessions:    sessions,
		Auth:        authSvc,
		Transfers:   transfers,
		driveConfig: &config.Drive,
	}, nil
}

// DriveService builds a Drive client bound to the credential of the request's
// session. Clients are never shared between requests.
func (s *Services) DriveService(ctx *gin.Context) (*drive.Service, error) {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return nil, session.ErrInvalidSession
	}

	reqCtx := ctx.Request.Context()
	return drive.New(reqCtx, s.Auth.TokenSource(reqCtx, sess), s.driveConfig)
}

func (s *Services) Shutdown(ctx context.Context) error {
	if err := s.Transfers.Close(); err != nil {
		return fmt.Errorf("close transfer logger: %w", err)
	}
	return nil
}
