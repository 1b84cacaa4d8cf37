// Package auth authenticates the single back-office administrator.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	pkgAuth "github.com/placaexpress/vehicle-report-backend/pkg/auth"
	"github.com/placaexpress/vehicle-report-backend/pkg/config"
	pkgerrors "github.com/placaexpress/vehicle-report-backend/pkg/errors"
	"github.com/placaexpress/vehicle-report-backend/pkg/logger"
	"github.com/placaexpress/vehicle-report-backend/pkg/security"
)

const invalidCredentialsMessage = "E-mail ou senha inválidos."

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
}

type ServiceParams struct {
	Admin  config.AdminConfig
	JWT    config.JWTConfig
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	email        string
	passwordHash string
	jwtCfg       config.JWTConfig
	logg         *logger.Logger
	now          func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if strings.TrimSpace(params.JWT.Secret) == "" {
		return nil, fmt.Errorf("jwt secret required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		email:        strings.ToLower(strings.TrimSpace(params.Admin.Email)),
		passwordHash: strings.TrimSpace(params.Admin.PasswordHash),
		jwtCfg:       params.JWT,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// Login checks the configured admin credentials. Unknown emails still pay
// for one Argon2id verification.
func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	hash := ""
	if s.email != "" && subtle.ConstantTimeCompare([]byte(email), []byte(s.email)) == 1 {
		hash = s.passwordHash
	}
	if !security.VerifyOrBurn(req.Password, hash) {
		if s.logg != nil {
			s.logg.Warn(ctx, "admin login rejected")
		}
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	token, expiresAt, err := pkgAuth.MintAdminToken(s.jwtCfg, s.now(), pkgAuth.AdminTokenPayload{Email: email})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if s.logg != nil {
		s.logg.Info(ctx, "admin login")
	}
	return &LoginResponse{AccessToken: token, ExpiresAt: expiresAt}, nil
}
