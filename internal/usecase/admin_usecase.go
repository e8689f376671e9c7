package usecase

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/qrave1/VanishRoom/internal/application/config"
	"github.com/qrave1/VanishRoom/internal/application/constant"
	"github.com/qrave1/VanishRoom/internal/domain/apperr"
)

const adminAudience = "vanishroom-admin"

// AdminUsecase - вход администратора и проверка его токенов
type AdminUsecase interface {
	Login(ctx context.Context, username, password string) (token string, expiresAt time.Time, err error)
	ParseToken(token string) (adminID string, err error)
}

type adminUsecase struct {
	jwtSecret []byte
	username  string
	hash      []byte
	tokenTTL  time.Duration
	limiter   RateLimiter
	now       func() time.Time
}

func NewAdminUsecase(jwtSecret string, cfg config.AdminConfig, limiter RateLimiter, now func() time.Time) AdminUsecase {
	if now == nil {
		now = time.Now
	}

	return &adminUsecase{
		jwtSecret: []byte(jwtSecret),
		username:  cfg.Username,
		hash:      []byte(cfg.PasswordHash),
		tokenTTL:  cfg.TokenTTL,
		limiter:   limiter,
		now:       now,
	}
}

func (uc *adminUsecase) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	if !uc.limiter.Allow(ctx, ActionAdmin, "login:"+username) {
		return "", time.Time{}, apperr.ErrRateLimited
	}

	if len(uc.hash) == 0 {
		return "", time.Time{}, fmt.Errorf("admin login disabled: %w", apperr.ErrForbidden)
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(uc.username)) == 1
	passErr := bcrypt.CompareHashAndPassword(uc.hash, []byte(password))

	if !userOK || passErr != nil {
		log.Warn().Str(constant.AdminID, username).Msg("admin login rejected")
		return "", time.Time{}, apperr.ErrForbidden
	}

	now := uc.now()
	expiresAt := now.Add(uc.tokenTTL)

	claims := &jwt.RegisteredClaims{
		Subject:   uc.username,
		Audience:  jwt.ClaimStrings{adminAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(uc.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin token: %w", err)
	}

	return token, expiresAt, nil
}

func (uc *adminUsecase) ParseToken(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(
		raw,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			return uc.jwtSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(adminAudience),
		jwt.WithTimeFunc(uc.now),
	)
	if err != nil {
		return "", fmt.Errorf("parse admin token: %w: %w", apperr.ErrForbidden, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", apperr.ErrForbidden
	}

	return claims.Subject, nil
}
