// Package service holds the PQRS dialogue, notification and admin logic.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var authTracer = otel.Tracer("service/auth")

const (
	maxFailedAttempts = 5
	lockDuration      = 15 * time.Minute
	bcryptCost        = 12

	adminSubject   = "admin"
	adminTokenType = "admin"
	tokenIssuer    = "pqrs-intake-bot"
)

// AuthService issues and validates admin bearer tokens. There is a single
// admin identity whose bcrypt hash comes from configuration.
type AuthService struct {
	passwordHash []byte
	jwtSecret    []byte
	tokenTTL     time.Duration
	logger       *zap.Logger
	now          func() time.Time

	mu          sync.Mutex
	failed      int
	lockedUntil time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(passwordHash, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		passwordHash: []byte(strings.TrimSpace(passwordHash)),
		jwtSecret:    []byte(jwtSecret),
		tokenTTL:     tokenTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// WithClock replaces the time source (tests).
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Configured reports whether admin login is possible.
func (s *AuthService) Configured() bool {
	return len(s.passwordHash) > 0 && len(s.jwtSecret) > 0
}

// ============================================================
// IssueToken: POST /v1/auth/token
// ============================================================

func (s *AuthService) IssueToken(ctx context.Context, req *domain.TokenRequest) (*domain.TokenResponse, error) {
	_, span := authTracer.Start(ctx, "AuthService.IssueToken")
	defer span.End()

	if !s.Configured() {
		return nil, &domain.ErrNotConfigured{Service: "admin auth"}
	}
	if req.Password == "" {
		return nil, &domain.ErrValidation{Field: "password", Message: "password is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.lockedUntil.After(now) {
		remaining := s.lockedUntil.Sub(now).Minutes()
		s.logger.Warn("auth: admin login while locked", zap.Float64("remaining_minutes", remaining))
		return nil, &domain.ErrUnauthorized{
			Message: fmt.Sprintf("Acceso bloqueado. Intenta de nuevo en %.0f minutos", remaining),
		}
	}

	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(req.Password)); err != nil {
		s.failed++
		if s.failed >= maxFailedAttempts {
			s.lockedUntil = now.Add(lockDuration)
			s.failed = 0
			s.logger.Warn("auth: admin locked after max attempts",
				zap.Int("attempts", maxFailedAttempts),
				zap.Duration("lock_duration", lockDuration),
			)
			return nil, &domain.ErrUnauthorized{
				Message: fmt.Sprintf("Acceso bloqueado por %d minutos tras %d intentos", int(lockDuration.Minutes()), maxFailedAttempts),
			}
		}
		s.logger.Warn("auth: failed admin password attempt",
			zap.Int("attempts", s.failed),
			zap.Int("max", maxFailedAttempts),
		)
		return nil, &domain.ErrUnauthorized{Message: "Credenciales inválidas"}
	}
	s.failed = 0

	token, err := s.signToken(now)
	if err != nil {
		return nil, fmt.Errorf("sign admin token: %w", err)
	}

	s.logger.Info("admin token issued")
	return &domain.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
	}, nil
}

// ============================================================
// ValidateToken: used by middleware
// ============================================================

// JWTClaims represents the custom claims in admin tokens.
type JWTClaims struct {
	Sub  string `json:"sub"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateToken(tokenString string) (*JWTClaims, error) {
	if len(s.jwtSecret) == 0 {
		return nil, &domain.ErrNotConfigured{Service: "admin auth"}
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido o expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	if claims.Type != adminTokenType {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash to store in ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", &domain.ErrValidation{Field: "password", Message: "password is required"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) signToken(now time.Time) (string, error) {
	claims := JWTClaims{
		Sub:  adminSubject,
		Type: adminTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
