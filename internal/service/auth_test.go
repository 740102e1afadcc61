package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/pqrs-intake-bot/internal/domain"
	"github.com/boddenberg/pqrs-intake-bot/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "test-secret"

func newAuthService(t *testing.T, password string) *service.AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return service.NewAuthService(string(hash), testJWTSecret, time.Hour, zap.NewNop())
}

func TestIssueToken_RoundTrip(t *testing.T) {
	svc := newAuthService(t, "s3creta")

	resp, err := svc.IssueToken(context.Background(), &domain.TokenRequest{Password: "s3creta"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.TokenType != "Bearer" || resp.ExpiresIn != 3600 {
		t.Errorf("unexpected response %+v", resp)
	}

	claims, err := svc.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Sub != "admin" || claims.Type != "admin" || claims.ID == "" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestIssueToken_WrongPassword(t *testing.T) {
	svc := newAuthService(t, "s3creta")

	_, err := svc.IssueToken(context.Background(), &domain.TokenRequest{Password: "nope"})
	var ue *domain.ErrUnauthorized
	if !errors.As(err, &ue) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestIssueToken_LocksAfterRepeatedFailures(t *testing.T) {
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	svc := newAuthService(t, "s3creta").WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = svc.IssueToken(ctx, &domain.TokenRequest{Password: "nope"})
	}
	if _, err := svc.IssueToken(ctx, &domain.TokenRequest{Password: "s3creta"}); err == nil {
		t.Fatal("expected lockout to reject even the right password")
	}

	now = now.Add(16 * time.Minute)
	if _, err := svc.IssueToken(ctx, &domain.TokenRequest{Password: "s3creta"}); err != nil {
		t.Fatalf("expected login after lock expiry, got %v", err)
	}
}

func TestIssueToken_NotConfigured(t *testing.T) {
	svc := service.NewAuthService("", "", time.Hour, zap.NewNop())

	_, err := svc.IssueToken(context.Background(), &domain.TokenRequest{Password: "x"})
	var nc *domain.ErrNotConfigured
	if !errors.As(err, &nc) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestIssueToken_EmptyPassword(t *testing.T) {
	svc := newAuthService(t, "s3creta")

	_, err := svc.IssueToken(context.Background(), &domain.TokenRequest{})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	svc := newAuthService(t, "s3creta")
	now := time.Now()

	sign := func(method jwt.SigningMethod, key any, claims service.JWTClaims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	valid := jwt.RegisteredClaims{
		Issuer:    "pqrs-intake-bot",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	tests := map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("other"), service.JWTClaims{Sub: "admin", Type: "admin", RegisteredClaims: valid}),
		"wrong type":   sign(jwt.SigningMethodHS256, []byte(testJWTSecret), service.JWTClaims{Sub: "admin", Type: "access", RegisteredClaims: valid}),
		"expired":      sign(jwt.SigningMethodHS256, []byte(testJWTSecret), service.JWTClaims{Sub: "admin", Type: "admin", RegisteredClaims: expired}),
		"none alg":     sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, service.JWTClaims{Sub: "admin", Type: "admin", RegisteredClaims: valid}),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			var ue *domain.ErrUnauthorized
			if !errors.As(err, &ue) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := service.HashPassword("s3creta")
	if err != nil {
		t.Fatal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3creta")) != nil {
		t.Error("hash does not match password")
	}
	if _, err := service.HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}
