package helpers

import (
	"testing"
	"time"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("access", "refresh", time.Hour, 24*time.Hour)

	access, exp, err := m.GenerateAccessToken("user-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Error("access expiry must be in the future")
	}
	claims, err := m.ParseAccessToken(access)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID: expected user-1, got %s", claims.UserID)
	}

	refresh, _, err := m.GenerateRefreshToken("user-1")
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if _, err := m.ParseRefreshToken(refresh); err != nil {
		t.Errorf("ParseRefreshToken: %v", err)
	}
}

func TestJWTSecretsAreNotInterchangeable(t *testing.T) {
	m := NewJWTManager("access", "refresh", time.Hour, 24*time.Hour)

	access, _, err := m.GenerateAccessToken("user-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if _, err := m.ParseRefreshToken(access); err == nil {
		t.Error("access token must not validate as a refresh token")
	}
}

func TestJWTExpiredToken(t *testing.T) {
	m := NewJWTManager("access", "refresh", -time.Minute, 24*time.Hour)

	access, _, err := m.GenerateAccessToken("user-1")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if _, err := m.ParseAccessToken(access); err == nil {
		t.Error("expired token must be rejected")
	}
}
