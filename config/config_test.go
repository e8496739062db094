package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.AppName != "user-service" {
		t.Errorf("AppName: expected user-service, got %s", cfg.AppName)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port: expected 8080, got %s", cfg.Port)
	}
	if cfg.AccessTTL != time.Hour {
		t.Errorf("AccessTTL: expected 1h, got %v", cfg.AccessTTL)
	}
	if cfg.EventQueue != "user.events.worker" {
		t.Errorf("EventQueue: expected user.events.worker, got %s", cfg.EventQueue)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_MAX_CONNS", "25")
	t.Setenv("JWT_ACCESS_TTL", "15m")
	t.Setenv("HTTP_LOG_ENABLED", "true")

	cfg := Load()

	if cfg.DBHost != "db.internal" || cfg.DBPort != "5433" {
		t.Errorf("DB endpoint: got %s:%s", cfg.DBHost, cfg.DBPort)
	}
	if cfg.DBMaxConns != 25 {
		t.Errorf("DBMaxConns: expected 25, got %d", cfg.DBMaxConns)
	}
	if cfg.AccessTTL != 15*time.Minute {
		t.Errorf("AccessTTL: expected 15m, got %v", cfg.AccessTTL)
	}
	if !cfg.HTTPLogEnabled {
		t.Error("HTTPLogEnabled: expected true")
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("JWT_ACCESS_TTL", "soon")
	t.Setenv("MAIL_SEND_ENABLED", "maybe")

	cfg := Load()

	if cfg.DBMaxConns != 10 {
		t.Errorf("DBMaxConns: expected default 10, got %d", cfg.DBMaxConns)
	}
	if cfg.AccessTTL != time.Hour {
		t.Errorf("AccessTTL: expected default 1h, got %v", cfg.AccessTTL)
	}
	if cfg.MailSendEnabled {
		t.Error("MailSendEnabled: expected default false")
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{
		DBUser: "app", DBPassword: "pw", DBHost: "db", DBPort: "5432",
		DBName: "userevents", DBSSLMode: "require",
	}
	want := "postgres://app:pw@db:5432/userevents?sslmode=require"
	if got := cfg.PostgresDSN(); got != want {
		t.Errorf("PostgresDSN: expected %s, got %s", want, got)
	}
}

func TestCSVHelpers(t *testing.T) {
	cfg := &Config{
		CORSAllowedOrigins: "https://a.example, https://b.example ,",
		ElasticsearchAddrs: "http://es1:9200,http://es2:9200",
	}
	if got, want := cfg.CORSOrigins(), []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(got, want) {
		t.Errorf("CORSOrigins: expected %v, got %v", want, got)
	}
	if got, want := cfg.ESAddrs(), []string{"http://es1:9200", "http://es2:9200"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ESAddrs: expected %v, got %v", want, got)
	}
}
