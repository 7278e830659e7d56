package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mapLookup(env map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := defaultConfig()
	applyEnv(cfg, mapLookup(map[string]string{
		"API_PORT":                 "8080",
		"ADMIN_TOKEN":              "tok",
		"DATABASE_URL":             "postgres://u:p@db:5432/parfum?sslmode=disable",
		"REDIS_ADDR":               "redis:6379",
		"CACHE_TTL":                "30s",
		"CLOUDINARY_CLOUD_NAME":    "demo",
		"CLOUDINARY_UPLOAD_PRESET": "parfum_unsigned",
		"UPLOAD_TIMEOUT":           "5s",
		"LOG_FILE":                 "/tmp/parfum.log",
		"WEB_HOST":                 "",
	}))
	normalize(cfg)

	if cfg.Web.Port != 8080 {
		t.Fatalf("port %d", cfg.Web.Port)
	}
	if cfg.Web.Host != "0.0.0.0" {
		t.Fatalf("empty variable overrode host: %q", cfg.Web.Host)
	}
	if cfg.Database.Type != dialectPostgres || cfg.Database.Port != 5432 {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.TTL != 30*time.Second {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Upload.Timeout != 5*time.Second || cfg.Upload.Folder != "parfum" {
		t.Fatalf("unexpected upload config %+v", cfg.Upload)
	}
	if !cfg.Logger.FileEnable || cfg.Logger.Filename != "/tmp/parfum.log" {
		t.Fatalf("unexpected logger config %+v", cfg.Logger)
	}
	if cfg.Admin.Password != "tok" {
		t.Fatalf("password should fall back to the admin token, got %q", cfg.Admin.Password)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	cfg := defaultConfig()
	cfg.DevMode = true
	cfg.Database.Type = "MySQL"
	cfg.Web.BasePath = "api/"
	cfg.Admin.Token = "tok"
	cfg.Admin.Password = "pw"
	normalize(cfg)

	if cfg.Database.Type != "memory" {
		t.Fatalf("dev mode must use the memory store, got %q", cfg.Database.Type)
	}
	if cfg.Web.BasePath != "/api" {
		t.Fatalf("unexpected base path %q", cfg.Web.BasePath)
	}
	if cfg.Admin.Password != "pw" {
		t.Fatalf("explicit password replaced: %q", cfg.Admin.Password)
	}
	if err := cfg.validate(); err != nil {
		t.Fatalf("dev mode config should validate: %v", err)
	}
}

func TestValidateRequiresServicesOutsideDevMode(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*AppConfig)
	}{
		{"memory store", func(c *AppConfig) { c.Cloudinary.CloudName = "demo" }},
		{"no cloudinary", func(c *AppConfig) { c.Database.Type = dialectMySQL }},
		{"unknown database", func(c *AppConfig) { c.Database.Type = "sqlite"; c.Cloudinary.CloudName = "demo" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.setup(cfg)
			normalize(cfg)
			if err := cfg.validate(); err == nil {
				t.Fatalf("expected a validation error")
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parfum.yml")
	yml := "dev_mode: true\nweb:\n  port: 4000\n  base_path: /api\nupload:\n  folder: samples\n  timeout: 3s\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	for _, key := range []string{"DEV_MODE", "API_PORT", "WEB_BASE_PATH", "CLOUDINARY_FOLDER", "UPLOAD_TIMEOUT", "UPLOAD_MAX_BYTES"} {
		t.Setenv(key, "")
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.DevMode || cfg.Web.Port != 4000 || cfg.Web.BasePath != "/api" {
		t.Fatalf("unexpected web config %+v", cfg.Web)
	}
	if cfg.Upload.Folder != "samples" || cfg.Upload.Timeout != 3*time.Second {
		t.Fatalf("unexpected upload config %+v", cfg.Upload)
	}
	if cfg.Upload.MaxBytes != 25<<20 {
		t.Fatalf("defaults lost: %+v", cfg.Upload)
	}
}

func TestAuthPasswordFallback(t *testing.T) {
	cases := []struct {
		name         string
		env          map[string]string
		wantPassword string
	}{
		{"token only", map[string]string{"ADMIN_TOKEN": "tok"}, "tok"},
		{"explicit password", map[string]string{"ADMIN_TOKEN": "tok", "ADMIN_PASSWORD": "pw"}, "pw"},
		{"neither", map[string]string{}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			applyEnv(cfg, mapLookup(tc.env))
			normalize(cfg)
			if cfg.Admin.Password != tc.wantPassword {
				t.Fatalf("password %q, want %q", cfg.Admin.Password, tc.wantPassword)
			}
			if got := NewCredentialVerifier(cfg.Admin.Password).Configured(); got != (tc.wantPassword != "") {
				t.Fatalf("password gate configured = %v", got)
			}
		})
	}
}

// chdir switches the working directory for the rest of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadEnvReportsMissingFile(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	chdir(t, t.TempDir())
	if err := LoadEnv(); err == nil {
		t.Fatalf("expected an error for a missing .env.local")
	}
}

func TestLoadEnvReadsLocalFile(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env.local"), []byte("PARFUM_TEST_FOLDER=samples\n"), 0o600); err != nil {
		t.Fatalf("write .env.local: %v", err)
	}
	chdir(t, dir)
	t.Setenv("PARFUM_TEST_FOLDER", "")
	_ = os.Unsetenv("PARFUM_TEST_FOLDER")

	if err := LoadEnv(); err != nil {
		t.Fatalf("load env: %v", err)
	}
	if got := os.Getenv("PARFUM_TEST_FOLDER"); got != "samples" {
		t.Fatalf("variable not loaded, got %q", got)
	}
}

func TestLoadEnvSkipsOutsideLocal(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	chdir(t, t.TempDir())
	if err := LoadEnv(); err != nil {
		t.Fatalf("load env: %v", err)
	}
}
