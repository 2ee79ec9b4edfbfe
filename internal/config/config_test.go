package config

import (
	"os"
	"path/filepath"
	"testing"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Store != "sqlite" || cfg.JWTAudience != "ring" || cfg.Production() || cfg.HasCredentials() {
		t.Fatalf("cfg %+v", cfg)
	}
}

func TestLoad_EnvAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RINGSIDE_HMAC_SECRET=from-dotenv\nRINGSIDE_ADDR=:9999\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("RINGSIDE_ADDR", ":7000")
	t.Setenv("RINGSIDE_STORE", "Memory")
	t.Setenv("RINGSIDE_ALLOWED_CALLERS", "oracle,admin")
	t.Setenv("DEPLOY_ENV", "production")
	// godotenv.Load sets variables it did not find; clear it when the test ends.
	t.Setenv("RINGSIDE_HMAC_SECRET", "")
	os.Unsetenv("RINGSIDE_HMAC_SECRET")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Fatalf("process env should win over .env, addr=%q", cfg.Addr)
	}
	if cfg.HMACSecret != "from-dotenv" || cfg.Store != "memory" || !cfg.Production() {
		t.Fatalf("cfg %+v", cfg)
	}
	if len(cfg.AllowedCallers) != 2 || cfg.AllowedCallers[1] != "admin" {
		t.Fatalf("callers %v", cfg.AllowedCallers)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		cfg  AppConfig
		ok   bool
	}{
		{"bad store", AppConfig{Store: "redis"}, false},
		{"jwt without issuer", AppConfig{Store: "sqlite", JWTPublicKey: "k"}, false},
		{"production without credentials", AppConfig{Store: "sqlite", DeployEnv: "staging"}, false},
		{"production with hmac", AppConfig{Store: "sqlite", DeployEnv: "production", HMACSecret: "s"}, true},
		{"dev open", AppConfig{Store: "memory", DeployEnv: "dev"}, true},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%s: err=%v", tc.name, err)
		}
	}
}
