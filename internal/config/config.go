// Package config loads process settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const prefix = "RINGSIDE"

type AppConfig struct {
	DeployEnv  string `envconfig:"DEPLOY_ENV" default:"dev"`
	Addr       string `envconfig:"ADDR" default:":8080"`
	DataDir    string `envconfig:"DATA_DIR" default:"./data"`
	Store      string `envconfig:"STORE" default:"sqlite"`
	TuningPath string `envconfig:"TUNING" default:"./configs/tuning.yaml"`

	HMACSecret     string   `envconfig:"HMAC_SECRET"`
	AllowedCallers []string `envconfig:"ALLOWED_CALLERS"`
	JWTPublicKey   string   `envconfig:"JWT_PUBLIC_KEY"`
	JWTIssuer      string   `envconfig:"JWT_ISSUER"`
	JWTAudience    string   `envconfig:"JWT_AUDIENCE" default:"ring"`
}

// Load reads RINGSIDE_* variables. DEPLOY_ENV is also read unprefixed.
func Load() (*AppConfig, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var cfg AppConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) Validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("%s_STORE must be sqlite or memory, got %q", prefix, c.Store)
	}
	if c.JWTPublicKey != "" && c.JWTIssuer == "" {
		return fmt.Errorf("%s_JWT_ISSUER is required with %s_JWT_PUBLIC_KEY", prefix, prefix)
	}
	if c.Production() && !c.HasCredentials() {
		return fmt.Errorf("DEPLOY_ENV=%s requires %s_HMAC_SECRET or %s_JWT_PUBLIC_KEY", c.DeployEnv, prefix, prefix)
	}
	return nil
}

func (c *AppConfig) Production() bool {
	switch strings.ToLower(strings.TrimSpace(c.DeployEnv)) {
	case "staging", "production":
		return true
	default:
		return false
	}
}

// HasCredentials reports whether any remote caller can authenticate.
func (c *AppConfig) HasCredentials() bool {
	return c.HMACSecret != "" || c.JWTPublicKey != ""
}
