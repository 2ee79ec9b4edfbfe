package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"marketmelee.ai/internal/auth"
	"marketmelee.ai/internal/config"
	"marketmelee.ai/internal/persistence/boxerdb"
	"marketmelee.ai/internal/persistence/store"
	"marketmelee.ai/internal/sim/tuning"
)

func openBackend(kind, dataDir string, tune tuning.Tuning) (store.Backend, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite", "":
		db, err := boxerdb.OpenSQLite(filepath.Join(dataDir, "ring.sqlite"))
		if err != nil {
			return nil, err
		}
		if err := db.RecordTuning(context.Background(), tune); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("record tuning: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// buildAuthenticator accepts signed requests and bearer tokens when
// configured. With neither, only loopback callers may mutate.
func buildAuthenticator(cfg *config.AppConfig) (auth.Authenticator, error) {
	var chain auth.Chain
	if cfg.HMACSecret != "" {
		chain = append(chain, auth.NewHMAC([]byte(cfg.HMACSecret), cfg.AllowedCallers))
	}
	if cfg.JWTPublicKey != "" {
		key, err := auth.ParsePublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		v, err := auth.NewJWT(auth.JWTConfig{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Key:      key,
			Callers:  cfg.AllowedCallers,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	if len(chain) == 0 {
		chain = append(chain, auth.Loopback{})
	}
	return chain, nil
}
