package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/darkauth/darkauth/internal/logging"
	"github.com/darkauth/darkauth/internal/store"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Issue a single-use install token",
	Long: `Generate a single-use install token and persist its hash. The
cleartext token is printed once and must be presented to POST
/install/init and /install/complete to bootstrap the first admin,
the KEK parameters, the OPRF seed, and the AKE static keypair.`,
	RunE: runInstall,
}

func runInstall(_ *cobra.Command, _ []string) error {
	cfg := configFromEnv()
	logger := logging.New(cfg.Development)
	defer func() { _ = logger.Sync() }()

	if cfg.PostgresDSN == "" {
		return fmt.Errorf("install: DARKAUTH_POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("install: connect postgres: %w", err)
	}
	defer func() { _ = db.Close() }()

	if exists, err := db.AnyAdminExists(ctx); err != nil {
		return fmt.Errorf("install: check existing admins: %w", err)
	} else if exists {
		return fmt.Errorf("install: an admin principal already exists; the install ceremony only runs once")
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("install: generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(token))

	if err := db.CreateInstallToken(ctx, sum[:], time.Now()); err != nil {
		return fmt.Errorf("install: persist token: %w", err)
	}

	fmt.Println(token)
	logger.Infow("install token issued; present it to /install/init and /install/complete")
	return nil
}
