package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/darkauth/darkauth/internal/ake"
	"github.com/darkauth/darkauth/internal/audit"
	"github.com/darkauth/darkauth/internal/config"
	"github.com/darkauth/darkauth/internal/crypto/kek"
	"github.com/darkauth/darkauth/internal/httpapi"
	"github.com/darkauth/darkauth/internal/logging"
	"github.com/darkauth/darkauth/internal/metrics"
	"github.com/darkauth/darkauth/internal/oidc"
	"github.com/darkauth/darkauth/internal/rbac"
	"github.com/darkauth/darkauth/internal/session"
	"github.com/darkauth/darkauth/internal/store"
	"github.com/darkauth/darkauth/internal/totp"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP listener",
	Long: `Start the HTTP listener: /authorize, /token, /.well-known/*, the
opaque register/login endpoints for both cohorts, and /install/* until the
bootstrap ceremony has completed.`,
	RunE: runServe,
}

// buildEngines unlocks the KEK from persisted KekParams and the
// passphrase named by cfg.KekPassphraseEnvVar, then constructs the two
// per-cohort AKE engines and the OIDC signer from the unwrapped material.
// Returns ok=false (no error) if the process hasn't been installed yet —
// serve still starts so /install/init and /install/complete can run.
func buildEngines(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *store.DB, rdb *redis.Client) (userAke, adminAke *ake.Engine, signer *oidc.Signer, kekStore *kek.Store, ok bool, err error) {
	params, err := db.KekParams(ctx)
	if err != nil {
		logger.Warnw("kek params not yet persisted; install has not run", "error", err)
		return nil, nil, nil, nil, false, nil
	}
	passphrase := os.Getenv(cfg.KekPassphraseEnvVar)
	if passphrase == "" {
		return nil, nil, nil, nil, false, fmt.Errorf("serve: %s is unset but the process has been installed", cfg.KekPassphraseEnvVar)
	}
	kekStore, err = kek.Unlock(passphrase, kek.Params{Salt: params.Salt, TimeCost: params.TimeCost, MemoryKiB: params.MemoryKiB, Threads: params.Threads})
	if err != nil {
		return nil, nil, nil, nil, false, fmt.Errorf("serve: unlock kek: %w", err)
	}

	seedRow, err := db.OprfSeed(ctx)
	if err != nil {
		return nil, nil, nil, nil, false, fmt.Errorf("serve: load oprf seed: %w", err)
	}
	rawSeed, err := kekStore.UnwrapOprfSeed(&kek.OprfSeed{Wrapped: seedRow.Wrapped})
	if err != nil {
		return nil, nil, nil, nil, false, fmt.Errorf("serve: unwrap oprf seed: %w", err)
	}

	akeKeyRow, err := db.AkeServerKey(ctx)
	if err != nil {
		return nil, nil, nil, nil, false, fmt.Errorf("serve: load ake server key: %w", err)
	}
	rawAkePriv, err := kekStore.UnwrapAkeServerKey(&kek.AkeServerKey{WrappedPrivateKey: akeKeyRow.WrappedPrivateKey, PublicKey: akeKeyRow.PublicKey})
	if err != nil {
		return nil, nil, nil, nil, false, fmt.Errorf("serve: unwrap ake server key: %w", err)
	}

	userAke, err = ake.NewEngine(rawSeed, rawAkePriv, ake.NewRedisLoginSessionStore(rdb))
	if err != nil {
		return nil, nil, nil, nil, false, err
	}
	adminAke, err = ake.NewEngine(rawSeed, rawAkePriv, ake.NewRedisLoginSessionStore(rdb))
	if err != nil {
		return nil, nil, nil, nil, false, err
	}

	signer = oidc.NewSigner(db, kekStore)
	return userAke, adminAke, signer, kekStore, true, nil
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := configFromEnv()
	logger := logging.New(cfg.Development)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(logger); err != nil {
		return err
	}

	ctx := context.Background()
	db, err := store.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("serve: connect postgres: %w", err)
	}
	defer func() { _ = db.Close() }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("serve: connect redis: %w", err)
	}

	m := metrics.New()
	auditLogger := audit.NewLogger(db, logger, cfg.AuditBufferSize)
	auditLogger.OnDropped(m.AuditDropped.Inc)
	defer auditLogger.Close()

	sessions := session.NewManager(db)
	rbacResolver := rbac.NewResolver(db)
	totpEngine := totp.NewEngine(db, &kekWrapperUnavailable{}, cfg.TotpIssuer, cfg.TotpMaxFailures, cfg.TotpLockDuration)
	pendingReg := ake.NewRedisPendingRegistrationStore(rdb)

	ac := &httpapi.AppContext{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Sessions:   sessions,
		Rbac:       rbacResolver,
		Totp:       totpEngine,
		Audit:      auditLogger,
		Metrics:    m,
		PendingReg: pendingReg,
	}

	var kekStore *kek.Store
	userAke, adminAke, signer, kekStore, installed, err := buildEngines(ctx, cfg, logger, db, rdb)
	if err != nil {
		return err
	}
	if installed {
		ac.UserAke = userAke
		ac.AdminAke = adminAke
		ac.Oidc = oidc.NewEngine(db, sessions, rbacResolver, signer, cfg.Issuer)
		ac.Totp = totp.NewEngine(db, kekStore, cfg.TotpIssuer, cfg.TotpMaxFailures, cfg.TotpLockDuration)
		logger.Infow("bootstrap material loaded", "issuer", cfg.Issuer)
	} else {
		logger.Warnw("serving without bootstrap material; run the install ceremony and restart", "listenAddr", cfg.ListenAddr)
	}

	handler := httpapi.NewRouter(ac, kekStore)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		logger.Infow("listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("forced shutdown", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// kekWrapperUnavailable backs totp.NewEngine before install has produced a
// real kek.Store; every Wrap/Unwrap call fails closed rather than panic,
// since no pre-install caller can reach the TOTP engine (no principal
// exists yet).
type kekWrapperUnavailable struct{}

func (kekWrapperUnavailable) Wrap([]byte) ([]byte, error) {
	return nil, errNotInstalled
}

func (kekWrapperUnavailable) Unwrap([]byte) ([]byte, error) {
	return nil, errNotInstalled
}

var errNotInstalled = fmt.Errorf("serve: kek store unavailable before install completes")
