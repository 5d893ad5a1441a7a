package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	goenv "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"example.com/salesreport-sync/internal/logging"
	"example.com/salesreport-sync/internal/netsuite"
	"example.com/salesreport-sync/internal/sandbox"
	"example.com/salesreport-sync/internal/sqliteutil"
)

// sandboxEnv names the credentials the fakes accept.
type sandboxEnv struct {
	RefreshToken   string `env:"SANDBOX_REFRESH_TOKEN"`
	AccessToken    string `env:"SANDBOX_ACCESS_TOKEN,default=Atza|sandbox"`
	AccountID      string `env:"SANDBOX_NETSUITE_ACCOUNT_ID,default=TSTDRV1"`
	ConsumerKey    string `env:"SANDBOX_NETSUITE_CONSUMER_KEY,default=sandbox-consumer-key"`
	ConsumerSecret string `env:"SANDBOX_NETSUITE_CONSUMER_SECRET,default=sandbox-consumer-secret"`
	TokenKey       string `env:"SANDBOX_NETSUITE_ACCESS_TOKEN,default=sandbox-token-key"`
	TokenSecret    string `env:"SANDBOX_NETSUITE_TOKEN_SECRET,default=sandbox-token-secret"`
}

func main() {
	var (
		dbPath = flag.String("db", "sandbox.db", "path to the sandbox sqlite database file")
		addr   = flag.String("addr", ":8090", "HTTP listen address for the sandbox API")
	)
	flag.Parse()

	ctx := context.Background()
	logger := logging.New()

	env, err := loadEnv()
	if err != nil {
		logger.Error("read sandbox environment failed", "error", err)
		os.Exit(1)
	}

	db, err := sqliteutil.Open(*dbPath)
	if err != nil {
		logger.Error("open sandbox db failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := sandbox.NewStore(db)
	if err := store.Init(ctx); err != nil {
		logger.Error("init sandbox schema failed", "error", err)
		os.Exit(1)
	}

	serverLogger := logger.With("component", "sandbox.http")
	cfg := sandbox.Config{
		RefreshToken: env.RefreshToken,
		AccessToken:  env.AccessToken,
		NetSuite: netsuite.Credentials{
			AccountID:      env.AccountID,
			ConsumerKey:    env.ConsumerKey,
			ConsumerSecret: env.ConsumerSecret,
			TokenKey:       env.TokenKey,
			TokenSecret:    env.TokenSecret,
		},
	}
	server := &http.Server{
		Addr:              *addr,
		Handler:           sandbox.NewServer(store, cfg, serverLogger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		serverLogger.Info("sandbox API listening", "addr", *addr, "db", *dbPath, "netsuite_account", cfg.NetSuite.AccountID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverLogger.Error("sandbox server error", "error", err)
		}
	}()

	waitForShutdown(serverLogger, server)
}

// loadEnv reads an optional .env file and then the process environment. A
// missing file is fine; a malformed one is not.
func loadEnv() (sandboxEnv, error) {
	var env sandboxEnv
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return env, fmt.Errorf("load .env: %w", err)
	}
	if _, err := goenv.UnmarshalFromEnviron(&env); err != nil {
		return env, err
	}
	return env, nil
}

func waitForShutdown(logger *slog.Logger, server *http.Server) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return
	}
	logger.Info("sandbox server stopped")
}
