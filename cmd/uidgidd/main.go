package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jshihstsci/uidgid/internal/background"
	"github.com/jshihstsci/uidgid/internal/config"
	"github.com/jshihstsci/uidgid/internal/groups"
	"github.com/jshihstsci/uidgid/internal/hostdirs"
	"github.com/jshihstsci/uidgid/internal/server"
	"github.com/jshihstsci/uidgid/internal/uidgid"
	"github.com/jshihstsci/uidgid/internal/username"
	"github.com/jshihstsci/uidgid/internal/users"
)

func main() {
	cfg, err := config.Load(os.Getenv("UIDGID_CONFIG"))
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	userStore, err := users.NewStore(cfg.UserTablePath(), logger)
	if err != nil {
		logger.Fatal("opening user table", zap.Error(err))
	}
	groupStore, err := groups.NewStore(cfg.GroupTablePath(), username.GroupPrefix(cfg.Deployment), logger)
	if err != nil {
		logger.Fatal("opening group table", zap.Error(err))
	}

	var dirs hostdirs.Provisioner = hostdirs.Discard{}
	if cfg.ProvisionDirs {
		dirs = hostdirs.NewDirMaker(cfg.HomeRoot, cfg.TeamRoot, logger)
	}

	worker := background.NewWorker(64, logger)
	defer worker.Close()

	svc := uidgid.New(cfg, userStore, groupStore, dirs, worker, logger)
	handler := server.New(svc, cfg.JWTSecret, logger)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("uidgid listening", zap.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server exited", zap.Error(err))
	}
}
