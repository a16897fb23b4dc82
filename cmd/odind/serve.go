package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/odin-fire/odin-go/actor"
	"github.com/odin-fire/odin-go/feeds/demo"
	"github.com/odin-fire/odin-go/internal/config"
	"github.com/odin-fire/odin-go/internal/obslog"
	"github.com/odin-fire/odin-go/spaserver"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := obslog.New(obslog.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.OutputPath,
		AddCaller:  cfg.Log.AddCaller,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting odind",
		zap.String("service", cfg.Service.Name),
		zap.String("environment", cfg.Service.Environment),
	)

	actorCfg := actor.Config{
		DefaultMailboxBound: cfg.ActorSystem.DefaultMailboxBound,
		HeartbeatInterval:   cfg.ActorSystem.HeartbeatInterval,
		ShutdownTimeout:     cfg.ActorSystem.ShutdownTimeout,
		SchedulerWorkers:    cfg.ActorSystem.SchedulerWorkers,
	}
	sys := actor.NewActorSystem(cfg.Service.Name, actorCfg, logger, prometheus.DefaultRegisterer)
	sys.StartHeartbeats()

	serverCfg := spaserver.ServerConfig{
		Name:                     cfg.Service.Name,
		Addr:                     cfg.Addr(),
		TLSCertFile:              cfg.HTTP.TLSCertFile,
		TLSKeyFile:               cfg.HTTP.TLSKeyFile,
		ConnBufferSize:           cfg.WebSocket.ConnBufferSize,
		WebsocketReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WebsocketWriteBufferSize: cfg.WebSocket.WriteBufferSize,
		ProxyTimeout:             cfg.WebSocket.ProxyTimeout,
	}

	// The demo feed is a SpaService as well as an actor, but the server
	// needs the service list before it can be spawned (it composes its
	// services eagerly in NewServer), while the feed needs the server's handle to
	// notify it. PreActorHandle breaks that cycle the same way
	// TestCyclicConstruction does in the actor package.
	preFeed := actor.NewPreActorHandle(sys, "demo-feed", actorCfg.DefaultMailboxBound)
	feed := demo.NewFeed(3*time.Second, preFeed.Handle(), logger)

	serverBehavior := spaserver.NewServer(serverCfg, []spaserver.SpaService{feed}, logger)
	serverBuilder, _ := actor.NewActor(sys, "spa-server", serverBehavior, actorCfg.DefaultMailboxBound)
	sys.Spawn(serverBuilder)

	feedBuilder := actor.NewPreActor(preFeed, feed)
	sys.Spawn(feedBuilder)

	sys.CheckOrphanedPreHandles()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sigDone := make(chan struct{})
	go func() {
		<-quit
		close(sigDone)
	}()
	sys.InstallSignalHandler(sigDone)

	sys.Wait()
	logger.Info("odind stopped")
	return nil
}
