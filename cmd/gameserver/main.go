// Package main provides the game server binary: the player websocket endpoint,
// the admin HTTP API and the gRPC health service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/smuggle/internal/config"
	"github.com/cory-johannsen/smuggle/internal/game/event"
	"github.com/cory-johannsen/smuggle/internal/game/room"
	"github.com/cory-johannsen/smuggle/internal/game/round"
	"github.com/cory-johannsen/smuggle/internal/game/session"
	"github.com/cory-johannsen/smuggle/internal/game/snowflake"
	"github.com/cory-johannsen/smuggle/internal/gameserver"
	"github.com/cory-johannsen/smuggle/internal/moderation"
	"github.com/cory-johannsen/smuggle/internal/observability"
	"github.com/cory-johannsen/smuggle/internal/scripting"
	"github.com/cory-johannsen/smuggle/internal/server"
	"github.com/cory-johannsen/smuggle/internal/storage/postgres"
	"github.com/cory-johannsen/smuggle/internal/storage/sqlite"
	"github.com/cory-johannsen/smuggle/internal/transport/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logging, err := observability.NewLogging(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	logger := logging.Logger
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("ws_addr", cfg.Websocket.Addr()),
		zap.String("admin_http_addr", cfg.Admin.HTTPAddr()),
		zap.String("admin_grpc_addr", cfg.Admin.GRPCAddr()),
	)

	lifecycle := server.NewLifecycle(logger)

	// Lifecycle events
	bus := event.NewBus(logger)
	bus.Subscribe(event.LogListener(observability.Component(logger, "lifecycle")))
	publisher := event.NewPublisher(bus, logger)

	// Blacklist
	repo, check, closeRepo, err := openBlacklist(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("opening blacklist store", zap.String("store", cfg.Blacklist.Store), zap.Error(err))
	}
	defer closeRepo()
	mod := moderation.NewService(repo, observability.Component(logger, "moderation"))

	// Settlement policy
	scriptStart := time.Now()
	policy, err := scripting.LoadSettlementScript(cfg.Game.SettlementScript, cfg.Game.ScriptInstructionLimit, observability.Component(logger, "scripting"))
	if err != nil {
		logger.Fatal("loading settlement script", zap.String("path", cfg.Game.SettlementScript), zap.Error(err))
	}
	defer policy.Close()
	logger.Info("settlement policy ready", zap.Duration("elapsed", time.Since(scriptStart)))

	// Sessions
	supervisor := session.NewSupervisor(
		session.NewRegistry(),
		publisher,
		observability.Component(logger, "session"),
		cfg.Game.SessionCreateTimeout,
		cfg.Websocket.SendBuffer,
	)

	// Rooms
	factory := snowflake.NewFactory(snowflake.WithEpoch(cfg.Game.EpochTime()))
	rooms, err := room.NewManager(cfg.Game.NodeID, room.Settings{
		SelectionWindow: cfg.Game.SelectionWindow,
		RoundsPerGame:   cfg.Game.RoundsPerGame,
		MaxDeclaration:  round.Money(cfg.Game.MaxDeclaration),
		TimeoutPolicy:   room.TimeoutPolicy(cfg.Game.TimeoutPolicy),
	}, room.Deps{
		Policy:    policy,
		Notifier:  gameserver.NewSessionNotifier(supervisor, observability.Component(logger, "notifier")),
		Publisher: publisher,
		Factory:   factory,
		Logger:    observability.Component(logger, "room"),
	})
	if err != nil {
		logger.Fatal("creating room manager", zap.Error(err))
	}
	if cfg.Game.RoomsFile != "" {
		seeds, err := room.LoadSeedsFromFile(cfg.Game.RoomsFile)
		if err != nil {
			logger.Fatal("loading room seeds", zap.String("path", cfg.Game.RoomsFile), zap.Error(err))
		}
		if err := rooms.CreateSeeds(seeds); err != nil {
			logger.Fatal("creating seeded rooms", zap.Error(err))
		}
		logger.Info("seeded rooms created", zap.Int("count", len(seeds)))
	}

	dispatcher := gameserver.NewDispatcher(supervisor, rooms, mod, observability.Component(logger, "dispatcher"))
	wsServer := ws.NewServer(cfg.Websocket, dispatcher, observability.Component(logger, "websocket"))

	admin := gameserver.NewAdmin(cfg.Admin.HTTPAddr(), rooms, supervisor.Registry(), mod, observability.Component(logger, "admin"))
	admin.SetLogLevel(logging.Level)
	if check != nil {
		admin.AddCheck(cfg.Blacklist.Store, check)
	}
	health := gameserver.NewHealthServer(cfg.Admin.GRPCAddr(), observability.Component(logger, "health"))

	supCtx, stopSupervisor := context.WithCancel(ctx)
	lifecycle.Add("supervisor", &server.FuncService{
		StartFn: func() error {
			supervisor.Run(supCtx)
			return nil
		},
		StopFn: func() {
			rooms.Close()
			dispatcher.Close()
			stopSupervisor()
		},
	})
	lifecycle.Add("grpc-health", health)
	lifecycle.Add("admin-http", admin)
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: wsServer.Start,
		StopFn: func() {
			health.SetServing(false)
			wsServer.Stop()
		},
	})

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("rooms", rooms.Count()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// openBlacklist returns the configured repository, an optional health check and
// a close function.
func openBlacklist(ctx context.Context, cfg config.Config, logger *zap.Logger) (moderation.Repository, gameserver.HealthCheck, func(), error) {
	switch cfg.Blacklist.Store {
	case "sqlite":
		store, err := sqlite.Open(cfg.Blacklist.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("blacklist store opened", zap.String("store", "sqlite"), zap.String("path", cfg.Blacklist.SQLitePath))
		closeFn := func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing sqlite store", zap.Error(err))
			}
		}
		return store, store.Ping, closeFn, nil
	case "postgres":
		dbStart := time.Now()
		store, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := store.CheckSchema(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		return store.Blacklist(), store.Ping, store.Close, nil
	case "memory":
		logger.Warn("blacklist is in memory; blocks are lost on restart")
		return moderation.NewMemoryRepository(), nil, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown blacklist store %q", cfg.Blacklist.Store)
	}
}
