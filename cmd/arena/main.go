package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	mathrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sudooom.arena/internal/broadcast"
	"sudooom.arena/internal/config"
	"sudooom.arena/internal/gateway"
	"sudooom.arena/internal/handler"
	"sudooom.arena/internal/health"
	arenaNats "sudooom.arena/internal/nats"
	"sudooom.arena/internal/reconnect"
	arenaRedis "sudooom.arena/internal/redis"
	"sudooom.arena/internal/repository"
	"sudooom.arena/internal/room"
	"sudooom.arena/internal/router"
	"sudooom.arena/internal/snowflake"
	"sudooom.arena/internal/task"
	"sudooom.arena/internal/token"
)

func main() {
	// 加载配置
	configPath := os.Getenv("ARENA_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.SlogLevel(),
	}))
	slog.SetDefault(logger)

	rules, err := config.LoadRules(cfg.Arena.RulesFile)
	if err != nil {
		logger.Error("Failed to load rules", "path", cfg.Arena.RulesFile, "error", err)
		os.Exit(1)
	}

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deps []health.Dependency

	// 连接 NATS（可选）
	var natsClient *arenaNats.Client
	if cfg.NATS.Enabled {
		natsClient, err = arenaNats.NewClient(cfg.NATS)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsClient.Close()
		deps = append(deps, health.Dependency{
			Name:     "nats",
			Required: true,
			Check: func(context.Context) error {
				if !natsClient.IsConnected() {
					return errors.New("nats disconnected")
				}
				return nil
			},
		})
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	}

	// 连接 Redis（可选，在线镜像）
	var presence room.Presence
	if cfg.Redis.Enabled {
		p := arenaRedis.NewPresence(arenaRedis.NewClient(cfg.Redis), cfg.NATS.GatewayID, cfg.Redis.TTL)
		defer p.Close()
		presence = p
		deps = append(deps, health.Dependency{Name: "redis", Check: p.Ping})
		logger.Info("Redis presence enabled", "addr", cfg.Redis.Addr())
	}

	// 连接数据库（可选，对局归档）
	var (
		results room.ResultSink
		matches router.MatchLister
	)
	if cfg.Database.Enabled {
		db, err := repository.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		repo := repository.NewMatchRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Error("Failed to prepare schema", "error", err)
			os.Exit(1)
		}
		results, matches = repo, repo
		deps = append(deps, health.Dependency{Name: "postgres", Check: repo.Ping})
		logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)
	}

	// 延迟任务调度器
	scheduler := task.NewScheduler(task.Options{
		WorkerCount: cfg.Arena.SchedulerWorker,
		Tick:        cfg.Arena.SchedulerTick,
		SlotCount:   cfg.Arena.SchedulerSlots,
	})
	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()
	deps = append(deps, health.Dependency{Name: "scheduler", Required: true, Check: scheduler.Check})

	node, err := snowflake.NewNode(cfg.Server.NodeID)
	if err != nil {
		logger.Error("Invalid node id", "nodeId", cfg.Server.NodeID, "error", err)
		os.Exit(1)
	}

	// 下行：本地网关直连，或经 NATS 发往各网关
	connMgr := gateway.NewManager()
	var sender broadcast.Sender = connMgr
	var publisher *arenaNats.Publisher
	if natsClient != nil {
		publisher = arenaNats.NewPublisher(natsClient.Conn())
		sender = publisher
	}
	channel := broadcast.NewChannel(sender)

	seed := cfg.Arena.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// 初始化房间服务
	tracker := reconnect.NewTracker()
	rooms := room.NewManager(room.Options{
		Rules:     rules,
		Emitter:   channel,
		Scheduler: scheduler,
		Tracker:   tracker,
		Results:   results,
		Rand:      mathrand.New(mathrand.NewSource(seed)),
	}, presence)
	tokens := token.NewService(authSecret(cfg.Auth.Secret, logger), cfg.Auth.TokenTTL)
	service := room.NewService(rooms, tracker, tokens, node.RoomID)
	dispatcher := handler.NewDispatcher(service, channel)

	// 上行：本地直接分发，或由网关发布到 NATS、逻辑侧订阅
	var upstream gateway.Upstream = dispatcher
	if natsClient != nil {
		subscriber := arenaNats.NewUpstreamSubscriber(natsClient.Conn(), dispatcher, publisher, arenaNats.SubscriberConfig{})
		if err := subscriber.Start(ctx); err != nil {
			logger.Error("Failed to start subscriber", "error", err)
			os.Exit(1)
		}
		defer subscriber.Stop()
		deps = append(deps, health.Dependency{Name: "upstream", Check: subscriber.Check})

		downstream := arenaNats.NewDownstreamSubscriber(natsClient.Conn(), cfg.NATS.GatewayID, connMgr)
		if err := downstream.Start(); err != nil {
			logger.Error("Failed to subscribe downstream", "error", err)
			os.Exit(1)
		}
		defer downstream.Stop()

		upstream = arenaNats.NewForwarder(natsClient.Conn(), cfg.NATS.GatewayID)
	}

	gw := gateway.New(gateway.Options{
		SendBuffer:             cfg.Server.SendBuffer,
		WriteTimeout:           cfg.Server.WriteTimeout,
		HeartbeatTimeout:       cfg.Server.HeartbeatTimeout,
		HeartbeatCheckInterval: cfg.Server.HeartbeatCheckInterval,
	}, connMgr, upstream)
	gw.Start(ctx)

	go service.RunSweeper(ctx)

	checker := health.NewChecker(cfg.App.Name, rooms, connMgr, deps...)
	engine := router.SetupRouter(router.Options{AllowedOrigins: []string{"*"}},
		gw.HandleWebSocket, checker, router.NewRoomHandler(rooms, matches))

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("Arena server started",
		"addr", cfg.Server.Addr,
		"nodeId", cfg.Server.NodeID,
		"nats", cfg.NATS.Enabled,
		"redis", cfg.Redis.Enabled,
		"database", cfg.Database.Enabled)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", "error", err)
	}
	gw.Shutdown()
	cancel()
	if err := rooms.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Room shutdown failed", "error", err)
	}
	logger.Info("Arena server stopped")
}

// authSecret 未配置密钥时生成随机密钥，重启后旧的重连凭证失效
func authSecret(secret string, logger *slog.Logger) string {
	if secret != "" {
		return secret
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		logger.Error("Failed to generate auth secret", "error", err)
		os.Exit(1)
	}
	logger.Warn("auth.secret not configured, using a random secret")
	return hex.EncodeToString(buf)
}
