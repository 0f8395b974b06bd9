package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Heaven664/messenger-backend/internal/config"
	"github.com/Heaven664/messenger-backend/internal/connection"
	"github.com/Heaven664/messenger-backend/internal/fanout"
	"github.com/Heaven664/messenger-backend/internal/health"
	"github.com/Heaven664/messenger-backend/internal/jwt"
	"github.com/Heaven664/messenger-backend/internal/protocol"
	"github.com/Heaven664/messenger-backend/internal/repository"
	"github.com/Heaven664/messenger-backend/internal/server"
	"github.com/Heaven664/messenger-backend/internal/service"
	"github.com/Heaven664/messenger-backend/internal/snowflake"
)

func main() {
	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// 加载配置
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 按配置调整日志级别
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 连接 NATS
	natsClient, err := fanout.NewClient(cfg.NATS)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 连接 Redis
	redisClient := connectRedis(cfg.Redis)
	defer redisClient.Close()
	logger.Info("Connected to Redis", "host", cfg.Redis.Host)

	// 连接数据库
	pool, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)

	// 初始化存储
	store := repository.NewStore(pool, cfg.Database.TxTimeout)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("Failed to ensure schema", "error", err)
		os.Exit(1)
	}
	locationRepo := repository.NewLocationRepository(redisClient)
	stores, txRunner := service.NewStoreAdapter(store)

	// 初始化服务
	nodeID := cfg.Server.NodeID
	sf := snowflake.NewNode(snowflakeNodeID(nodeID))
	publisher := fanout.NewEventPublisher(natsClient.Conn(), nodeID)
	routerSvc := service.NewRouterService(publisher)
	convoSvc := service.NewConversationService(stores, txRunner, sf)
	contactSvc := service.NewContactService(stores, routerSvc, sf)
	userSvc := service.NewUserService(stores, txRunner)

	connMgr := connection.NewManager()
	presenceSvc := service.NewPresenceService(
		connMgr,
		stores.Users,
		stores.Chats,
		stores.Contacts,
		locationRepo,
		routerSvc,
		nodeID,
	)

	// 协议处理器和网关
	jwtSvc := jwt.NewService(cfg.Auth.TokenSecret, 24*time.Hour)
	handler := protocol.NewHandler(connMgr, jwtSvc, presenceSvc, convoSvc, contactSvc, routerSvc)
	subscriber := fanout.NewEventSubscriber(natsClient.Conn(), nodeID, handler, fanout.SubscriberConfig{})

	// 订阅身份子系统的资料变更
	profileSub := fanout.NewProfileSubscriber(natsClient.Conn(), userSvc)
	if err := profileSub.Start(); err != nil {
		logger.Error("Failed to start profile subscriber", "error", err)
		os.Exit(1)
	}
	defer profileSub.Stop()

	srv := server.New(cfg, connMgr, handler, presenceSvc, subscriber)
	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// 健康检查 HTTP 服务
	healthChecker := health.NewChecker(pool, natsClient.Conn(), redisClient, connMgr)
	go startHealthServer(healthChecker, cfg.Server.HealthAddr, logger)

	logger.Info("Chat service started",
		"name", cfg.App.Name,
		"addr", cfg.Server.Addr,
		"node_id", nodeID)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	srv.Shutdown()
	logger.Info("Chat service stopped")
}

// startHealthServer 启动健康检查 HTTP 服务
func startHealthServer(healthChecker *health.Checker, addr string, logger *slog.Logger) {
	if addr == "" {
		addr = ":8080"
	}
	mux := http.NewServeMux()
	mux.Handle("/health", healthChecker)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if healthChecker.IsHealthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Not Ready"))
		}
	})

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	logger.Info("Health check server started", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Health check server failed", "error", err)
	}
}

// connectRedis 连接 Redis
func connectRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// snowflakeNodeID 把节点名映射到雪花节点编号
func snowflakeNodeID(nodeID string) int64 {
	h := fnv.New32a()
	h.Write([]byte(nodeID))
	return int64(h.Sum32() % 1024)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
