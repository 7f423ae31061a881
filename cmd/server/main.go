package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/murilobezs/empowerup-sub002/config"
	"github.com/murilobezs/empowerup-sub002/internal/handler"
	"github.com/murilobezs/empowerup-sub002/internal/identity"
	"github.com/murilobezs/empowerup-sub002/internal/model"
	"github.com/murilobezs/empowerup-sub002/internal/notify"
	"github.com/murilobezs/empowerup-sub002/internal/repository"
	"github.com/murilobezs/empowerup-sub002/internal/service"
	dbPkg "github.com/murilobezs/empowerup-sub002/pkg/db"
	"github.com/murilobezs/empowerup-sub002/pkg/jwt"
	"github.com/murilobezs/empowerup-sub002/pkg/logger"
	redisPkg "github.com/murilobezs/empowerup-sub002/pkg/redis"
	"github.com/murilobezs/empowerup-sub002/pkg/response"
	"github.com/murilobezs/empowerup-sub002/pkg/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg := config.LoadConfig()

	// 2. 初始化日志系统
	log := logger.InitLogger(cfg.Log)
	defer log.Sync()

	log.Info("=== 会话服务启动 ===")
	log.Info("服务器配置信息",
		zap.String("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.Int("database_port", cfg.Database.Port),
		zap.String("database_name", cfg.Database.Database),
		zap.Duration("jwt_expire_time", cfg.JWT.ExpireTime),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 初始化数据库连接
	if _, err := dbPkg.InitDB(cfg.Database); err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}
	defer func() {
		if err := dbPkg.CloseDB(); err != nil {
			log.Error("关闭数据库连接失败", zap.Error(err))
		}
	}()
	log.Info("数据库连接成功")

	// 3.1 自动迁移表结构
	if err := dbPkg.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Participant{},
		&model.Message{},
	); err != nil {
		log.Fatal("自动迁移失败", zap.Error(err))
	}
	log.Info("自动迁移完成")

	// 3.2 初始化Redis（缓存不可用时降级为直查数据库）
	if err := redisPkg.InitRedis(cfg.Redis); err != nil {
		log.Warn("Redis连接失败，缓存功能关闭", zap.Error(err))
	} else {
		defer redisPkg.Close()
		log.Info("Redis连接成功")
	}

	// 3.3 组装业务依赖
	jwtSvc := jwt.NewJWTService(cfg.JWT)
	db := dbPkg.GetDB()

	conversationRepo := repository.NewConversationRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	resolver := identity.NewGormResolver(db)

	notifiers := []notify.Notifier{notify.NewWebsocketNotifier()}
	if cfg.Queue.Enabled {
		queueNotifier := notify.NewQueueNotifier(cfg.Redis, cfg.Queue)
		defer queueNotifier.Close()
		notifiers = append(notifiers, queueNotifier)
		log.Info("异步通知队列已启用", zap.String("queue", cfg.Queue.Queue))
	}
	fanout := notify.NewFanout(notifiers...)

	conversationSvc := service.NewConversationService(conversationRepo, participantRepo, messageRepo, resolver, cfg.Chat)
	messageSvc := service.NewMessageService(messageRepo, participantRepo, conversationRepo, resolver, fanout, cfg.Chat)
	inboxSvc := service.NewInboxService(participantRepo, messageRepo, cfg.Chat.BadgeCacheTTL)

	conversationHandler := handler.NewConversationHandler(conversationSvc)
	messageHandler := handler.NewMessageHandler(messageSvc)
	inboxHandler := handler.NewInboxHandler(inboxSvc)

	// 4. 设置Gin模式
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 5. 创建Gin路由
	router := gin.New()
	router.Use(logger.RequestIDMiddleware())
	router.Use(logger.LoggerMiddleware())
	router.Use(logger.ErrorLoggerMiddleware())

	// 6. 基础路由
	setupBasicRoutes(router)

	// 6.1 业务路由（全部需要认证）
	v1 := router.Group("/api/v1")
	v1.Use(jwtSvc.AuthMiddleware())
	{
		conversations := v1.Group("/conversations")
		{
			conversations.GET("", conversationHandler.List)                   // 会话列表
			conversations.POST("/private", conversationHandler.CreatePrivate) // 获取或创建私聊
			conversations.POST("/group", conversationHandler.CreateGroup)     // 创建群聊

			conversations.GET("/:conversation_id", conversationHandler.Get)
			conversations.GET("/:conversation_id/messages", messageHandler.List)
			conversations.POST("/:conversation_id/messages", messageHandler.Send)
			conversations.PUT("/:conversation_id/seen", messageHandler.MarkSeen)
			conversations.PUT("/:conversation_id/flags", conversationHandler.UpdateFlags)
			conversations.POST("/:conversation_id/leave", conversationHandler.Leave)

			conversations.GET("/:conversation_id/participants", conversationHandler.ListParticipants)
			conversations.POST("/:conversation_id/participants", conversationHandler.AddParticipant)
			conversations.DELETE("/:conversation_id/participants/:user_id", conversationHandler.RemoveParticipant)
		}

		inbox := v1.Group("/inbox")
		{
			inbox.GET("/badge", inboxHandler.Badge) // 全局未读角标
		}
	}

	// WebSocket路由
	router.GET("/ws", websocket.Handler(jwtSvc))

	// 7. 创建HTTP服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 8. 启动HTTP服务器
	go func() {
		log.Info("HTTP服务器启动", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP服务器启动失败", zap.Error(err))
		}
	}()

	// 9. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP服务器关闭失败", zap.Error(err))
	}

	log.Info("服务器已安全关闭")
}

// setupBasicRoutes 设置基础路由
func setupBasicRoutes(router *gin.Engine) {
	// 健康检查
	// 完整url为：http://localhost:8080/health
	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		if err := dbPkg.HealthCheck(); err != nil {
			status = "db-down"
		}
		redisStatus := "ok"
		if err := redisPkg.HealthCheck(); err != nil {
			redisStatus = "down"
		}
		response.Success(c, gin.H{
			"status": status,
			"redis":  redisStatus,
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// 根路径
	router.GET("/", func(c *gin.Context) {
		response.Success(c, gin.H{
			"message": "会话服务运行正常",
			"version": "1.0.0",
		})
	})
}
