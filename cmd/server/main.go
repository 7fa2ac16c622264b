// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"docqa-go/internal/config"
	"docqa-go/internal/handler"
	"docqa-go/internal/middleware"
	"docqa-go/internal/pipeline"
	"docqa-go/internal/rag"
	"docqa-go/internal/repository"
	"docqa-go/internal/service"
	"docqa-go/pkg/database"
	"docqa-go/pkg/es"
	"docqa-go/pkg/kafka"
	"docqa-go/pkg/llm"
	"docqa-go/pkg/log"
	"docqa-go/pkg/storage"
	"docqa-go/pkg/tika"
	"docqa-go/pkg/token"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.Init(cfg.Database)
	database.InitRedis(cfg.Database.Redis)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	// 4. 可选的基础设施：未配置或不可用时降级运行
	var (
		objectStore service.ObjectStore
		chunkIndex  service.ChunkIndex
		publisher   service.EventPublisher
		producer    *kafka.Producer
	)
	if cfg.MinIO.Endpoint != "" {
		if store, err := storage.NewMinIO(bgCtx, cfg.MinIO); err != nil {
			log.Warnf("MinIO 不可用，原始文件将不会归档: %v", err)
		} else {
			objectStore = store
		}
	}
	if cfg.Elasticsearch.Addresses != "" {
		index, err := es.NewIndex(cfg.Elasticsearch)
		if err == nil {
			err = index.EnsureIndex(bgCtx)
		}
		if err != nil {
			log.Warnf("Elasticsearch 不可用，搜索将使用 TF-IDF 排序: %v", err)
		} else {
			chunkIndex = index
		}
	}
	if cfg.Kafka.Brokers != "" {
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
	}

	// 5. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	docRepo := repository.NewDocumentRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.RDB)
	blacklist := repository.NewTokenBlacklist(database.RDB)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	registry := pipeline.NewConfiguredRegistry(tikaClient, tikaClient, cfg.Ingest)
	processor := pipeline.NewProcessor(registry, cfg.Ingest)
	retriever := rag.NewRetriever(nil, cfg.Retrieval.MinScore)
	providers := rag.NewProviderRegistry(cfg.LLM.Providers, nil)
	synthesizer := rag.NewSynthesizer(cfg.LLM, providers, llm.NewClient(nil))
	log.Infof("已注册的大模型服务商: %v", providers.Names())

	userService := service.NewUserService(userRepo, blacklist, jwtManager)
	documentService := service.NewDocumentService(docRepo, processor, objectStore, chunkIndex, publisher, cfg.Ingest)
	searchService := service.NewSearchService(docRepo, retriever, chunkIndex)
	conversationService := service.NewConversationService(conversationRepo)
	chatService := service.NewChatService(docRepo, retriever, synthesizer, conversationService, cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK)

	// 7. 启动后台 Kafka 消费者
	if producer != nil {
		go kafka.StartConsumer(bgCtx, cfg.Kafka, documentService, database.RDB)
	}

	// 7.1 初始化导入 seed 目录，已导入的文件会被跳过
	go initSeedFiles(bgCtx, cfg.Seed, userRepo, documentService)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	registerRoutes(r, &cfg, jwtManager, userService, documentService, searchService, chatService, conversationService)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者与 seed 导入
	cancelBg()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Warnf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}

// registerRoutes 注册全部 HTTP 路由。
func registerRoutes(
	r *gin.Engine,
	cfg *config.Config,
	jwtManager *token.JWTManager,
	userService service.UserService,
	documentService service.DocumentService,
	searchService service.SearchService,
	chatService service.ChatService,
	conversationService service.ConversationService,
) {
	auth := middleware.AuthMiddleware(jwtManager, userService)
	queryLimiter := middleware.NewUserRateLimiter(cfg.Server.QueryRatePerMinute, cfg.Server.QueryBurst)
	userHandler := handler.NewUserHandler(userService)
	uploadHandler := handler.NewUploadHandler(documentService, cfg.Ingest)
	documentHandler := handler.NewDocumentHandler(documentService)
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager, queryLimiter)
	conversationHandler := handler.NewConversationHandler(conversationService)

	r.GET("/health", handler.Health)
	r.GET("/chat/:token", chatHandler.Handle)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.POST("/auth/refreshToken", handler.NewAuthHandler(userService).RefreshToken)

		users := apiV1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			authed := users.Group("")
			authed.Use(auth)
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
				authed.GET("/conversation", conversationHandler.GetConversations)
				authed.DELETE("/conversation", conversationHandler.ResetConversation)
			}
		}

		documents := apiV1.Group("/documents")
		documents.Use(auth)
		{
			documents.POST("/upload", uploadHandler.Upload)
			documents.GET("/supported-types", uploadHandler.SupportedTypes)
			documents.GET("", documentHandler.ListDocuments)
			documents.DELETE("/:id", documentHandler.DeleteDocument)
			documents.GET("/:id/download", documentHandler.GenerateDownloadURL)
		}

		apiV1.GET("/search", auth, handler.NewSearchHandler(searchService, cfg.Retrieval.DefaultTopK).Search)
		apiV1.POST("/chat/query", auth, queryLimiter.Handler(), chatHandler.Query)
	}
}

// initSeedFiles 扫描目录下文件并通过标准导入流程写入 seed 用户的语料库（幂等）。
func initSeedFiles(ctx context.Context, seed config.SeedConfig, userRepo repository.UserRepository, docService service.DocumentService) {
	info, err := os.Stat(seed.Dir)
	if err != nil || !info.IsDir() {
		log.Infof("initSeedFiles: 目录 '%s' 不存在或不可用，跳过初始化导入", seed.Dir)
		return
	}

	owner, err := userRepo.FindByEmail(ctx, seed.OwnerEmail)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("initSeedFiles: 用户 '%s' 不存在，跳过初始化导入", seed.OwnerEmail)
		} else {
			log.Warnf("initSeedFiles: 查询用户失败: %v", err)
		}
		return
	}

	walkErr := filepath.Walk(seed.Dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fileName := info.Name()

		exists, err := docService.HasDocument(ctx, owner.ID, fileName)
		if err != nil {
			log.Warnf("initSeedFiles: 幂等检查失败: %s, err=%v", fileName, err)
			return nil
		}
		if exists {
			log.Infof("initSeedFiles: 已存在，跳过: %s", fileName)
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			log.Warnf("initSeedFiles: 读取文件失败: %s, err=%v", path, err)
			return nil
		}
		if len(content) == 0 {
			log.Infof("initSeedFiles: 空文件跳过: %s", path)
			return nil
		}

		result, err := docService.Ingest(ctx, owner.ID, []service.UploadedFile{{Filename: fileName, Content: content}})
		if err != nil {
			log.Warnf("initSeedFiles: 导入失败: %s, err=%v", fileName, err)
			return nil
		}
		log.Infof("initSeedFiles: 导入完成: %s, chunks=%d", fileName, result.ChunksCreated)
		return nil
	})
	if walkErr != nil {
		log.Warnf("initSeedFiles: 遍历目录发生错误: %v", walkErr)
	}
}
