package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"geek-hub/config"
	"geek-hub/internal/handler"
	"geek-hub/internal/model"
	"geek-hub/internal/pattern"
	"geek-hub/internal/repository"
	"geek-hub/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库
	db, err := repository.OpenDB(cfg.Database.Path)
	if err != nil {
		log.Fatal("Failed to connect database:", err)
	}

	// 初始化默认配置
	if err := initDefaultConfig(db, cfg.DefaultAI); err != nil {
		log.Fatal("Failed to init default config:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 加载 pattern
	w := cfg.Patterns.Weights
	store := pattern.NewStore(cfg.Patterns.Dir, pattern.Weights{
		Name:          w.Name,
		Description:   w.Description,
		DescriptionZh: w.DescriptionZh,
		Category:      w.Category,
	})
	if _, err := store.Reload(); err != nil {
		log.Printf("[Pattern] 加载失败: %v", err)
	}
	if cfg.Patterns.Watch {
		if err := store.Watch(ctx, 0); err != nil {
			log.Printf("[Pattern] 目录监听启动失败: %v", err)
		}
	}

	// 启动定时任务
	sched := scheduler.NewScheduler(store, func(ctx context.Context) error {
		return repository.OptimizeSearchIndex(ctx, db)
	}, cfg.Cron)
	if err := sched.Start(); err != nil {
		log.Fatal("Failed to start scheduler:", err)
	}
	defer sched.Stop()

	// 初始化Gin,请求日志由 handler 的中间件输出
	r := gin.New()
	r.Use(gin.Recovery())

	// 注册路由
	h := handler.NewHandler(db, store, cfg)
	h.SetScheduler(sched)
	h.RegisterRoutes(r)

	// 启动服务
	addr := cfg.GetServerAddress()
	log.Printf("Server starting on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatal("Server stopped:", err)
	}
}

// initDefaultConfig 数据库中没有任何 API 配置时写入默认配置并激活
func initDefaultConfig(db *gorm.DB, def config.DefaultAIConfig) error {
	configs := repository.NewAPIConfigRepository(db)
	ctx := context.Background()

	n, err := configs.Count(ctx)
	if err != nil || n > 0 {
		return err
	}
	if def.APIKey == "" || def.Model == "" {
		log.Printf("[Config] 默认 API 配置不完整,跳过初始化")
		return nil
	}
	return configs.Create(ctx, &model.APIConfig{
		Name:     def.Name,
		Vendor:   def.Vendor,
		Model:    def.Model,
		APIKey:   def.APIKey,
		BaseURL:  def.BaseURL,
		IsActive: true,
	})
}
