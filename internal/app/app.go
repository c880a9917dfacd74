package app

import (
	"cognitest_backend/internal/config"
	"cognitest_backend/internal/controller"
	"cognitest_backend/internal/repository"
	"cognitest_backend/internal/service"
	"cognitest_backend/pkg/configwatcher"
	"cognitest_backend/pkg/database"
	"cognitest_backend/pkg/logger"
	"cognitest_backend/pkg/monitoring"
	"cognitest_backend/pkg/security"
	"cognitest_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user     *repository.UserRepository
	item     *repository.ItemRepository
	response *repository.ResponseRepository
	session  *repository.SessionRepository
	metric   *repository.ReliabilityMetricRepository
	snapshot *repository.SnapshotRepository
}

type services struct {
	auth        *service.AuthService
	item        *service.ItemService
	quality     *service.ItemQualityService
	reliability *service.ReliabilityService
	precision   *service.PrecisionService
	selector    *service.ItemSelectorService
	adaptive    *service.AdaptiveService
	report      *service.ReportService
}

type controllers struct {
	auth      *controller.AuthController
	item      *controller.ItemController
	analytics *controller.AnalyticsController
	adaptive  *controller.AdaptiveController
	health    *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		item:     repository.NewItemRepository(db),
		response: repository.NewResponseRepository(db),
		session:  repository.NewSessionRepository(db),
		metric:   repository.NewReliabilityMetricRepository(db),
		snapshot: repository.NewSnapshotRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.auth = service.NewAuthService(repos.user, cfg)
	s.item = service.NewItemService(repos.item, cfg)
	s.quality = service.NewItemQualityService(repos.item, repos.response, repos.snapshot, cfg)
	s.reliability = service.NewReliabilityService(repos.session, repos.response, repos.metric, cfg)
	s.precision = service.NewPrecisionService(s.reliability, cfg)
	s.selector = service.NewItemSelectorService(repos.item, cfg)
	s.adaptive = service.NewAdaptiveService(repos.session, repos.response, repos.item, s.selector, s.precision, cfg)
	s.report = service.NewReportService(repos.item, repos.snapshot, repos.metric, s.reliability, rdb, cfg)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		item:      controller.NewItemController(s.item, s.quality, s.selector),
		analytics: controller.NewAnalyticsController(s.report),
		adaptive:  controller.NewAdaptiveController(s.adaptive),
		health:    controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 周期性重算全题库区分度并执行质量标记规则
func (a *App) startBackgroundTasks(s *services) {
	interval := time.Duration(a.Config.Psychometrics.RecomputeMinutes) * time.Minute
	go func() {
		ticker := time.NewTicker(interval)
		for range ticker.C {
			if err := s.quality.RecomputeAll(); err != nil {
				logger.Log.Error("discrimination recompute task error", zap.Error(err))
			}
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("cognitest-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	app.registerRoutes(router, controllers, cfg)

	app.startBackgroundTasks(services)

	// 配置热加载
	go configwatcher.WatchConfig("configs/config.yaml", func(newCfg *config.Config) {
		logger.Log.Info("Config reloaded")
		for _, callback := range app.configCallbacks {
			callback(newCfg)
		}
	})

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
