// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lanbinleo/NovelWriter/internal/api"
	"github.com/lanbinleo/NovelWriter/internal/config"
	"github.com/lanbinleo/NovelWriter/internal/seed"
	"github.com/lanbinleo/NovelWriter/internal/services"
	"github.com/lanbinleo/NovelWriter/internal/storage"
	"github.com/lanbinleo/NovelWriter/internal/utils"
)

const (
	logFileName     = "server.log"
	shutdownTimeout = 30 * time.Second
)

// App 持有一次运行所需的全部组件
type App struct {
	config  *config.Config
	logger  *utils.Logger
	store   *storage.BookStore
	metrics *utils.BookMetrics
	events  *api.EventHub
	books   *services.BookService
	router  *gin.Engine
	server  *http.Server

	ownsLogFile bool
	stopChan    chan os.Signal
}

// New 按依赖顺序构建应用：日志 -> 存储 -> 指标 -> 事件 -> 服务 -> 路由
func New(cfg *config.Config, logger *utils.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = utils.GetLogger()
	}

	if cfg.DebugMode {
		gin.SetMode(gin.DebugMode)
		logger.SetLogLevel(utils.DEBUG)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	a := &App{
		config:   cfg,
		logger:   logger,
		stopChan: make(chan os.Signal, 1),
	}

	if cfg.LogDir != "" {
		if err := logger.OpenFile(filepath.Join(cfg.LogDir, logFileName)); err != nil {
			return nil, err
		}
		a.ownsLogFile = true
	}

	store, err := storage.NewBookStore(cfg)
	if err != nil {
		a.closeLog()
		return nil, fmt.Errorf("初始化书籍存储失败: %w", err)
	}
	a.store = store

	collector := utils.NewMetricsCollector()
	a.metrics = utils.NewBookMetrics(collector, logger)
	a.events = api.NewEventHub(cfg.AllowedOrigins, logger, collector)
	a.books = services.NewBookService(store, a.events, a.metrics, logger)

	handler := api.NewHandler(a.books, a.events, collector, cfg.StaticDir)
	a.router = api.SetupRouter(api.RouterDeps{
		Config:      cfg,
		Handler:     handler,
		Logger:      logger,
		BookMetrics: a.metrics,
	})

	a.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("application initialized", map[string]interface{}{
		"data_dir":   store.BaseDir(),
		"static_dir": cfg.StaticDir,
		"debug":      cfg.DebugMode,
	})
	return a, nil
}

// Config 返回应用配置
func (a *App) Config() *config.Config {
	return a.config
}

// Books 返回书籍服务
func (a *App) Books() *services.BookService {
	return a.books
}

// Handler 返回HTTP处理器
func (a *App) Handler() http.Handler {
	return a.router
}

// Seed 在本地没有索引时从远程数据源拉取初始数据
func (a *App) Seed(ctx context.Context) (seed.Result, error) {
	if !a.config.SeedEnabled() {
		return seed.Result{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.SeedTimeout)
	defer cancel()

	seeder := seed.NewSeeder(a.config.SeedRemoteURL, a.config.SeedTimeout, 0, a.logger)
	return seeder.Run(ctx, a.books)
}

// Run 监听配置的地址，直到收到 SIGINT/SIGTERM 或 Stop 后优雅关闭
func (a *App) Run() error {
	ln, err := net.Listen("tcp", a.config.Addr())
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", a.config.Addr(), err)
	}
	return a.serve(ln)
}

func (a *App) serve(ln net.Listener) error {
	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(a.stopChan)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	a.logger.Infof("🌐 服务器启动在 %s", ln.Addr().String())

	select {
	case err := <-errCh:
		a.events.Close()
		a.closeLog()
		return err
	case sig := <-a.stopChan:
		a.logger.Info("🛑 正在关闭服务器...", map[string]interface{}{"signal": sig.String()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Shutdown(ctx)
}

// Stop 请求 Run 返回
func (a *App) Stop() {
	select {
	case a.stopChan <- syscall.SIGTERM:
	default:
	}
}

// Shutdown 关闭HTTP服务、事件连接和日志文件
func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	a.events.Close()

	if err != nil {
		a.logger.Errorf("❌ 服务器强制关闭: %v", err)
	} else {
		a.logger.Info("✅ 服务器优雅关闭完成", nil)
	}
	a.closeLog()
	return err
}

func (a *App) closeLog() {
	if a.ownsLogFile {
		a.logger.Close()
		a.ownsLogFile = false
	}
}
