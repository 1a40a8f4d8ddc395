// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/lanbinleo/NovelWriter/internal/config"
	"github.com/lanbinleo/NovelWriter/internal/utils"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Config      *config.Config
	Handler     *Handler
	Logger      *utils.Logger
	BookMetrics *utils.BookMetrics
}

// SetupRouter 配置HTTP路由
func SetupRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	handler := deps.Handler
	logger := deps.Logger
	if logger == nil {
		logger = utils.GetLogger()
	}

	r := gin.New()
	// API 路径只做精确匹配，不把 /api/save-book/ 重定向到 /api/save-book
	r.RedirectTrailingSlash = false
	r.Use(
		requestIDMiddleware(),
		accessLogMiddleware(logger, deps.BookMetrics),
		recoveryMiddleware(logger),
		corsMiddleware(cfg.AllowedOrigins),
	)

	// 写操作的中间件
	writes := []gin.HandlerFunc{bodyLimitMiddleware(cfg.MaxBodyBytes)}
	if cfg.RateLimitRPS > 0 {
		writes = append(writes, NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware())
	}

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		store := api.Group("", writes...)
		{
			store.POST("/save-book-list", handler.SaveBookList)
			store.POST("/save-book", handler.SaveBook)
			store.DELETE("/delete-book", handler.DeleteBook)
		}

		api.GET("/health", handler.Health)
		api.GET("/metrics", handler.GetMetrics)
		api.GET("/events", handler.BookEvents)
	}

	// 其余路径：API 404 或静态文件
	r.NoRoute(handler.Fallback)

	return r
}
