// internal/api/handlers.go
package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lanbinleo/NovelWriter/internal/services"
	"github.com/lanbinleo/NovelWriter/internal/utils"
)

// Handler 处理API请求
type Handler struct {
	BookService *services.BookService
	Events      *EventHub
	Metrics     *utils.MetricsCollector
	Response    *ResponseHelper

	static http.Handler
}

// NewHandler 创建API处理器
func NewHandler(bookService *services.BookService, events *EventHub, metrics *utils.MetricsCollector, staticDir string) *Handler {
	return &Handler{
		BookService: bookService,
		Events:      events,
		Metrics:     metrics,
		Response:    NewResponseHelper(),
		static:      http.FileServer(http.Dir(staticDir)),
	}
}

// SaveBookList POST /api/save-book-list
func (h *Handler) SaveBookList(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	if err := h.BookService.SaveBookList(body); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c)
}

// SaveBook POST /api/save-book
func (h *Handler) SaveBook(c *gin.Context) {
	body, ok := h.readBody(c)
	if !ok {
		return
	}

	if _, err := h.BookService.SaveBook(body); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c)
}

// DeleteBook DELETE /api/delete-book?id=<id>
func (h *Handler) DeleteBook(c *gin.Context) {
	if _, err := h.BookService.DeleteBook(c.Query("id")); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c)
}

// Health GET /api/health
func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{
		"success": true,
		"status":  "ok",
		"editors": h.eventClients(),
	}
	// 索引不可读时仍报告存活，只是不带书籍数
	if books, err := h.BookService.IndexSize(); err == nil {
		resp["books"] = books
	} else {
		_ = c.Error(err)
	}
	c.JSON(http.StatusOK, resp)
}

// GetMetrics GET /api/metrics
func (h *Handler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.Metrics.GetMetrics())
}

// BookEvents GET /api/events（WebSocket）
func (h *Handler) BookEvents(c *gin.Context) {
	if h.Events == nil {
		h.Response.NotFound(c, "API endpoint not found")
		return
	}
	h.Events.ServeEvents(c)
}

// Fallback 处理所有未注册路由：API 路径返回 404，其余路径交给静态文件服务
func (h *Handler) Fallback(c *gin.Context) {
	path := c.Request.URL.Path
	if strings.HasPrefix(path, apiPrefix) || path == "/api" {
		h.Response.NotFound(c, "API endpoint not found")
		return
	}

	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		h.Response.NotFound(c, "Not found")
		return
	}

	if hasHiddenSegment(path) {
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	// NoRoute 预置了 404 状态码，交给文件服务前复位
	c.Status(http.StatusOK)
	h.static.ServeHTTP(c.Writer, c.Request)
}

func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Response.Error(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		h.Response.Error(c, http.StatusInternalServerError, "Failed to read request body: "+err.Error())
		return nil, false
	}
	return body, true
}

func (h *Handler) eventClients() int {
	if h.Events == nil {
		return 0
	}
	return h.Events.ClientCount()
}

// hasHiddenSegment 拒绝以点开头的路径段，如 .env、.git
func hasHiddenSegment(path string) bool {
	for _, segment := range strings.Split(path, "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}
