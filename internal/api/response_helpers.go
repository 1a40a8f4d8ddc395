// internal/api/response_helpers.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lanbinleo/NovelWriter/internal/errors"
)

// SuccessResponse 写操作成功时的响应体
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse 失败时的响应体
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResponseHelper 响应助手类
type ResponseHelper struct{}

// NewResponseHelper 创建响应助手
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success 200 {"success": true}
func (rh *ResponseHelper) Success(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Error 以 {"error": message} 响应
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, ErrorResponse{Error: message})
}

// NotFound 404错误响应
func (rh *ResponseHelper) NotFound(c *gin.Context, message string) {
	rh.Error(c, http.StatusNotFound, message)
}

// FromError 将服务层错误映射为响应。
// 校验错误与存储错误都以 500 返回，客户端只能从响应体区分。
func (rh *ResponseHelper) FromError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case apperrors.IsNotFoundError(err):
		rh.NotFound(c, err.Error())
	case apperrors.TypeOf(err) == apperrors.ErrorTypeRateLimit:
		rh.Error(c, http.StatusTooManyRequests, err.Error())
	case apperrors.IsValidationError(err), apperrors.IsStorageError(err):
		rh.Error(c, http.StatusInternalServerError, err.Error())
	default:
		rh.Error(c, http.StatusInternalServerError, "An internal error occurred")
	}
}
