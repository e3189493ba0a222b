package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess            = 0
	CodeParamError         = 1000
	CodeAuthFailed         = 1001
	CodePermissionDenied   = 1002
	CodeResourceNotFound   = 1003
	CodeUsageLimitExceeded = 1004
	CodeConflict           = 1005
	CodeAccountLocked      = 1006
	CodeRateLimited        = 1007
	CodeAccountInactive    = 1008
	CodeServerError        = 5000
	CodeServiceUnavailable = 5003
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:            "success",
	CodeParamError:         "参数错误",
	CodeAuthFailed:         "认证失败",
	CodePermissionDenied:   "权限不足",
	CodeResourceNotFound:   "资源不存在",
	CodeUsageLimitExceeded: "本月额度已用完",
	CodeConflict:           "资源已存在",
	CodeAccountLocked:      "账号已锁定",
	CodeRateLimited:        "请求过于频繁",
	CodeAccountInactive:    "账号已停用",
	CodeServerError:        "服务器内部错误",
	CodeServiceUnavailable: "服务暂时不可用",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Created 资源创建成功
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Accepted 已接收，异步处理
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, Response{
		Code:    CodeSuccess,
		Message: "accepted",
		Data:    data,
	})
}

// Error 错误响应，message 为空时使用错误码的默认消息
func Error(c *gin.Context, status, code int, message string) {
	ErrorWithData(c, status, code, message, nil)
}

// ErrorWithData 带数据的错误响应，并终止后续中间件
func ErrorWithData(c *gin.Context, status, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.AbortWithStatusJSON(status, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string, data interface{}) {
	ErrorWithData(c, http.StatusBadRequest, CodeParamError, message, data)
}

// AuthError 认证失败，不区分具体原因
func AuthError(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, CodeResourceNotFound, message)
}

// ConflictError 邮箱或用户名已被使用
func ConflictError(c *gin.Context, message string, data interface{}) {
	ErrorWithData(c, http.StatusConflict, CodeConflict, message, data)
}

// LockedError 账号锁定，返回 401 并附带解锁时间
func LockedError(c *gin.Context, message string, data interface{}) {
	ErrorWithData(c, http.StatusUnauthorized, CodeAccountLocked, message, data)
}

// InactiveError 账号已停用
func InactiveError(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, CodeAccountInactive, message)
}

// RateLimitError 请求过于频繁
func RateLimitError(c *gin.Context, message string, data interface{}) {
	ErrorWithData(c, http.StatusTooManyRequests, CodeRateLimited, message, data)
}

// UsageLimitError 当月额度用完，提示升级
func UsageLimitError(c *gin.Context, message string, data interface{}) {
	ErrorWithData(c, http.StatusForbidden, CodeUsageLimitExceeded, message, data)
}

// UnavailableError 依赖的存储暂时不可用，调用方可稍后重试
func UnavailableError(c *gin.Context, message string) {
	Error(c, http.StatusServiceUnavailable, CodeServiceUnavailable, message)
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeServerError, message)
}
