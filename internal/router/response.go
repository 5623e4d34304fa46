package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// 错误码
const (
	CodeSuccess       = 0
	CodeInvalidParams = 11001
	CodeServerError   = 50000
	CodeUnavailable   = 50002
)

var codeMessages = map[int]string{
	CodeSuccess:       "success",
	CodeInvalidParams: "invalid params",
	CodeUnavailable:   "service unavailable",
	CodeServerError:   "internal server error",
}

// Success 成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int) {
	message := codeMessages[code]
	if message == "" {
		message = "unknown error"
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}
