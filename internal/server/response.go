package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-peak-window/internal/errs"
)

// Response 为统一的 JSON 响应体；Code 为 0 表示成功。
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: 0, Message: "success", Data: data})
}

// fail 按错误类别映射 HTTP 状态码。
func fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	c.JSON(status, Response{Code: status, Message: err.Error(), Kind: errs.Kind(err)})
}
