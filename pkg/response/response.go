package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeSuccess     = 0
	CodeParamError  = 400
	CodeServerError = 500
)

// 业务错误码，和展示层约定：展示层据此区分
// 余额不足 / 过期码 / 缺货等场景给出不同提示
const (
	CodeUnauthenticated    = 2001
	CodeNotFound           = 2002
	CodeInsufficientFunds  = 2003
	CodeProductUnavailable = 2004
	CodeEmptyPool          = 2005
	CodeInvalidTransition  = 2006
	CodeOrderExpired       = 2007
	CodeConflict           = 2008
	CodeTokenNotFound      = 2009
	CodeEmptyCart          = 2010
)

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

func BusinessError(c *gin.Context, code int, message string) {
	Error(c, code, message)
}
