package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                  = 0
	CodeBadRequest          = 40000
	CodeEmptyImage          = 40001
	CodeInvalidImage        = 40002
	CodePayloadTooLarge     = 41300
	CodeImageTooLarge       = 41301
	CodeImageShapeMismatch  = 42201
	CodeInternalServer      = 50000
	CodeInferenceFailed     = 50001
	CodeDependencyUnhealthy = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	ErrorWithData(c, httpStatus, code, message, nil)
}

// ErrorWithData aborts with an error envelope that still carries a body,
// e.g. a failing readiness report.
func ErrorWithData(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.AbortWithStatusJSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}
