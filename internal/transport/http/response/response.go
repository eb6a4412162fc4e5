package response

import "github.com/gin-gonic/gin"

// Stable error codes carried in the {message, code} envelope.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUserInactive       = "USER_INACTIVE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeAIRateLimit        = "AI_RATE_LIMIT"
	CodeAIAPIError         = "AI_API_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
)

type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func Error(c *gin.Context, httpStatus int, code, message string) {
	c.JSON(httpStatus, ErrorBody{Message: message, Code: code})
}
