package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/metaswap-gateway/internal/fault"
	"github.com/yourorg/metaswap-gateway/internal/telemetry"
)

// Response is the envelope of every API reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error carries the taxonomy kind of a failed call
type Error struct {
	Code    fault.Kind `json:"code"`
	Message string     `json:"message"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// handleError maps a classified error to its HTTP status. Execution
// outcomes never come through here; they are always 200 with a body.
func handleError(c *gin.Context, err error) {
	fe := fault.Classify(err)

	status := http.StatusInternalServerError
	switch fe.Kind {
	case fault.ValidationFailed:
		status = http.StatusBadRequest
	case fault.ProviderNotFound:
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		logrus.WithFields(telemetry.Fields(c.Request.Context(), logrus.Fields{
			"path":  c.FullPath(),
			"kind":  fe.Kind,
			"error": fe.Raw,
		})).Error("Request failed")
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   &Error{Code: fe.Kind, Message: fe.Message},
	})
}

func rateLimited(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, Response{
		Success: false,
		Error:   &Error{Code: "RateLimited", Message: "rate limit exceeded, try again later"},
	})
}
