package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Efasquel/tracker/internal"
	"github.com/Efasquel/tracker/internal/response"
	"github.com/gin-gonic/gin"
)

const invalidJSONMsg = "Invalid JSON format. Please check your request body."

// HandleError writes err as {"message": ...} with the status its kind maps to.
// msg is shown when err carries no client-facing message of its own.
func HandleError(c *gin.Context, logger internal.Logger, err error, msg string) {
	requestID := c.GetString("request_id")
	status := internal.StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Errorf("[request_id=%s] %s: %v", requestID, msg, err)
	} else {
		logger.Warnf("[request_id=%s] %s: %v", requestID, msg, err)
	}
	c.AbortWithStatusJSON(status, response.Error(status, internal.PublicMessage(err, msg)))
}

func HandleSuccess(c *gin.Context, logger internal.Logger, data interface{}) {
	requestID := c.GetString("request_id")
	logger.Infof("[request_id=%s] Success", requestID)
	c.JSON(http.StatusOK, data)
}

// bindJSON decodes the request body into dst. An empty body leaves dst
// zero-valued so the service reports the missing fields.
func bindJSON(c *gin.Context, logger internal.Logger, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		HandleError(c, logger, internal.WrapError(internal.ErrValidation, "Missing or invalid fields in the request"), "Invalid request body")
		return false
	}
	HandleError(c, logger, internal.WrapError(internal.ErrValidation, invalidJSONMsg), "Invalid JSON")
	return false
}
