package apperr

import (
	"github.com/gin-gonic/gin"

	"github.com/tanakadamon1/castchat-sub000/internal/logs"
)

// Handle classifies err, records it and logs it. Client errors log at WARN.
func Handle(err error, ctx map[string]interface{}) *AppError {
	appErr := Classify(err, ctx)
	if appErr == nil {
		return nil
	}
	Recorder.Add(appErr)

	fields := map[string]interface{}{
		"code": appErr.Code,
	}
	if appErr.Details != "" {
		fields["error"] = appErr.Details
	}
	for k, v := range appErr.Context {
		fields[k] = v
	}

	level := "WARN"
	if appErr.Code.HTTPStatus() >= 500 {
		level = "ERROR"
	}
	logs.LogJSON(level, appErr.Message, fields)
	return appErr
}

// Respond writes err as JSON and aborts the request.
func Respond(c *gin.Context, err error) {
	appErr := Handle(err, map[string]interface{}{
		"route":  c.FullPath(),
		"userID": c.GetString("user_id"),
	})
	if appErr == nil {
		return
	}

	body := gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	}
	// Internal details stay in the logs.
	if appErr.Details != "" && appErr.Code.HTTPStatus() < 500 {
		body["details"] = appErr.Details
	}
	c.AbortWithStatusJSON(appErr.Code.HTTPStatus(), body)
}
