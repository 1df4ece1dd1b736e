package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/terminal-bench/assetdao/internal/apperr"
)

// errorBody is the JSON shape of every error response
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// StatusOf maps a domain error to an HTTP status
func StatusOf(err error) int {
	e, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if e.NotFound() {
		return http.StatusNotFound
	}
	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindState:
		return http.StatusConflict
	case apperr.KindResource, apperr.KindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (g *Gateway) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	body := errorBody{Error: http.StatusText(status), Code: apperr.CodeOf(err)}
	if e, ok := apperr.As(err); ok {
		body.Message = e.Message
	}
	if status >= http.StatusInternalServerError {
		g.logger.Error().Err(err).Str("path", c.FullPath()).Str("correlation_id", c.GetString(ctxCorrelationID)).Msg("request failed")
		body.Message = ""
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: http.StatusText(http.StatusBadRequest), Code: "bad_request", Message: msg})
}
